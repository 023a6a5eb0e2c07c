package propkey

import (
	"strings"

	"pickem-lab/internal/domain"
)

// Format renders a PropKey back into its canonical key.
// For any key accepted by Parse, Format(Parse(key)) == key unless the key
// carried tokens after "plus", which Parse discards.
func Format(k domain.PropKey) string {
	var sb strings.Builder
	sb.WriteString(k.Player)
	sb.WriteByte('_')
	sb.WriteString(k.StatType)
	if k.IsFirstOccurrenceProp {
		return sb.String()
	}
	sb.WriteByte('_')
	sb.WriteString(k.Threshold.String())
	sb.WriteString("_plus")
	return sb.String()
}
