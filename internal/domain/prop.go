package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PropVariant identifies the shape of a canonical prop key.
type PropVariant string

// Prop variants, in parser priority order.
const (
	VariantFirstOccurrence PropVariant = "FIRST_OCCURRENCE" // <player>_first_<event>
	VariantPeriodRange     PropVariant = "PERIOD_RANGE"     // <player>_period_1_2_3_<stat>_<n>_plus
	VariantRegular         PropVariant = "REGULAR"          // <player>_<stat>_<n>_plus
)

// PropKey is the parsed identity of a canonical prop key.
type PropKey struct {
	Player                string          // normalized player key, underscore-joined
	Variant               PropVariant     // recognizer that matched
	StatType              string          // e.g. "home_runs", "first_strikeout"
	Threshold             decimal.Decimal // 1 for first-occurrence props
	IsFirstOccurrenceProp bool
}

// StatKey returns the key of this prop inside a player's bitmap document.
func (k PropKey) StatKey() string {
	if k.IsFirstOccurrenceProp {
		return k.StatType
	}
	return fmt.Sprintf("%s_%s_plus", k.StatType, k.Threshold.Ceil().String())
}

// IntThreshold returns the threshold rounded up to an integer.
func (k PropKey) IntThreshold() int64 {
	return k.Threshold.Ceil().IntPart()
}

// Side is the direction of a prop selection.
type Side string

// Prop sides. The stored bitmap always encodes Over.
const (
	SideOver  Side = "over"
	SideUnder Side = "under"
)

// ParseSide parses "over"/"under" case-insensitively.
func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "over", "":
		return SideOver, true
	case "under":
		return SideUnder, true
	default:
		return "", false
	}
}

// PropQuery is one prop selection submitted by a caller.
type PropQuery struct {
	Player    string          `json:"player"`
	StatName  string          `json:"stat_name"`
	StatValue decimal.Decimal `json:"stat_value"`
	Side      Side            `json:"type"`
}

// PlayerKey returns the normalized player key used for storage lookups.
func (q PropQuery) PlayerKey() string {
	return NormalizePlayerName(q.Player)
}

// StatKey returns the bitmap stat key for the query.
// First-occurrence stats are stored without a threshold suffix.
func (q PropQuery) StatKey() string {
	if strings.Contains(q.StatName, "first") {
		return q.StatName
	}
	return fmt.Sprintf("%s_%s_plus", q.StatName, q.StatValue.Ceil().String())
}

// String renders the query as "<player_key>_<stat_key>:<side>".
func (q PropQuery) String() string {
	return fmt.Sprintf("%s_%s:%s", q.PlayerKey(), q.StatKey(), q.Side)
}

var playerNameReplacer = strings.NewReplacer(" ", "_", "-", "#")

// NormalizePlayerName lowercases the name, maps spaces to '_' and hyphens to '#'.
func NormalizePlayerName(name string) string {
	return playerNameReplacer.Replace(strings.ToLower(strings.TrimSpace(name)))
}
