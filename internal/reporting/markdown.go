package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Simulation Batch Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Batch Summary
	sb.WriteString("## Batch Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Batch ID | `%s` |\n", r.BatchID))
	sb.WriteString(fmt.Sprintf("| Simulations | %d |\n", r.NumSims))
	if r.BatchTime > 0 {
		sb.WriteString(fmt.Sprintf("| Batch Time | %s |\n", time.Unix(r.BatchTime, 0).UTC().Format(time.RFC3339)))
	}
	sb.WriteString(fmt.Sprintf("| Players | %d |\n", r.PlayerCount))
	sb.WriteString(fmt.Sprintf("| Batters | %d |\n", r.BatterCount))
	sb.WriteString(fmt.Sprintf("| Pitchers | %d |\n", r.PitcherCount))
	sb.WriteString(fmt.Sprintf("| Probability Entries | %d |\n", len(r.Probabilities)))
	sb.WriteString("\n")

	// Probabilities
	sb.WriteString("## Probabilities\n\n")
	if len(r.Probabilities) == 0 {
		sb.WriteString("No stats record for this batch.\n\n")
	} else {
		sb.WriteString("| Group | Player | Stat | Threshold | Probability |\n")
		sb.WriteString("|-------|--------|------|-----------|-------------|\n")
		for _, p := range r.Probabilities {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d+ | %.4f |\n",
				p.Group, p.Player, p.StatType, p.Threshold, p.Probability))
		}
		sb.WriteString("\n")
	}

	// Recent Queries
	if len(r.RecentQueries) > 0 {
		sb.WriteString("## Recent Correlated Queries\n\n")
		sb.WriteString("| Parlay | Props | All Hit | All But One | All But Two | Computed At |\n")
		sb.WriteString("|--------|-------|---------|-------------|-------------|-------------|\n")
		for _, q := range r.RecentQueries {
			allButTwo := "-"
			if q.AllButTwoProb != nil {
				allButTwo = fmt.Sprintf("%.4f", *q.AllButTwoProb)
			}
			sb.WriteString(fmt.Sprintf("| `%s` | %d | %.4f | %.4f | %s | %s |\n",
				shortParlay(q.ParlayID), q.NumProps, q.AllHitProb, q.AllButOneProb, allButTwo,
				q.ComputedAt.Format(time.RFC3339)))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func shortParlay(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
