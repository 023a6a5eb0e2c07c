package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"
)

// RenderCSV renders lookup table rows as CSV string.
func RenderCSV(rows []ProbabilityRow) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	// Header
	w.Write([]string{"group", "player", "stat_type", "threshold", "probability"})

	// Rows
	for _, r := range rows {
		w.Write([]string{
			string(r.Group),
			r.Player,
			r.StatType,
			strconv.FormatInt(r.Threshold, 10),
			strconv.FormatFloat(r.Probability, 'f', 6, 64),
		})
	}

	w.Flush()
	return sb.String()
}

// RenderQueriesCSV renders logged queries as CSV string.
func RenderQueriesCSV(rows []QueryRow) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	w.Write([]string{"parlay_id", "legs", "num_props", "all_hit", "all_but_one", "all_but_two", "computed_at", "duration_ms"})
	for _, r := range rows {
		allButTwo := ""
		if r.AllButTwoProb != nil {
			allButTwo = strconv.FormatFloat(*r.AllButTwoProb, 'f', 6, 64)
		}
		w.Write([]string{
			r.ParlayID,
			r.Legs,
			strconv.Itoa(r.NumProps),
			strconv.FormatFloat(r.AllHitProb, 'f', 6, 64),
			strconv.FormatFloat(r.AllButOneProb, 'f', 6, 64),
			allButTwo,
			r.ComputedAt.Format("2006-01-02T15:04:05Z07:00"),
			strconv.FormatInt(r.DurationMs, 10),
		})
	}

	w.Flush()
	return sb.String()
}
