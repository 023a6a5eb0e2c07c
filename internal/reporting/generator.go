package reporting

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"pickem-lab/internal/domain"
	"pickem-lab/internal/probability"
	"pickem-lab/internal/stats"
)

// DefaultRecentQueries is the number of logged queries included in a report.
const DefaultRecentQueries = 20

// Generator produces reports from the probability service.
type Generator struct {
	service       *probability.Service
	recentQueries int
	now           func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(service *probability.Service) *Generator {
	return &Generator{
		service:       service,
		recentQueries: DefaultRecentQueries,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithRecentQueries sets how many logged queries to include. Zero disables the section.
func (g *Generator) WithRecentQueries(n int) *Generator {
	g.recentQueries = n
	return g
}

// Generate produces a complete report for the current batch.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	batch, err := g.service.Current(ctx)
	if err != nil {
		return nil, err
	}

	table, err := g.service.LookupTable(ctx)
	if err != nil {
		return nil, err
	}

	rows := flattenLookupTable(table)

	var queries []QueryRow
	if g.recentQueries > 0 {
		records, err := g.service.RecentQueries(ctx, g.recentQueries)
		switch {
		case err == nil:
			queries = queryRows(records)
		case errors.Is(err, probability.ErrQueryLogDisabled):
		default:
			return nil, err
		}
	}

	return &Report{
		GeneratedAt:   g.now(),
		BatchID:       batch.ID,
		NumSims:       batch.Metadata.NumSims,
		BatchTime:     batch.Metadata.Timestamp,
		PlayerCount:   len(table[domain.GroupBatters]) + len(table[domain.GroupPitchers]),
		BatterCount:   len(table[domain.GroupBatters]),
		PitcherCount:  len(table[domain.GroupPitchers]),
		Probabilities: rows,
		RecentQueries: queries,
	}, nil
}

// flattenLookupTable returns the table as rows in deterministic order.
func flattenLookupTable(table stats.LookupTable) []ProbabilityRow {
	var rows []ProbabilityRow
	for _, g := range domain.PlayerGroups {
		for player, byStat := range table[g] {
			for stat, byThreshold := range byStat {
				for th, p := range byThreshold {
					rows = append(rows, ProbabilityRow{
						Group:       g,
						Player:      player,
						StatType:    stat,
						Threshold:   th,
						Probability: p,
					})
				}
			}
		}
	}
	sortProbabilityRows(rows)
	return rows
}

func queryRows(records []*domain.QueryRecord) []QueryRow {
	rows := make([]QueryRow, 0, len(records))
	for _, r := range records {
		res := domain.CorrelationResult{
			NumProps:     r.NumProps,
			AllHit:       r.AllHit,
			AllButOneHit: r.AllButOneHit,
			AllButTwoHit: r.AllButTwoHit,
			TotalSims:    r.TotalSims,
		}
		row := QueryRow{
			ParlayID:      r.ParlayID,
			Legs:          strings.Join(r.PropKeys, " + "),
			NumProps:      r.NumProps,
			AllHitProb:    res.CorrelatedProbability(),
			AllButOneProb: res.AllButOneProbability(),
			ComputedAt:    time.UnixMilli(r.ComputedAt).UTC(),
			DurationMs:    r.DurationMs,
		}
		if p, ok := res.AllButTwoProbability(); ok {
			row.AllButTwoProb = &p
		}
		rows = append(rows, row)
	}
	return rows
}

func sortProbabilityRows(rows []ProbabilityRow) {
	groupOrder := map[domain.PlayerGroup]int{}
	for i, g := range domain.PlayerGroups {
		groupOrder[g] = i
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Group != b.Group {
			return groupOrder[a.Group] < groupOrder[b.Group]
		}
		if a.Player != b.Player {
			return a.Player < b.Player
		}
		if a.StatType != b.StatType {
			return a.StatType < b.StatType
		}
		return a.Threshold < b.Threshold
	})
}
