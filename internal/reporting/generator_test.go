package reporting

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pickem-lab/internal/bitmap"
	"pickem-lab/internal/domain"
	"pickem-lab/internal/probability"
	"pickem-lab/internal/storage/memory"
)

func setupTestService(t *testing.T, withLog bool) *probability.Service {
	t.Helper()
	ctx := context.Background()
	c := memory.NewCatalog()

	if err := c.PutMetadata(ctx, &domain.SimulationMetadata{NumSims: 8, Timestamp: 1700000000}); err != nil {
		t.Fatalf("PutMetadata failed: %v", err)
	}
	for player, buf := range map[string]byte{"mike_trout": 0xF0, "aaron_judge": 0xCC} {
		raw, err := bitmap.Encode([]byte{buf})
		if err != nil {
			t.Fatal(err)
		}
		if err := c.PutPlayerBitmaps(ctx, player, domain.PlayerBitmaps{"hits_1_plus": raw}); err != nil {
			t.Fatalf("PutPlayerBitmaps failed: %v", err)
		}
	}

	stats := domain.NewAggregateStats()
	stats.Batters["mike_trout"] = domain.PlayerStats{
		Stats:     map[string]map[string]uint64{"hits": {"1": 4, "2": 1}},
		TotalSims: 8,
	}
	stats.Batters["aaron_judge"] = domain.PlayerStats{
		Stats:     map[string]map[string]uint64{"hits": {"1": 4}},
		TotalSims: 8,
	}
	stats.Pitchers["gerrit_cole"] = domain.PlayerStats{
		Stats:     map[string]map[string]uint64{"strikeouts": {"6": 2}},
		TotalSims: 8,
	}
	if err := c.PutAllPlayerStats(ctx, stats); err != nil {
		t.Fatalf("PutAllPlayerStats failed: %v", err)
	}

	opts := probability.Options{Catalog: c, Namespace: "pickem"}
	if withLog {
		opts.QueryLog = memory.NewQueryLogStore()
	}
	return probability.NewService(opts)
}

func fixedClock() time.Time {
	return time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
}

func TestGenerator_Generate(t *testing.T) {
	svc := setupTestService(t, false)
	report, err := NewGenerator(svc).WithClock(fixedClock).Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if report.NumSims != 8 || report.BatchTime != 1700000000 {
		t.Errorf("batch fields: %+v", report)
	}
	if report.BatchID == "" {
		t.Error("BatchID should be set")
	}
	if report.PlayerCount != 3 || report.BatterCount != 2 || report.PitcherCount != 1 {
		t.Errorf("counts: players=%d batters=%d pitchers=%d", report.PlayerCount, report.BatterCount, report.PitcherCount)
	}
	if len(report.RecentQueries) != 0 {
		t.Errorf("expected no queries without a query log, got %d", len(report.RecentQueries))
	}

	want := []ProbabilityRow{
		{domain.GroupBatters, "aaron_judge", "hits", 1, 0.5},
		{domain.GroupBatters, "mike_trout", "hits", 1, 0.5},
		{domain.GroupBatters, "mike_trout", "hits", 2, 0.125},
		{domain.GroupPitchers, "gerrit_cole", "strikeouts", 6, 0.25},
	}
	if len(report.Probabilities) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(report.Probabilities))
	}
	for i, w := range want {
		if report.Probabilities[i] != w {
			t.Errorf("row %d: got %+v, want %+v", i, report.Probabilities[i], w)
		}
	}
}

func TestGenerator_RecentQueries(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, true)

	_, err := svc.Correlate(ctx, []domain.PropQuery{
		{Player: "Mike Trout", StatName: "hits", StatValue: decimal.NewFromInt(1), Side: domain.SideOver},
		{Player: "Aaron Judge", StatName: "hits", StatValue: decimal.NewFromInt(1), Side: domain.SideOver},
	})
	if err != nil {
		t.Fatalf("Correlate failed: %v", err)
	}

	report, err := NewGenerator(svc).WithClock(fixedClock).Generate(ctx)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(report.RecentQueries) != 1 {
		t.Fatalf("expected 1 query, got %d", len(report.RecentQueries))
	}
	q := report.RecentQueries[0]
	if q.NumProps != 2 || q.AllHitProb != 0.25 || q.AllButOneProb != 0.5 || q.AllButTwoProb != nil {
		t.Errorf("unexpected query row: %+v", q)
	}
	if !strings.Contains(q.Legs, "mike_trout_hits_1_plus:over") {
		t.Errorf("legs: %q", q.Legs)
	}
}

func TestRenderCSV(t *testing.T) {
	csv := RenderCSV([]ProbabilityRow{
		{domain.GroupBatters, "mike_trout", "hits", 1, 0.5},
		{domain.GroupPitchers, "gerrit_cole", "strikeouts", 6, 0.25},
	})

	lines := strings.Split(strings.TrimSpace(csv), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), csv)
	}
	if lines[0] != "group,player,stat_type,threshold,probability" {
		t.Errorf("header: %q", lines[0])
	}
	if lines[1] != "batters,mike_trout,hits,1,0.500000" {
		t.Errorf("row 1: %q", lines[1])
	}
	if lines[2] != "pitchers,gerrit_cole,strikeouts,6,0.250000" {
		t.Errorf("row 2: %q", lines[2])
	}
}

func TestRenderQueriesCSV(t *testing.T) {
	p := 0.125
	csv := RenderQueriesCSV([]QueryRow{{
		ParlayID:      "abc",
		Legs:          "a:over + b:under",
		NumProps:      6,
		AllHitProb:    0.01,
		AllButOneProb: 0.05,
		AllButTwoProb: &p,
		ComputedAt:    fixedClock(),
		DurationMs:    3,
	}})
	if !strings.Contains(csv, "abc,a:over + b:under,6,0.010000,0.050000,0.125000,2026-04-01T12:00:00Z,3") {
		t.Errorf("unexpected csv: %q", csv)
	}
}

func TestRenderMarkdown(t *testing.T) {
	svc := setupTestService(t, false)
	report, err := NewGenerator(svc).WithClock(fixedClock).Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	md := RenderMarkdown(report)
	for _, want := range []string{
		"# Simulation Batch Report",
		"Generated: 2026-04-01T12:00:00Z",
		"| Simulations | 8 |",
		"| Players | 3 |",
		"| batters | mike_trout | hits | 2+ | 0.1250 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
	if strings.Contains(md, "Recent Correlated Queries") {
		t.Error("queries section should be omitted when empty")
	}

	// same input renders identically
	if md != RenderMarkdown(report) {
		t.Error("markdown output is not deterministic")
	}
}
