package stats

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"pickem-lab/internal/bitmap"
	"pickem-lab/internal/domain"
	"pickem-lab/internal/storage"
)

type countingSource struct {
	mu    sync.Mutex
	calls int
	stats *domain.AggregateStats
	err   error
}

func (s *countingSource) GetAllPlayerStats(_ context.Context) (*domain.AggregateStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.stats, nil
}

func sampleStats() *domain.AggregateStats {
	a := domain.NewAggregateStats()
	a.Batters["mike_trout"] = domain.PlayerStats{
		Stats: map[string]map[string]uint64{
			"hits":      {"1": 650, "2": 250},
			"home_runs": {"1": 180},
			"first_hit": {"1": 300},
		},
		TotalSims: 1000,
	}
	a.Batters["broken"] = domain.PlayerStats{
		Stats:     map[string]map[string]uint64{"hits": {"1": 2000}},
		TotalSims: 1000,
	}
	a.Pitchers["gerrit_cole"] = domain.PlayerStats{
		Stats:     map[string]map[string]uint64{"strikeouts": {"7": 410}},
		TotalSims: 1000,
	}
	a.Pitchers["empty"] = domain.PlayerStats{
		Stats:     map[string]map[string]uint64{"strikeouts": {"1": 0}},
		TotalSims: 0,
	}
	return a
}

func TestTable_Lookup(t *testing.T) {
	src := &countingSource{stats: sampleStats()}
	table := NewTable(src)
	ctx := context.Background()

	cases := []struct {
		player    string
		stat      string
		threshold int64
		want      float64
		ok        bool
	}{
		{"mike_trout", "hits", 1, 0.65, true},
		{"mike_trout", "hits", 2, 0.25, true},
		{"mike_trout", "first_hit", 1, 0.3, true},
		{"gerrit_cole", "strikeouts", 7, 0.41, true},
		{"mike_trout", "hits", 3, 0, false},
		{"mike_trout", "doubles", 1, 0, false},
		{"nobody", "hits", 1, 0, false},
		{"broken", "hits", 1, 0, false},
		{"empty", "strikeouts", 1, 0, false},
	}

	for _, tc := range cases {
		p, ok, err := table.Lookup(ctx, tc.player, tc.stat, tc.threshold)
		if err != nil {
			t.Fatalf("Lookup(%s,%s,%d): %v", tc.player, tc.stat, tc.threshold, err)
		}
		if ok != tc.ok || p != tc.want {
			t.Errorf("Lookup(%s,%s,%d): got (%v,%v), want (%v,%v)",
				tc.player, tc.stat, tc.threshold, p, ok, tc.want, tc.ok)
		}
	}

	if src.calls != 1 {
		t.Errorf("source called %d times, want 1", src.calls)
	}
}

func TestTable_MissingRecordIsEmpty(t *testing.T) {
	src := &countingSource{err: storage.ErrNotFound}
	table := NewTable(src)

	_, ok, err := table.Lookup(context.Background(), "mike_trout", "hits", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected absent entry")
	}

	all, err := table.All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all[domain.GroupBatters]) != 0 || len(all[domain.GroupPitchers]) != 0 {
		t.Errorf("expected empty groups, got %v", all)
	}
}

func TestTable_SourceErrorRetried(t *testing.T) {
	boom := errors.New("connection refused")
	src := &countingSource{err: boom}
	table := NewTable(src)
	ctx := context.Background()

	if _, _, err := table.Lookup(ctx, "mike_trout", "hits", 1); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}

	src.mu.Lock()
	src.err = nil
	src.stats = sampleStats()
	src.mu.Unlock()

	p, ok, err := table.Lookup(ctx, "mike_trout", "hits", 1)
	if err != nil || !ok || p != 0.65 {
		t.Errorf("after recovery: got (%v,%v,%v)", p, ok, err)
	}
}

func TestTable_All(t *testing.T) {
	table := NewTableFromStats(sampleStats())

	all, err := table.All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if got := all[domain.GroupBatters]["mike_trout"]["hits"][2]; got != 0.25 {
		t.Errorf("mike_trout hits 2: got %v", got)
	}
	if got := all[domain.GroupPitchers]["gerrit_cole"]["strikeouts"][7]; got != 0.41 {
		t.Errorf("gerrit_cole strikeouts 7: got %v", got)
	}
	if _, ok := all[domain.GroupBatters]["broken"]; ok {
		t.Error("invalid entries must be excluded")
	}
}

func TestTable_HasPlayer(t *testing.T) {
	table := NewTableFromStats(sampleStats())
	ctx := context.Background()

	for player, want := range map[string]bool{"mike_trout": true, "gerrit_cole": true, "nobody": false} {
		got, err := table.HasPlayer(ctx, player)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("HasPlayer(%s): got %v, want %v", player, got, want)
		}
	}
}

func TestTable_AgreesWithBitmapCount(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	for _, numSims := range []uint64{1, 13, 100, 1001, 10000} {
		results := make([]bool, numSims)
		for i := range results {
			results[i] = rng.Intn(3) == 0
		}
		buf := bitmap.Pack(results)
		k, err := bitmap.Count(buf, numSims)
		if err != nil {
			t.Fatal(err)
		}

		a := domain.NewAggregateStats()
		a.Batters["p"] = domain.PlayerStats{
			Stats:     map[string]map[string]uint64{"hits": {"1": k}},
			TotalSims: numSims,
		}
		p, ok, err := NewTableFromStats(a).Lookup(context.Background(), "p", "hits", 1)
		if err != nil || !ok {
			t.Fatalf("Lookup: ok=%v err=%v", ok, err)
		}
		if want := float64(k) / float64(numSims); p != want {
			t.Errorf("num_sims=%d: table %v, bitmap %v", numSims, p, want)
		}
	}
}

func TestTable_ConcurrentLookup(t *testing.T) {
	src := &countingSource{stats: sampleStats()}
	table := NewTable(src)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := table.Lookup(context.Background(), "mike_trout", "hits", 1); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if src.calls != 1 {
		t.Errorf("source called %d times, want 1", src.calls)
	}
}

func TestTable_FindCachesProbability(t *testing.T) {
	table := NewTableFromStats(sampleStats())
	ctx := context.Background()

	h, ok, err := table.Find(ctx, "mike_trout", "hits", 1)
	if err != nil || !ok {
		t.Fatalf("Find: ok=%v err=%v", ok, err)
	}
	if h.Probability != 0.65 || h.Entry.HitCount != 650 || h.Entry.TotalSims != 1000 {
		t.Errorf("Find: got %+v", h)
	}
	if _, _, err := table.Find(ctx, "nobody", "hits", 1); err != nil {
		t.Fatal(err)
	}
	if got := table.Cached(); got != 1 {
		t.Errorf("cached %d probabilities, want 1", got)
	}

	p, ok, err := table.Lookup(ctx, "mike_trout", "hits", 1)
	if err != nil || !ok || p != 0.65 {
		t.Errorf("Lookup: got (%v,%v,%v)", p, ok, err)
	}
	if got := table.Cached(); got != 1 {
		t.Errorf("cached %d probabilities after Lookup, want 1", got)
	}
}

func TestTable_TwoWayPlayer(t *testing.T) {
	a := domain.NewAggregateStats()
	a.Batters["shohei_ohtani"] = domain.PlayerStats{
		Stats:     map[string]map[string]uint64{"hits": {"1": 600}},
		TotalSims: 1000,
	}
	a.Pitchers["shohei_ohtani"] = domain.PlayerStats{
		Stats:     map[string]map[string]uint64{"strikeouts": {"7": 350}},
		TotalSims: 1000,
	}
	table := NewTableFromStats(a)
	ctx := context.Background()

	h, ok, err := table.Find(ctx, "shohei_ohtani", "strikeouts", 7)
	if err != nil || !ok {
		t.Fatalf("Find strikeouts: ok=%v err=%v", ok, err)
	}
	if h.Entry.Group != domain.GroupPitchers || h.Probability != 0.35 {
		t.Errorf("strikeouts: got %+v", h)
	}

	h, ok, err = table.Find(ctx, "shohei_ohtani", "hits", 1)
	if err != nil || !ok || h.Entry.Group != domain.GroupBatters || h.Probability != 0.6 {
		t.Errorf("hits: got (%+v,%v,%v)", h, ok, err)
	}
}
