// Package stats serves single-prop probabilities from the precomputed
// aggregate stats record.
package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pickem-lab/internal/domain"
	"pickem-lab/internal/storage"
)

type tripleKey struct {
	playerID  string
	statType  string
	threshold int64
}

// Hit is a stats table answer: the entry and its hit probability.
type Hit struct {
	Entry       domain.StatEntry
	Probability float64
}

// Table is a lazily loaded view over the aggregate stats record.
// The record is fetched on first use and kept for the lifetime of the Table;
// probabilities are cached per (player, stat_type, threshold).
type Table struct {
	source storage.StatsSource

	loadMu sync.Mutex
	loaded bool
	stats  *domain.AggregateStats

	mu    sync.RWMutex
	cache map[tripleKey]Hit
}

// NewTable creates a table over a stats source.
func NewTable(source storage.StatsSource) *Table {
	return &Table{
		source: source,
		cache:  make(map[tripleKey]Hit),
	}
}

// NewTableFromStats creates a table over an already loaded record.
func NewTableFromStats(stats *domain.AggregateStats) *Table {
	return &Table{
		loaded: true,
		stats:  stats,
		cache:  make(map[tripleKey]Hit),
	}
}

// load fetches the record once. A missing record is cached as empty;
// other errors are returned and retried on the next call.
func (t *Table) load(ctx context.Context) (*domain.AggregateStats, error) {
	t.loadMu.Lock()
	defer t.loadMu.Unlock()

	if t.loaded {
		return t.stats, nil
	}
	stats, err := t.source.GetAllPlayerStats(ctx)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		stats = nil
	default:
		return nil, fmt.Errorf("load player stats: %w", err)
	}
	t.stats = stats
	t.loaded = true
	return stats, nil
}

// Find returns the entry and hit_count / total_sims for a triple, caching the
// answer. Entries with total_sims == 0 or hit_count > total_sims are reported
// absent and never cached.
func (t *Table) Find(ctx context.Context, playerID, statType string, threshold int64) (Hit, bool, error) {
	key := tripleKey{playerID: playerID, statType: statType, threshold: threshold}

	t.mu.RLock()
	h, ok := t.cache[key]
	t.mu.RUnlock()
	if ok {
		return h, true, nil
	}

	stats, err := t.load(ctx)
	if err != nil {
		return Hit{}, false, err
	}
	e, ok := stats.Find(playerID, statType, threshold)
	if !ok || !e.Valid() {
		return Hit{}, false, nil
	}

	h = Hit{Entry: e, Probability: e.Probability()}
	t.mu.Lock()
	t.cache[key] = h
	t.mu.Unlock()
	return h, true, nil
}

// Lookup returns hit_count / total_sims for a triple.
func (t *Table) Lookup(ctx context.Context, playerID, statType string, threshold int64) (float64, bool, error) {
	h, ok, err := t.Find(ctx, playerID, statType, threshold)
	return h.Probability, ok, err
}

// Cached returns the number of cached probabilities.
func (t *Table) Cached() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.cache)
}

// HasPlayer reports whether the player appears in the record.
func (t *Table) HasPlayer(ctx context.Context, playerID string) (bool, error) {
	stats, err := t.load(ctx)
	if err != nil {
		return false, err
	}
	return stats.HasPlayer(playerID), nil
}

// LookupTable maps group -> player -> stat_type -> threshold -> probability.
type LookupTable map[domain.PlayerGroup]map[string]map[string]map[int64]float64

// All returns every valid probability in the record. Both groups are always
// present, empty when the record is missing.
func (t *Table) All(ctx context.Context) (LookupTable, error) {
	stats, err := t.load(ctx)
	if err != nil {
		return nil, err
	}

	out := make(LookupTable, len(domain.PlayerGroups))
	for _, g := range domain.PlayerGroups {
		out[g] = make(map[string]map[string]map[int64]float64)
	}
	for _, e := range stats.Entries() {
		if !e.Valid() {
			continue
		}
		players := out[e.Group]
		byStat, ok := players[e.PlayerID]
		if !ok {
			byStat = make(map[string]map[int64]float64)
			players[e.PlayerID] = byStat
		}
		byThreshold, ok := byStat[e.StatType]
		if !ok {
			byThreshold = make(map[int64]float64)
			byStat[e.StatType] = byThreshold
		}
		byThreshold[e.Threshold] = e.Probability()
	}
	return out, nil
}
