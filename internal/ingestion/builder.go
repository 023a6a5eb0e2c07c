package ingestion

import (
	"fmt"
	"sort"
	"strconv"

	"pickem-lab/internal/bitmap"
	"pickem-lab/internal/domain"
)

// Batch is a fully encoded simulation batch ready to be written to a catalog.
type Batch struct {
	Metadata domain.SimulationMetadata
	Bitmaps  map[string]domain.PlayerBitmaps // keyed by player key
	Stats    *domain.AggregateStats
	Players  []string // sorted
}

// BitmapCount returns the total number of stat bitmaps across players.
func (b *Batch) BitmapCount() int {
	n := 0
	for _, pb := range b.Bitmaps {
		n += len(pb)
	}
	return n
}

// Builder packs per-run outcomes into compressed bitmaps and tallies the
// matching hit counts into the aggregate stats record. Not safe for
// concurrent use.
type Builder struct {
	numSims uint64
	bitmaps map[string]domain.PlayerBitmaps
	stats   *domain.AggregateStats
}

// NewBuilder creates a builder for a batch of numSims runs.
func NewBuilder(numSims uint64) (*Builder, error) {
	if numSims == 0 {
		return nil, fmt.Errorf("%w: num_sims must be positive", ErrInvalidBatch)
	}
	return &Builder{
		numSims: numSims,
		bitmaps: make(map[string]domain.PlayerBitmaps),
		stats:   domain.NewAggregateStats(),
	}, nil
}

// AddProp stores one outcome vector under the regular <stat>_<t>_plus key.
func (b *Builder) AddProp(group domain.PlayerGroup, player, statType string, threshold int64, results []bool) error {
	statKey := fmt.Sprintf("%s_%d_plus", statType, threshold)
	return b.add(group, player, statType, statKey, threshold, results)
}

// AddEvent stores a first-occurrence outcome vector. The stat key is the
// event name and the hit count is tallied under threshold 1.
func (b *Builder) AddEvent(group domain.PlayerGroup, player, event string, results []bool) error {
	return b.add(group, player, event, event, 1, results)
}

// AddStat emits one prop per threshold from per-run stat values.
func (b *Builder) AddStat(group domain.PlayerGroup, player, statType string, s StatSeries) error {
	if uint64(len(s.Values)) != b.numSims {
		return fmt.Errorf("%w: %s/%s: %d values, want %d", ErrInvalidBatch, player, statType, len(s.Values), b.numSims)
	}
	results := make([]bool, len(s.Values))
	for _, t := range s.Thresholds {
		for i, v := range s.Values {
			results[i] = v >= float64(t)
		}
		if err := b.AddProp(group, player, statType, t, results); err != nil {
			return err
		}
	}
	for _, t := range s.AtMost {
		for i, v := range s.Values {
			results[i] = v <= float64(t)
		}
		if err := b.AddProp(group, player, statType, t, results); err != nil {
			return err
		}
	}
	return nil
}

// AddPlayer adds every stat and event of one player result.
func (b *Builder) AddPlayer(p PlayerResult) error {
	player := domain.NormalizePlayerName(p.Player)
	if b.stats.Group(p.Group) == nil {
		return fmt.Errorf("%w: unknown group %q", ErrInvalidBatch, p.Group)
	}
	for _, stat := range sortedKeys(p.Stats) {
		if err := b.AddStat(p.Group, player, stat, p.Stats[stat]); err != nil {
			return err
		}
	}
	for _, event := range sortedKeys(p.Events) {
		if err := b.AddEvent(p.Group, player, event, p.Events[event]); err != nil {
			return err
		}
	}
	if len(p.Stats) == 0 && len(p.Events) == 0 {
		b.ensurePlayer(p.Group, player)
	}
	return nil
}

// Build returns the encoded batch. The builder must not be used afterwards.
func (b *Builder) Build(timestamp int64) *Batch {
	players := make([]string, 0, len(b.bitmaps))
	seen := make(map[string]struct{})
	for _, g := range domain.PlayerGroups {
		for p := range b.stats.Group(g) {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				players = append(players, p)
			}
		}
	}
	sort.Strings(players)

	return &Batch{
		Metadata: domain.SimulationMetadata{NumSims: b.numSims, Timestamp: timestamp},
		Bitmaps:  b.bitmaps,
		Stats:    b.stats,
		Players:  players,
	}
}

func (b *Builder) add(group domain.PlayerGroup, player, statType, statKey string, threshold int64, results []bool) error {
	if player == "" || statType == "" {
		return fmt.Errorf("%w: empty player or stat", ErrInvalidBatch)
	}
	if b.stats.Group(group) == nil {
		return fmt.Errorf("%w: unknown group %q", ErrInvalidBatch, group)
	}
	if uint64(len(results)) != b.numSims {
		return fmt.Errorf("%w: %s/%s: %d results, want %d", ErrInvalidBatch, player, statKey, len(results), b.numSims)
	}
	if other := b.groupOf(player); other != "" && other != group {
		return fmt.Errorf("%w: player %s is in both %s and %s", ErrInvalidBatch, player, other, group)
	}

	raw, err := bitmap.Encode(bitmap.Pack(results))
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", player, statKey, err)
	}
	pb, ok := b.bitmaps[player]
	if !ok {
		pb = make(domain.PlayerBitmaps)
		b.bitmaps[player] = pb
	}
	pb[statKey] = raw

	var hits uint64
	for _, r := range results {
		if r {
			hits++
		}
	}
	ps := b.ensurePlayer(group, player)
	byThreshold, ok := ps.Stats[statType]
	if !ok {
		byThreshold = make(map[string]uint64)
		ps.Stats[statType] = byThreshold
	}
	byThreshold[strconv.FormatInt(threshold, 10)] = hits
	return nil
}

func (b *Builder) ensurePlayer(group domain.PlayerGroup, player string) domain.PlayerStats {
	m := b.stats.Group(group)
	ps, ok := m[player]
	if !ok {
		ps = domain.PlayerStats{Stats: make(map[string]map[string]uint64), TotalSims: b.numSims}
		m[player] = ps
	}
	return ps
}

func (b *Builder) groupOf(player string) domain.PlayerGroup {
	for _, g := range domain.PlayerGroups {
		if _, ok := b.stats.Group(g)[player]; ok {
			return g
		}
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
