package domain

import "strconv"

// PlayerGroup is the top-level grouping of the aggregate stats record.
type PlayerGroup string

// Player groups.
const (
	GroupBatters  PlayerGroup = "batters"
	GroupPitchers PlayerGroup = "pitchers"
)

// PlayerGroups lists groups in lookup order.
var PlayerGroups = []PlayerGroup{GroupBatters, GroupPitchers}

// StatEntry is a precomputed hit count for one (player, stat, threshold).
type StatEntry struct {
	PlayerID  string
	Group     PlayerGroup
	StatType  string
	Threshold int64
	HitCount  uint64
	TotalSims uint64
}

// Valid reports whether the entry satisfies hit_count <= total_sims, total_sims > 0.
func (e StatEntry) Valid() bool {
	return e.TotalSims > 0 && e.HitCount <= e.TotalSims
}

// Probability returns HitCount / TotalSims.
func (e StatEntry) Probability() float64 {
	if e.TotalSims == 0 {
		return 0
	}
	return float64(e.HitCount) / float64(e.TotalSims)
}

// PlayerStats is the per-player block of the aggregate stats record.
// Stats maps stat_type -> threshold (as string) -> hit_count.
type PlayerStats struct {
	Stats     map[string]map[string]uint64 `json:"stats"`
	TotalSims uint64                       `json:"total_sims"`
}

// AggregateStats is the aggregate stats record:
// {batters: {player: PlayerStats}, pitchers: {...}}.
type AggregateStats struct {
	Batters  map[string]PlayerStats `json:"batters"`
	Pitchers map[string]PlayerStats `json:"pitchers"`
}

// NewAggregateStats returns an empty record.
func NewAggregateStats() *AggregateStats {
	return &AggregateStats{
		Batters:  make(map[string]PlayerStats),
		Pitchers: make(map[string]PlayerStats),
	}
}

// Group returns the map for a player group, or nil for unknown groups.
func (a *AggregateStats) Group(g PlayerGroup) map[string]PlayerStats {
	switch g {
	case GroupBatters:
		return a.Batters
	case GroupPitchers:
		return a.Pitchers
	default:
		return nil
	}
}

// Find returns the stat entry for a triple. Batters are searched before
// pitchers; a player listed in both groups is matched in whichever group
// carries the stat.
func (a *AggregateStats) Find(playerID, statType string, threshold int64) (StatEntry, bool) {
	if a == nil {
		return StatEntry{}, false
	}
	key := strconv.FormatInt(threshold, 10)
	for _, g := range PlayerGroups {
		ps, ok := a.Group(g)[playerID]
		if !ok {
			continue
		}
		count, ok := ps.Stats[statType][key]
		if !ok {
			continue
		}
		return StatEntry{
			PlayerID:  playerID,
			Group:     g,
			StatType:  statType,
			Threshold: threshold,
			HitCount:  count,
			TotalSims: ps.TotalSims,
		}, true
	}
	return StatEntry{}, false
}

// Entries flattens the record. Thresholds that are not integers are skipped.
func (a *AggregateStats) Entries() []StatEntry {
	if a == nil {
		return nil
	}
	var out []StatEntry
	for _, g := range PlayerGroups {
		for player, ps := range a.Group(g) {
			for statType, thresholds := range ps.Stats {
				for th, count := range thresholds {
					n, err := strconv.ParseInt(th, 10, 64)
					if err != nil {
						continue
					}
					out = append(out, StatEntry{
						PlayerID:  player,
						Group:     g,
						StatType:  statType,
						Threshold: n,
						HitCount:  count,
						TotalSims: ps.TotalSims,
					})
				}
			}
		}
	}
	return out
}

// HasPlayer reports whether the player appears in either group.
func (a *AggregateStats) HasPlayer(playerID string) bool {
	if a == nil {
		return false
	}
	_, inBatters := a.Batters[playerID]
	_, inPitchers := a.Pitchers[playerID]
	return inBatters || inPitchers
}

// Clone returns a deep copy of the record.
func (a *AggregateStats) Clone() *AggregateStats {
	if a == nil {
		return nil
	}
	out := NewAggregateStats()
	for _, g := range PlayerGroups {
		dst := out.Group(g)
		for player, ps := range a.Group(g) {
			stats := make(map[string]map[string]uint64, len(ps.Stats))
			for statType, thresholds := range ps.Stats {
				th := make(map[string]uint64, len(thresholds))
				for k, v := range thresholds {
					th[k] = v
				}
				stats[statType] = th
			}
			dst[player] = PlayerStats{Stats: stats, TotalSims: ps.TotalSims}
		}
	}
	return out
}
