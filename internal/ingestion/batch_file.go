package ingestion

import (
	"errors"
	"fmt"
	"strings"

	"pickem-lab/internal/domain"
)

// ErrInvalidBatch is returned when a batch file fails validation.
var ErrInvalidBatch = errors.New("invalid batch file")

// BatchFile is the raw simulator output for one slate.
//
//	{
//	  "num_sims": 10000,
//	  "timestamp": 1700000000,
//	  "players": [{
//	    "player": "Mike Trout",
//	    "group": "batters",
//	    "stats": {"hits": {"thresholds": [1, 2, 3], "values": [0, 2, 1, ...]}},
//	    "events": {"first_hit": [false, true, ...]}
//	  }]
//	}
type BatchFile struct {
	NumSims   uint64         `json:"num_sims"`
	Timestamp int64          `json:"timestamp,omitempty"`
	Players   []PlayerResult `json:"players"`
}

// PlayerResult holds one player's per-run outcomes.
type PlayerResult struct {
	Player string                `json:"player"`
	Group  domain.PlayerGroup    `json:"group"`
	Stats  map[string]StatSeries `json:"stats,omitempty"`
	Events map[string][]bool     `json:"events,omitempty"`
}

// StatSeries is the per-run value of one stat plus the thresholds to emit.
// Thresholds produce value >= t props. AtMost thresholds produce value <= t
// props stored under the same <stat>_<t>_plus key.
type StatSeries struct {
	Thresholds []int64   `json:"thresholds"`
	AtMost     []int64   `json:"at_most,omitempty"`
	Values     []float64 `json:"values"`
}

// Validate checks run counts, groups and names.
func (f *BatchFile) Validate() error {
	if f.NumSims == 0 {
		return fmt.Errorf("%w: num_sims must be positive", ErrInvalidBatch)
	}
	seen := make(map[string]struct{}, len(f.Players))
	for i, p := range f.Players {
		key := domain.NormalizePlayerName(p.Player)
		if key == "" {
			return fmt.Errorf("%w: player %d has no name", ErrInvalidBatch, i)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate player %s", ErrInvalidBatch, key)
		}
		seen[key] = struct{}{}

		if p.Group != domain.GroupBatters && p.Group != domain.GroupPitchers {
			return fmt.Errorf("%w: player %s: unknown group %q", ErrInvalidBatch, key, p.Group)
		}
		for stat, s := range p.Stats {
			if uint64(len(s.Values)) != f.NumSims {
				return fmt.Errorf("%w: %s/%s: %d values, want %d", ErrInvalidBatch, key, stat, len(s.Values), f.NumSims)
			}
			overlap := make(map[int64]struct{}, len(s.Thresholds))
			for _, t := range s.Thresholds {
				overlap[t] = struct{}{}
			}
			for _, t := range s.AtMost {
				if _, ok := overlap[t]; ok {
					return fmt.Errorf("%w: %s/%s: threshold %d is both at-least and at-most", ErrInvalidBatch, key, stat, t)
				}
			}
		}
		for event, results := range p.Events {
			if !strings.HasPrefix(event, "first_") {
				return fmt.Errorf("%w: %s/%s: event names must start with first_", ErrInvalidBatch, key, event)
			}
			if uint64(len(results)) != f.NumSims {
				return fmt.Errorf("%w: %s/%s: %d results, want %d", ErrInvalidBatch, key, event, len(results), f.NumSims)
			}
		}
	}
	return nil
}
