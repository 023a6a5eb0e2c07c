package reporting

import (
	"time"

	"pickem-lab/internal/domain"
)

// Report is a snapshot of the batch currently served.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	BatchID     string
	NumSims     uint64
	BatchTime   int64 // unix seconds, 0 if unknown

	// Counts
	PlayerCount  int
	BatterCount  int
	PitcherCount int

	// Probabilities (sorted by group, player, stat_type, threshold)
	Probabilities []ProbabilityRow

	// Latest logged correlated queries, newest first. Empty when the
	// query log is not configured.
	RecentQueries []QueryRow
}

// ProbabilityRow is one entry of the lookup table.
type ProbabilityRow struct {
	Group       domain.PlayerGroup
	Player      string
	StatType    string
	Threshold   int64
	Probability float64
}

// QueryRow summarizes one logged correlated query.
type QueryRow struct {
	ParlayID      string
	Legs          string
	NumProps      int
	AllHitProb    float64
	AllButOneProb float64
	AllButTwoProb *float64
	ComputedAt    time.Time
	DurationMs    int64
}
