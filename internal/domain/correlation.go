package domain

// Limits on the size of a correlated prop set.
const (
	MinCorrelatedProps = 2
	MaxCorrelatedProps = 8

	// AllButTwoMinProps is the smallest prop set for which the all-but-two
	// count is computed and reported. Payout-fallback rule; keep literal.
	AllButTwoMinProps = 6
)

// CorrelationResult holds joint and partial hit counts across N props.
type CorrelationResult struct {
	NumProps     int
	AllHit       uint64
	AllButOneHit uint64
	AllButTwoHit *uint64 // nil unless NumProps >= AllButTwoMinProps
	TotalSims    uint64
}

// CorrelatedProbability returns AllHit / TotalSims.
func (r CorrelationResult) CorrelatedProbability() float64 {
	return ratio(r.AllHit, r.TotalSims)
}

// AllButOneProbability returns AllButOneHit / TotalSims.
func (r CorrelationResult) AllButOneProbability() float64 {
	return ratio(r.AllButOneHit, r.TotalSims)
}

// AllButTwoProbability returns AllButTwoHit / TotalSims, and false when
// the count is not reported for this prop set size.
func (r CorrelationResult) AllButTwoProbability() (float64, bool) {
	if r.AllButTwoHit == nil {
		return 0, false
	}
	return ratio(*r.AllButTwoHit, r.TotalSims), true
}

func ratio(n, d uint64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// QueryRecord is one logged correlated-probability computation.
type QueryRecord struct {
	ParlayID     string
	PropKeys     []string
	NumProps     int
	AllHit       uint64
	AllButOneHit uint64
	AllButTwoHit *uint64
	TotalSims    uint64
	ComputedAt   int64 // unix ms
	DurationMs   int64
}

// Clone returns a deep copy of the record.
func (r *QueryRecord) Clone() *QueryRecord {
	out := *r
	out.PropKeys = append([]string(nil), r.PropKeys...)
	if r.AllButTwoHit != nil {
		v := *r.AllButTwoHit
		out.AllButTwoHit = &v
	}
	return &out
}
