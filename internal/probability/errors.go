package probability

import "errors"

// Service errors
var (
	// ErrNoData is returned when a player, stat or threshold is absent from
	// both the stats table and the bitmap store, or no batch is loaded.
	ErrNoData = errors.New("no simulation data")
	// ErrInvalidSide is returned for a prop side other than over/under.
	ErrInvalidSide = errors.New("side must be over or under")
	// ErrBatchChanged is returned when the catalog moved to another batch, or
	// is being rewritten, while the served batch was being filled.
	ErrBatchChanged = errors.New("simulation batch changed")
	// ErrQueryLogDisabled is returned by query log reads when no store is configured.
	ErrQueryLogDisabled = errors.New("query log not configured")
)
