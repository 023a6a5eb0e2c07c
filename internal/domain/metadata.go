package domain

// SimulationMetadata describes one simulation batch.
// Stored as <namespace>_simulation_metadata.
type SimulationMetadata struct {
	NumSims   uint64 `json:"num_sims"`            // independent simulation runs, > 0
	Timestamp int64  `json:"timestamp,omitempty"` // batch creation time (unix seconds), optional
}

// ByteLen returns the decoded bitmap length in bytes: ceil(NumSims/8).
func (m SimulationMetadata) ByteLen() int {
	return BitmapByteLen(m.NumSims)
}

// Valid reports whether the metadata describes a usable batch.
func (m SimulationMetadata) Valid() bool {
	return m.NumSims > 0
}

// BitmapByteLen returns ceil(numSims/8).
func BitmapByteLen(numSims uint64) int {
	return int((numSims + 7) / 8)
}

// PlayerBitmaps maps stat keys (e.g. "home_runs_1_plus", "first_hit") to
// compressed bitmaps for a single player.
type PlayerBitmaps map[string][]byte
