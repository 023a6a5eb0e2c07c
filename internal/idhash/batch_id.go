package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeBatchID computes a deterministic batch_id using SHA256.
// Formula: SHA256(namespace|num_sims|timestamp)
// Returns hex-encoded hash (64 characters).
func ComputeBatchID(namespace string, numSims uint64, timestamp int64) string {
	data := fmt.Sprintf("%s|%d|%d", namespace, numSims, timestamp)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
