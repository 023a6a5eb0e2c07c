package idhash

import (
	"crypto/sha256"
	"sort"
	"strings"

	"github.com/mr-tron/base58"
)

// ComputeParlayID computes a deterministic parlay_id using SHA256.
// Formula: SHA256(sorted(legs) joined by "|")
// Leg order does not affect the ID. Returns base58-encoded hash.
func ComputeParlayID(legs []string) string {
	sorted := append([]string(nil), legs...)
	sort.Strings(sorted)

	hash := sha256.Sum256([]byte(strings.Join(sorted, "|")))
	return base58.Encode(hash[:])
}

// ParlayLeg renders one leg for ComputeParlayID: "<prop_key>:<side>".
func ParlayLeg(propKey, side string) string {
	return propKey + ":" + side
}
