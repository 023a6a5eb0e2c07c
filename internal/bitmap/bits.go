package bitmap

import (
	"encoding/binary"
	"errors"
	"math/bits"

	"pickem-lab/internal/domain"
)

// ErrShortBuffer is returned when a buffer holds fewer than ceil(numSims/8) bytes.
var ErrShortBuffer = errors.New("bitmap shorter than num_sims")

// Pack converts per-simulation results into an LSB-first bitmap.
func Pack(results []bool) []byte {
	out := make([]byte, domain.BitmapByteLen(uint64(len(results))))
	for i, hit := range results {
		if hit {
			out[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return out
}

// Test reports whether bit i is set. Out-of-range indices are unset.
func Test(buf []byte, i uint64) bool {
	idx := i / 8
	if idx >= uint64(len(buf)) {
		return false
	}
	return buf[idx]&(1<<(i%8)) != 0
}

// Count returns the number of set bits among the first numSims bits.
func Count(buf []byte, numSims uint64) (uint64, error) {
	if len(buf) < domain.BitmapByteLen(numSims) {
		return 0, ErrShortBuffer
	}
	var n uint64
	words := WordCount(numSims)
	for w := 0; w < words; w++ {
		n += uint64(bits.OnesCount64(LoadWord(buf, w) & WordMask(numSims, w)))
	}
	return n, nil
}

// WordCount returns the number of 64-bit words covering numSims bits.
func WordCount(numSims uint64) int {
	return int((numSims + 63) / 64)
}

// LoadWord returns simulations [64w, 64w+64) as a uint64 (bit k = sim 64w+k).
// Bytes past the end of buf read as zero.
func LoadWord(buf []byte, w int) uint64 {
	off := w * 8
	if off+8 <= len(buf) {
		return binary.LittleEndian.Uint64(buf[off:])
	}
	var tmp [8]byte
	if off < len(buf) {
		copy(tmp[:], buf[off:])
	}
	return binary.LittleEndian.Uint64(tmp[:])
}

// WordMask returns the mask of bits in word w that fall below numSims.
func WordMask(numSims uint64, w int) uint64 {
	start := uint64(w) * 64
	if numSims <= start {
		return 0
	}
	remaining := numSims - start
	if remaining >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << remaining) - 1
}
