package correlation

import (
	"fmt"
	"math"
	"math/bits"

	"pickem-lab/internal/bitmap"
	"pickem-lab/internal/domain"
)

// Phi returns the phi coefficient (Pearson correlation of two binary
// variables) between two decoded bitmaps over the first numSims runs.
// Returns 0 when either prop always or never hits.
func Phi(a, b []byte, numSims uint64) (float64, error) {
	if numSims == 0 {
		return 0, ErrInvalidNumSims
	}
	need := domain.BitmapByteLen(numSims)
	if len(a) < need || len(b) < need {
		return 0, fmt.Errorf("%w: need %d bytes", ErrBitmapLengthMismatch, need)
	}

	var nA, nB, nAB uint64
	for w := 0; w < bitmap.WordCount(numSims); w++ {
		mask := bitmap.WordMask(numSims, w)
		x := bitmap.LoadWord(a, w) & mask
		y := bitmap.LoadWord(b, w) & mask
		nA += uint64(bits.OnesCount64(x))
		nB += uint64(bits.OnesCount64(y))
		nAB += uint64(bits.OnesCount64(x & y))
	}

	n := float64(numSims)
	fa, fb, fab := float64(nA), float64(nB), float64(nAB)
	denom := math.Sqrt(fa * (n - fa) * fb * (n - fb))
	if denom == 0 {
		return 0, nil
	}
	return (n*fab - fa*fb) / denom, nil
}
