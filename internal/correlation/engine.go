// Package correlation computes joint hit counts across prop bitmaps.
//
// For every simulation run the engine counts how many of the N input
// bitmaps have the bit set, then tallies runs where all N hit, exactly
// N-1 hit, and (for N >= 6) exactly N-2 hit.
//
// Counting works on 64 runs at a time. Each input word is added into a
// 4-plane bit-sliced counter (plane j holds bit j of the per-run hit count),
// so one pass over the words yields per-run counts for all 64 lanes; the
// equality masks for N, N-1 and N-2 are then popcounted.
package correlation

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"runtime"

	"golang.org/x/sync/errgroup"

	"pickem-lab/internal/bitmap"
	"pickem-lab/internal/domain"
)

// Engine errors
var (
	ErrTooFewProps          = errors.New("correlation requires at least 2 props")
	ErrTooManyProps         = errors.New("correlation supports at most 8 props")
	ErrBitmapLengthMismatch = errors.New("bitmap shorter than ceil(num_sims/8)")
	ErrInvalidNumSims       = errors.New("num_sims must be positive")
)

// DefaultParallelMinWords is the word count below which counting runs on
// the calling goroutine. 4096 words = 262144 simulations.
const DefaultParallelMinWords = 4096

// Options configures an Engine.
type Options struct {
	// Workers caps concurrent chunk reducers. Zero means GOMAXPROCS.
	Workers int
	// ParallelMinWords is the minimum word count for chunked reduction.
	// Zero means DefaultParallelMinWords; negative disables parallelism.
	ParallelMinWords int
}

// Engine computes CorrelationResults. Safe for concurrent use.
type Engine struct {
	workers          int
	parallelMinWords int
}

// NewEngine creates an engine.
func NewEngine(opts Options) *Engine {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	minWords := opts.ParallelMinWords
	if minWords == 0 {
		minWords = DefaultParallelMinWords
	}
	return &Engine{workers: workers, parallelMinWords: minWords}
}

// counts is a partial tally over a word range.
type counts struct {
	allHit, allButOne, allButTwo uint64
}

func (c *counts) add(o counts) {
	c.allHit += o.allHit
	c.allButOne += o.allButOne
	c.allButTwo += o.allButTwo
}

// Correlate counts joint hits across decoded bitmaps.
// Bitmaps may be longer than ceil(numSims/8); bits past numSims are ignored.
func (e *Engine) Correlate(ctx context.Context, bitmaps [][]byte, numSims uint64) (domain.CorrelationResult, error) {
	n := len(bitmaps)
	if n < domain.MinCorrelatedProps {
		return domain.CorrelationResult{}, ErrTooFewProps
	}
	if n > domain.MaxCorrelatedProps {
		return domain.CorrelationResult{}, ErrTooManyProps
	}
	if numSims == 0 {
		return domain.CorrelationResult{}, ErrInvalidNumSims
	}
	need := domain.BitmapByteLen(numSims)
	for i, b := range bitmaps {
		if len(b) < need {
			return domain.CorrelationResult{}, fmt.Errorf("%w: bitmap %d has %d bytes, need %d",
				ErrBitmapLengthMismatch, i, len(b), need)
		}
	}

	words := bitmap.WordCount(numSims)

	var total counts
	if e.parallelMinWords < 0 || words < e.parallelMinWords || e.workers == 1 {
		total = countRange(bitmaps, numSims, 0, words)
	} else {
		var err error
		total, err = e.countParallel(ctx, bitmaps, numSims, words)
		if err != nil {
			return domain.CorrelationResult{}, err
		}
	}

	res := domain.CorrelationResult{
		NumProps:     n,
		AllHit:       total.allHit,
		AllButOneHit: total.allButOne,
		TotalSims:    numSims,
	}
	if n >= domain.AllButTwoMinProps {
		v := total.allButTwo
		res.AllButTwoHit = &v
	}
	return res, nil
}

func (e *Engine) countParallel(ctx context.Context, bitmaps [][]byte, numSims uint64, words int) (counts, error) {
	chunks := e.workers * 4
	chunkSize := (words + chunks - 1) / chunks
	if chunkSize < 256 {
		chunkSize = 256
	}

	partial := make([]counts, (words+chunkSize-1)/chunkSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range partial {
		from := i * chunkSize
		to := min(from+chunkSize, words)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			partial[i] = countRange(bitmaps, numSims, from, to)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return counts{}, err
	}

	var total counts
	for _, p := range partial {
		total.add(p)
	}
	return total, nil
}

// countRange tallies words [from, to).
func countRange(bitmaps [][]byte, numSims uint64, from, to int) counts {
	n := uint(len(bitmaps))
	var c counts
	for w := from; w < to; w++ {
		var b0, b1, b2, b3 uint64
		for _, bm := range bitmaps {
			x := bitmap.LoadWord(bm, w)
			// ripple-carry add of x into the 4-plane counter
			carry := b0 & x
			b0 ^= x
			x = carry
			carry = b1 & x
			b1 ^= x
			x = carry
			carry = b2 & x
			b2 ^= x
			b3 ^= carry
		}
		planes := [4]uint64{b0, b1, b2, b3}
		mask := bitmap.WordMask(numSims, w)

		c.allHit += uint64(bits.OnesCount64(equal(planes, n) & mask))
		c.allButOne += uint64(bits.OnesCount64(equal(planes, n-1) & mask))
		if n >= domain.AllButTwoMinProps {
			c.allButTwo += uint64(bits.OnesCount64(equal(planes, n-2) & mask))
		}
	}
	return c
}

// equal returns the lanes whose counter value is k.
func equal(planes [4]uint64, k uint) uint64 {
	m := ^uint64(0)
	for j := uint(0); j < 4; j++ {
		if k&(1<<j) != 0 {
			m &= planes[j]
		} else {
			m &^= planes[j]
		}
	}
	return m
}
