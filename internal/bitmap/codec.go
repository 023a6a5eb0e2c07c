// Package bitmap encodes and decodes per-simulation outcome bitmaps.
//
// A decoded bitmap is a bit-packed byte slice of length ceil(num_sims/8).
// Bit i (LSB-first within each byte) is 1 when simulation run i met the
// Over condition of one (player, stat, threshold) combination.
package bitmap

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// ErrCorrupt is returned when a stored bitmap cannot be decompressed.
var ErrCorrupt = errors.New("corrupt bitmap")

// MaxDecodedLen bounds decompressed output (1<<27 bytes covers 2^30 simulations).
const MaxDecodedLen = 1 << 27

// Decode decompresses a stored bitmap. gzip is the producer format; zlib and
// raw DEFLATE streams are accepted as well.
func Decode(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrCorrupt)
	}

	var (
		r   io.Reader
		err error
	)
	switch {
	case isGzip(raw):
		r, err = gzip.NewReader(bytes.NewReader(raw))
	case isZlib(raw):
		r, err = zlib.NewReader(bytes.NewReader(raw))
	default:
		r = flate.NewReader(bytes.NewReader(raw))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	out, err := io.ReadAll(io.LimitReader(r, MaxDecodedLen+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(out) > MaxDecodedLen {
		return nil, fmt.Errorf("%w: decoded size exceeds %d bytes", ErrCorrupt, MaxDecodedLen)
	}
	return out, nil
}

// Encode gzip-compresses a decoded bitmap.
func Encode(buf []byte) ([]byte, error) {
	var out bytes.Buffer
	w, err := gzip.NewWriterLevel(&out, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("create gzip writer: %w", err)
	}
	if _, err := w.Write(buf); err != nil {
		return nil, fmt.Errorf("compress bitmap: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close gzip writer: %w", err)
	}
	return out.Bytes(), nil
}

// Invert returns a new buffer with every byte complemented. Padding bits in
// the last byte are inverted too; counting must stay bounded to num_sims.
func Invert(buf []byte) []byte {
	out := make([]byte, len(buf))
	for i, b := range buf {
		out[i] = ^b
	}
	return out
}

func isGzip(raw []byte) bool {
	return len(raw) >= 2 && raw[0] == 0x1f && raw[1] == 0x8b
}

// isZlib checks the RFC 1950 header: CM=8 and FCHECK makes CMF*256+FLG a multiple of 31.
func isZlib(raw []byte) bool {
	if len(raw) < 2 {
		return false
	}
	cmf, flg := raw[0], raw[1]
	return cmf&0x0f == 8 && cmf>>4 <= 7 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}
