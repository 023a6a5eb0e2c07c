package ingestion

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// BatchSource provides raw simulator output.
type BatchSource interface {
	// Fetch returns one batch. The result is validated by the Manager.
	Fetch(ctx context.Context) (*BatchFile, error)
}

// FileSource reads a batch from a JSON file. Gzipped files are detected by
// their magic bytes.
type FileSource struct {
	Path string
}

// NewFileSource creates a file source.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Fetch reads and parses the file.
func (s *FileSource) Fetch(ctx context.Context) (*BatchFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	return ReadBatch(f)
}

// ReadBatch parses a batch from r, transparently gunzipping.
func ReadBatch(r io.Reader) (*BatchFile, error) {
	br := bufio.NewReader(r)
	magic, _ := br.Peek(2)

	var src io.Reader = br
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip batch: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	var f BatchFile
	dec := json.NewDecoder(src)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}
	return &f, nil
}
