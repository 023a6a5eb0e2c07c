package stub

import (
	"context"

	"pickem-lab/internal/ingestion"
)

// StubBatchSource returns a fixed in-memory batch for testing.
// Implements ingestion.BatchSource interface.
type StubBatchSource struct {
	batch *ingestion.BatchFile
	err   error
	calls int
}

// NewStubBatchSource creates a new stub source with the given batch.
func NewStubBatchSource(batch *ingestion.BatchFile) *StubBatchSource {
	return &StubBatchSource{batch: batch}
}

// NewFailingBatchSource creates a stub source that always returns err.
func NewFailingBatchSource(err error) *StubBatchSource {
	return &StubBatchSource{err: err}
}

// Fetch returns the configured batch or error.
func (s *StubBatchSource) Fetch(_ context.Context) (*ingestion.BatchFile, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.batch, nil
}

// Calls returns how many times Fetch was called.
func (s *StubBatchSource) Calls() int {
	return s.calls
}
