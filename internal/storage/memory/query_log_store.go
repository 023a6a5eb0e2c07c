package memory

import (
	"context"
	"sort"
	"sync"

	"pickem-lab/internal/domain"
	"pickem-lab/internal/storage"
)

type queryLogKey struct {
	parlayID   string
	computedAt int64
}

// QueryLogStore is an in-memory implementation of storage.QueryLogStore.
type QueryLogStore struct {
	mu   sync.RWMutex
	data map[queryLogKey]*domain.QueryRecord
}

var _ storage.QueryLogStore = (*QueryLogStore)(nil)

// NewQueryLogStore creates a new in-memory query log.
func NewQueryLogStore() *QueryLogStore {
	return &QueryLogStore{
		data: make(map[queryLogKey]*domain.QueryRecord),
	}
}

// Insert appends a record. Returns ErrDuplicateKey if (parlay_id, computed_at) exists.
func (s *QueryLogStore) Insert(_ context.Context, r *domain.QueryRecord) error {
	if r == nil || r.ParlayID == "" {
		return storage.ErrInvalidInput
	}

	key := queryLogKey{parlayID: r.ParlayID, computedAt: r.ComputedAt}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[key] = r.Clone()
	return nil
}

// GetByParlayID retrieves records for a parlay, ordered by computed_at ASC.
func (s *QueryLogStore) GetByParlayID(_ context.Context, parlayID string) ([]*domain.QueryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.QueryRecord
	for k, r := range s.data {
		if k.parlayID == parlayID {
			result = append(result, r.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ComputedAt < result[j].ComputedAt
	})

	return result, nil
}

// GetRecent retrieves up to limit records, ordered by computed_at DESC.
func (s *QueryLogStore) GetRecent(_ context.Context, limit int) ([]*domain.QueryRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.QueryRecord, 0, len(s.data))
	for _, r := range s.data {
		result = append(result, r.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ComputedAt != result[j].ComputedAt {
			return result[i].ComputedAt > result[j].ComputedAt
		}
		return result[i].ParlayID < result[j].ParlayID
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
