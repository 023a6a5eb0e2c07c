package memory

import (
	"context"
	"sort"
	"sync"

	"pickem-lab/internal/domain"
	"pickem-lab/internal/storage"
)

// Catalog is an in-memory implementation of storage.Catalog.
type Catalog struct {
	mu       sync.RWMutex
	metadata *domain.SimulationMetadata
	bitmaps  map[string]domain.PlayerBitmaps // keyed by player_id
	stats    *domain.AggregateStats
	players  []string
}

var _ storage.Catalog = (*Catalog)(nil)

// NewCatalog creates a new empty in-memory catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		bitmaps: make(map[string]domain.PlayerBitmaps),
	}
}

// GetMetadata retrieves batch metadata. Returns ErrNotFound if absent.
func (c *Catalog) GetMetadata(_ context.Context) (*domain.SimulationMetadata, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.metadata == nil {
		return nil, storage.ErrNotFound
	}
	m := *c.metadata
	return &m, nil
}

// GetPlayerBitmap retrieves a compressed bitmap. Returns ErrNotFound if absent.
func (c *Catalog) GetPlayerBitmap(_ context.Context, playerID, statKey string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	raw, ok := c.bitmaps[playerID][statKey]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

// GetAllPlayerStats retrieves the aggregate stats record. Returns ErrNotFound if absent.
func (c *Catalog) GetAllPlayerStats(_ context.Context) (*domain.AggregateStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.stats == nil {
		return nil, storage.ErrNotFound
	}
	return c.stats.Clone(), nil
}

// ListPlayers retrieves the player list. Returns ErrNotFound if absent.
func (c *Catalog) ListPlayers(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.players == nil {
		return nil, storage.ErrNotFound
	}
	return append([]string(nil), c.players...), nil
}

// PutMetadata stores batch metadata.
func (c *Catalog) PutMetadata(_ context.Context, m *domain.SimulationMetadata) error {
	if m == nil || !m.Valid() {
		return storage.ErrInvalidInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	mc := *m
	c.metadata = &mc
	return nil
}

// DeleteMetadata removes batch metadata.
func (c *Catalog) DeleteMetadata(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metadata = nil
	return nil
}

// PutPlayerBitmaps replaces all bitmaps for one player.
func (c *Catalog) PutPlayerBitmaps(_ context.Context, playerID string, bitmaps domain.PlayerBitmaps) error {
	if playerID == "" {
		return storage.ErrInvalidInput
	}

	copied := make(domain.PlayerBitmaps, len(bitmaps))
	for k, v := range bitmaps {
		copied[k] = append([]byte(nil), v...)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.bitmaps[playerID] = copied
	return nil
}

// PutAllPlayerStats replaces the aggregate stats record.
func (c *Catalog) PutAllPlayerStats(_ context.Context, stats *domain.AggregateStats) error {
	if stats == nil {
		return storage.ErrInvalidInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats = stats.Clone()
	return nil
}

// PutPlayers replaces the player list and drops bitmaps of unlisted players.
// Stored sorted.
func (c *Catalog) PutPlayers(_ context.Context, players []string) error {
	sorted := append([]string{}, players...)
	sort.Strings(sorted)

	keep := make(map[string]struct{}, len(sorted))
	for _, p := range sorted {
		keep[p] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for p := range c.bitmaps {
		if _, ok := keep[p]; !ok {
			delete(c.bitmaps, p)
		}
	}
	c.players = sorted
	return nil
}
