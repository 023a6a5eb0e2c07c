package storage

import (
	"context"

	"pickem-lab/internal/domain"
)

// StatsSource provides the aggregate stats record of the current batch.
type StatsSource interface {
	// GetAllPlayerStats retrieves the aggregate stats record. Returns ErrNotFound if absent.
	GetAllPlayerStats(ctx context.Context) (*domain.AggregateStats, error)
}

// SimulationCatalog provides read access to one simulation batch.
// All methods are read-only and may be called concurrently.
type SimulationCatalog interface {
	StatsSource

	// GetMetadata retrieves batch metadata. Returns ErrNotFound if absent.
	GetMetadata(ctx context.Context) (*domain.SimulationMetadata, error)

	// GetPlayerBitmap retrieves the compressed bitmap for (player, stat key).
	// Returns ErrNotFound if the player or the stat key is absent.
	GetPlayerBitmap(ctx context.Context, playerID, statKey string) ([]byte, error)

	// ListPlayers retrieves normalized player IDs present in the batch.
	// Returns ErrNotFound if the player list is absent.
	ListPlayers(ctx context.Context) ([]string, error)
}

// CatalogWriter replaces the stored simulation batch.
// Writes overwrite existing records; there are no incremental updates.
type CatalogWriter interface {
	// PutMetadata stores batch metadata. Returns ErrInvalidInput if NumSims is zero.
	PutMetadata(ctx context.Context, m *domain.SimulationMetadata) error

	// DeleteMetadata removes batch metadata, marking the stored batch as
	// being rewritten. Deleting absent metadata is not an error.
	DeleteMetadata(ctx context.Context) error

	// PutPlayerBitmaps stores the full set of compressed bitmaps for one player.
	PutPlayerBitmaps(ctx context.Context, playerID string, bitmaps domain.PlayerBitmaps) error

	// PutAllPlayerStats stores the aggregate stats record.
	PutAllPlayerStats(ctx context.Context, stats *domain.AggregateStats) error

	// PutPlayers stores the player list and drops the bitmaps of players
	// that are no longer listed.
	PutPlayers(ctx context.Context, players []string) error
}

// Catalog is a read/write simulation catalog backend.
type Catalog interface {
	SimulationCatalog
	CatalogWriter
}

// QueryLogStore provides access to the correlated query log.
type QueryLogStore interface {
	// Insert appends a record. Returns ErrDuplicateKey if (parlay_id, computed_at) exists.
	Insert(ctx context.Context, r *domain.QueryRecord) error

	// GetByParlayID retrieves records for a parlay, ordered by computed_at ASC.
	GetByParlayID(ctx context.Context, parlayID string) ([]*domain.QueryRecord, error)

	// GetRecent retrieves up to limit records, ordered by computed_at DESC.
	GetRecent(ctx context.Context, limit int) ([]*domain.QueryRecord, error)
}
