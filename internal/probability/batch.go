package probability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pickem-lab/internal/bitmap"
	"pickem-lab/internal/domain"
	"pickem-lab/internal/observability"
	"pickem-lab/internal/stats"
	"pickem-lab/internal/storage"
)

type bitmapKey struct {
	playerID string
	statKey  string
}

// Batch is the read-side arena for one simulation batch. It owns the stats
// table and the decoded bitmap cache; both are populated on first access and
// live as long as the batch is served.
//
// Every catalog read made to fill the arena is followed by a metadata read.
// If the catalog no longer holds this batch the data is discarded and
// ErrBatchChanged is returned, so the arena never mixes two batches.
type Batch struct {
	ID       string
	Metadata domain.SimulationMetadata
	LoadedAt time.Time
	Stats    *stats.Table

	catalog storage.SimulationCatalog

	mu      sync.RWMutex
	bitmaps map[bitmapKey][]byte

	playersMu     sync.Mutex
	playersLoaded bool
	players       map[string]struct{}
}

func newBatch(id string, meta domain.SimulationMetadata, catalog storage.SimulationCatalog) *Batch {
	b := &Batch{
		ID:       id,
		Metadata: meta,
		LoadedAt: time.Now(),
		catalog:  catalog,
		bitmaps:  make(map[bitmapKey][]byte),
	}
	b.Stats = stats.NewTable(batchStats{b})
	return b
}

// batchStats feeds the stats table, checking the record belongs to the batch.
type batchStats struct {
	b *Batch
}

func (s batchStats) GetAllPlayerStats(ctx context.Context) (*domain.AggregateStats, error) {
	start := time.Now()
	st, err := s.b.catalog.GetAllPlayerStats(ctx)
	notFound := errors.Is(err, storage.ErrNotFound)
	observability.RecordCatalogFetch("player_stats", time.Since(start).Seconds(), err, notFound)
	if err != nil && !notFound {
		return nil, err
	}
	if verr := s.b.verify(ctx); verr != nil {
		return nil, verr
	}
	return st, err
}

// verify checks that the catalog still holds this batch.
func (b *Batch) verify(ctx context.Context) error {
	start := time.Now()
	meta, err := b.catalog.GetMetadata(ctx)
	notFound := errors.Is(err, storage.ErrNotFound)
	observability.RecordCatalogFetch("metadata", time.Since(start).Seconds(), err, notFound)
	switch {
	case notFound:
		return fmt.Errorf("%w: metadata removed", ErrBatchChanged)
	case err != nil:
		return fmt.Errorf("verify batch metadata: %w", err)
	case *meta != b.Metadata:
		return fmt.Errorf("%w: catalog now holds num_sims=%d timestamp=%d",
			ErrBatchChanged, meta.NumSims, meta.Timestamp)
	}
	return nil
}

// Bitmap returns the decoded Over bitmap for (playerID, statKey).
// The returned slice is shared; callers must not modify it.
func (b *Batch) Bitmap(ctx context.Context, playerID, statKey string) ([]byte, error) {
	key := bitmapKey{playerID: playerID, statKey: statKey}

	b.mu.RLock()
	buf, ok := b.bitmaps[key]
	b.mu.RUnlock()
	if ok {
		observability.RecordBitmapCache(true)
		return buf, nil
	}
	observability.RecordBitmapCache(false)

	start := time.Now()
	raw, err := b.catalog.GetPlayerBitmap(ctx, playerID, statKey)
	notFound := errors.Is(err, storage.ErrNotFound)
	observability.RecordCatalogFetch("player_bitmap", time.Since(start).Seconds(), err, notFound)
	if err != nil && !notFound {
		return nil, fmt.Errorf("fetch bitmap %s/%s: %w", playerID, statKey, err)
	}
	if verr := b.verify(ctx); verr != nil {
		return nil, verr
	}
	if notFound {
		return nil, fmt.Errorf("%w: bitmap %s/%s", ErrNoData, playerID, statKey)
	}

	buf, err = bitmap.Decode(raw)
	if err != nil {
		observability.RecordBitmapCorrupt()
		return nil, fmt.Errorf("bitmap %s/%s: %w", playerID, statKey, err)
	}
	if need := b.Metadata.ByteLen(); len(buf) < need {
		observability.RecordBitmapCorrupt()
		return nil, fmt.Errorf("bitmap %s/%s: %w: decoded %d bytes, want %d",
			playerID, statKey, bitmap.ErrCorrupt, len(buf), need)
	}

	b.mu.Lock()
	if cached, ok := b.bitmaps[key]; ok {
		buf = cached
	} else {
		b.bitmaps[key] = buf
	}
	b.mu.Unlock()
	return buf, nil
}

// CachedBitmaps returns the number of decoded bitmaps held by the batch.
func (b *Batch) CachedBitmaps() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bitmaps)
}

// HasPlayer reports whether the player is listed in the batch. Falls back to
// the stats record when the catalog has no player list.
func (b *Batch) HasPlayer(ctx context.Context, playerID string) (bool, error) {
	players, err := b.loadPlayers(ctx)
	if err != nil {
		return false, err
	}
	if players != nil {
		_, ok := players[playerID]
		return ok, nil
	}
	return b.Stats.HasPlayer(ctx, playerID)
}

func (b *Batch) loadPlayers(ctx context.Context) (map[string]struct{}, error) {
	b.playersMu.Lock()
	defer b.playersMu.Unlock()

	if b.playersLoaded {
		return b.players, nil
	}

	start := time.Now()
	list, err := b.catalog.ListPlayers(ctx)
	notFound := errors.Is(err, storage.ErrNotFound)
	observability.RecordCatalogFetch("players_list", time.Since(start).Seconds(), err, notFound)
	if err != nil && !notFound {
		return nil, fmt.Errorf("list players: %w", err)
	}
	if verr := b.verify(ctx); verr != nil {
		return nil, verr
	}
	switch {
	case err == nil:
		b.players = make(map[string]struct{}, len(list))
		for _, p := range list {
			b.players[p] = struct{}{}
		}
	case notFound:
		b.players = nil
	}
	b.playersLoaded = true
	return b.players, nil
}
