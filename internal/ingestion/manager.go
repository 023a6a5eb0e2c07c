package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"pickem-lab/internal/observability"
	"pickem-lab/internal/storage"
)

// Clearer is implemented by catalogs that can drop a previous batch.
type Clearer interface {
	Clear(ctx context.Context) error
}

// Manager orchestrates ingestion from a batch source into a catalog.
// The previous metadata is deleted before any other write and the new
// metadata is written last, so readers never see a metadata record that
// disagrees with the bitmaps and stats beside it.
type Manager struct {
	source     BatchSource
	writer     storage.CatalogWriter
	clearFirst bool
	workers    int
	logger     *log.Logger
}

// ManagerOptions contains configuration for creating a Manager.
type ManagerOptions struct {
	Source BatchSource
	Writer storage.CatalogWriter

	// ClearFirst drops the previous batch when Writer implements Clearer.
	ClearFirst bool
	// Workers caps concurrent PutPlayerBitmaps calls. Zero means 8.
	Workers int
	Logger  *log.Logger
}

// NewManager creates a new ingestion manager with the provided source and writer.
func NewManager(opts ManagerOptions) *Manager {
	workers := opts.Workers
	if workers <= 0 {
		workers = 8
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		source:     opts.Source,
		writer:     opts.Writer,
		clearFirst: opts.ClearFirst,
		workers:    workers,
		logger:     logger,
	}
}

// IngestResult summarizes one ingestion run.
type IngestResult struct {
	NumSims  uint64
	Players  int
	Bitmaps  int
	Duration time.Duration
}

// Build validates a batch file and encodes it.
func Build(f *BatchFile) (*Batch, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	b, err := NewBuilder(f.NumSims)
	if err != nil {
		return nil, err
	}
	for _, p := range f.Players {
		if err := b.AddPlayer(p); err != nil {
			return nil, err
		}
	}
	return b.Build(f.Timestamp), nil
}

// Ingest fetches, builds and writes one batch.
func (m *Manager) Ingest(ctx context.Context) (*IngestResult, error) {
	if m.source == nil || m.writer == nil {
		return nil, fmt.Errorf("ingestion manager requires a source and a writer")
	}
	start := time.Now()

	f, err := m.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch batch: %w", err)
	}
	batch, err := Build(f)
	if err != nil {
		return nil, err
	}
	if batch.Metadata.Timestamp == 0 {
		batch.Metadata.Timestamp = start.Unix()
	}

	if err := m.Write(ctx, batch); err != nil {
		return nil, err
	}

	res := &IngestResult{
		NumSims:  batch.Metadata.NumSims,
		Players:  len(batch.Players),
		Bitmaps:  batch.BitmapCount(),
		Duration: time.Since(start),
	}
	observability.RecordIngest(res.Bitmaps, res.Duration.Seconds())
	m.logger.Printf("Ingested batch: num_sims=%d players=%d bitmaps=%d in %s",
		res.NumSims, res.Players, res.Bitmaps, res.Duration.Round(time.Millisecond))
	return res, nil
}

// Write stores an encoded batch. The old metadata is deleted first, then
// bitmaps are written concurrently, then the stats record, the player list
// and finally the new metadata.
func (m *Manager) Write(ctx context.Context, batch *Batch) error {
	if err := m.writer.DeleteMetadata(ctx); err != nil {
		return fmt.Errorf("delete previous metadata: %w", err)
	}
	if m.clearFirst {
		if c, ok := m.writer.(Clearer); ok {
			if err := c.Clear(ctx); err != nil {
				return fmt.Errorf("clear previous batch: %w", err)
			}
		} else {
			m.logger.Printf("Catalog does not support clearing; previous batch keys are overwritten in place")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for player, bitmaps := range batch.Bitmaps {
		g.Go(func() error {
			if err := m.writer.PutPlayerBitmaps(gctx, player, bitmaps); err != nil {
				return fmt.Errorf("put bitmaps for %s: %w", player, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := m.writer.PutAllPlayerStats(ctx, batch.Stats); err != nil {
		return fmt.Errorf("put player stats: %w", err)
	}
	if err := m.writer.PutPlayers(ctx, batch.Players); err != nil {
		return fmt.Errorf("put players: %w", err)
	}
	if err := m.writer.PutMetadata(ctx, &batch.Metadata); err != nil {
		return fmt.Errorf("put metadata: %w", err)
	}
	return nil
}
