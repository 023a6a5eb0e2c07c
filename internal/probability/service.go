// Package probability answers single-prop, correlated and pairwise
// probability queries against the current simulation batch.
package probability

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"pickem-lab/internal/bitmap"
	"pickem-lab/internal/correlation"
	"pickem-lab/internal/domain"
	"pickem-lab/internal/idhash"
	"pickem-lab/internal/observability"
	"pickem-lab/internal/propkey"
	"pickem-lab/internal/stats"
	"pickem-lab/internal/storage"
)

// Source identifies where a single-prop probability came from.
type Source string

// Probability sources.
const (
	SourceStats  Source = "stats"
	SourceBitmap Source = "bitmap"
)

// SingleResult is the answer to a single-prop query.
type SingleResult struct {
	Key         string
	Prop        domain.PropKey
	Probability float64
	HitCount    uint64
	TotalSims   uint64
	Source      Source
}

// CorrelatedResult is the answer to a correlated query.
type CorrelatedResult struct {
	domain.CorrelationResult
	ParlayID string
	Legs     []string
	BatchID  string
	Duration time.Duration
}

// Options for creating a Service.
type Options struct {
	Catalog   storage.SimulationCatalog // required
	QueryLog  storage.QueryLogStore     // optional
	Engine    *correlation.Engine       // nil uses defaults
	Namespace string                    // used in batch IDs
	Logger    *log.Logger
}

// Service answers probability queries. Safe for concurrent use.
type Service struct {
	catalog   storage.SimulationCatalog
	queryLog  storage.QueryLogStore
	engine    *correlation.Engine
	namespace string
	logger    *log.Logger

	batch     atomic.Pointer[Batch]
	refreshMu sync.Mutex
}

// NewService creates a service. No batch is loaded until the first query or Refresh.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	engine := opts.Engine
	if engine == nil {
		engine = correlation.NewEngine(correlation.Options{})
	}
	return &Service{
		catalog:   opts.Catalog,
		queryLog:  opts.QueryLog,
		engine:    engine,
		namespace: opts.Namespace,
		logger:    logger,
	}
}

// Refresh reloads metadata and swaps in a new batch when it changed.
// Returns true when a new batch was installed.
func (s *Service) Refresh(ctx context.Context) (bool, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	start := time.Now()
	meta, err := s.catalog.GetMetadata(ctx)
	notFound := errors.Is(err, storage.ErrNotFound)
	observability.RecordCatalogFetch("metadata", time.Since(start).Seconds(), err, notFound)
	if err != nil {
		observability.RecordBatchRefresh("error")
		if notFound {
			return false, fmt.Errorf("%w: simulation metadata", ErrNoData)
		}
		return false, fmt.Errorf("get metadata: %w", err)
	}
	if !meta.Valid() {
		observability.RecordBatchRefresh("error")
		return false, fmt.Errorf("%w: num_sims is 0", ErrNoData)
	}

	if cur := s.batch.Load(); cur != nil && cur.Metadata == *meta {
		observability.RecordBatchRefresh("unchanged")
		return false, nil
	}

	id := idhash.ComputeBatchID(s.namespace, meta.NumSims, meta.Timestamp)
	b := newBatch(id, *meta, s.catalog)
	s.batch.Store(b)

	observability.RecordBatchRefresh("swapped")
	observability.UpdateBatch(meta.NumSims, b.LoadedAt.Unix())
	s.logger.Printf("Loaded batch %s: num_sims=%d", shortID(id), meta.NumSims)
	return true, nil
}

// Run refreshes the batch every interval until ctx is done. Errors are logged.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.Printf("Batch refresh failed: %v", err)
			}
		}
	}
}

// Current returns the batch being served, loading one if needed.
func (s *Service) Current(ctx context.Context) (*Batch, error) {
	if b := s.batch.Load(); b != nil {
		return b, nil
	}
	if _, err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s.batch.Load(), nil
}

// Loaded returns the batch being served without loading one. Nil before the
// first successful refresh.
func (s *Service) Loaded() *Batch {
	return s.batch.Load()
}

// withBatch runs fn against the served batch. When fn finds that the catalog
// moved on, the batch is refreshed and fn runs once more on the new one. While
// a batch is being rewritten the ErrBatchChanged from the first run is returned.
func (s *Service) withBatch(ctx context.Context, fn func(*Batch) error) error {
	b, err := s.Current(ctx)
	if err != nil {
		return err
	}
	err = fn(b)
	if !errors.Is(err, ErrBatchChanged) {
		return err
	}

	if _, rerr := s.Refresh(ctx); rerr != nil {
		if errors.Is(rerr, ErrNoData) {
			return err
		}
		return rerr
	}
	next := s.batch.Load()
	if next == b {
		return err
	}
	return fn(next)
}

// Probability returns the hit probability of one canonical prop key.
// The stats table answers first; the bitmap store is the fallback.
func (s *Service) Probability(ctx context.Context, key string) (res *SingleResult, err error) {
	start := time.Now()
	defer func() { observability.RecordQuery("single", time.Since(start).Seconds(), err) }()

	prop, err := propkey.Parse(key)
	if err != nil {
		return nil, err
	}
	err = s.withBatch(ctx, func(b *Batch) error {
		r, err := single(ctx, b, key, prop)
		res = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func single(ctx context.Context, b *Batch, key string, prop domain.PropKey) (*SingleResult, error) {
	hit, ok, err := b.Stats.Find(ctx, prop.Player, prop.StatType, prop.IntThreshold())
	if err != nil {
		return nil, err
	}
	if ok {
		observability.RecordProbabilitySource(string(SourceStats))
		return &SingleResult{
			Key:         key,
			Prop:        prop,
			Probability: hit.Probability,
			HitCount:    hit.Entry.HitCount,
			TotalSims:   hit.Entry.TotalSims,
			Source:      SourceStats,
		}, nil
	}

	buf, err := b.Bitmap(ctx, prop.Player, prop.StatKey())
	if err != nil {
		return nil, err
	}
	hits, err := bitmap.Count(buf, b.Metadata.NumSims)
	if err != nil {
		return nil, err
	}
	observability.RecordProbabilitySource(string(SourceBitmap))
	return &SingleResult{
		Key:         key,
		Prop:        prop,
		Probability: float64(hits) / float64(b.Metadata.NumSims),
		HitCount:    hits,
		TotalSims:   b.Metadata.NumSims,
		Source:      SourceBitmap,
	}, nil
}

// Correlate computes joint and partial hit probabilities for 2-8 props.
// Any missing or corrupt bitmap fails the whole query.
func (s *Service) Correlate(ctx context.Context, props []domain.PropQuery) (res *CorrelatedResult, err error) {
	start := time.Now()
	defer func() { observability.RecordQuery("correlated", time.Since(start).Seconds(), err) }()

	switch {
	case len(props) < domain.MinCorrelatedProps:
		return nil, fmt.Errorf("%w: got %d", correlation.ErrTooFewProps, len(props))
	case len(props) > domain.MaxCorrelatedProps:
		return nil, fmt.Errorf("%w: got %d", correlation.ErrTooManyProps, len(props))
	}
	observability.RecordPropsPerQuery(len(props))

	err = s.withBatch(ctx, func(b *Batch) error {
		bufs, legs, err := s.resolve(ctx, b, props)
		if err != nil {
			return err
		}
		result, err := s.engine.Correlate(ctx, bufs, b.Metadata.NumSims)
		if err != nil {
			return err
		}
		res = &CorrelatedResult{
			CorrelationResult: result,
			ParlayID:          idhash.ComputeParlayID(legs),
			Legs:              legs,
			BatchID:           b.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Duration = time.Since(start)
	s.record(ctx, res)
	return res, nil
}

// PairCorrelation returns the phi coefficient between two props.
func (s *Service) PairCorrelation(ctx context.Context, a, b domain.PropQuery) (phi float64, err error) {
	start := time.Now()
	defer func() { observability.RecordQuery("pair", time.Since(start).Seconds(), err) }()

	err = s.withBatch(ctx, func(batch *Batch) error {
		bufs, _, err := s.resolve(ctx, batch, []domain.PropQuery{a, b})
		if err != nil {
			return err
		}
		v, err := correlation.Phi(bufs[0], bufs[1], batch.Metadata.NumSims)
		phi = v
		return err
	})
	if err != nil {
		return 0, err
	}
	return phi, nil
}

// LookupTable returns the probability of every (player, stat, threshold)
// in the stats record.
func (s *Service) LookupTable(ctx context.Context) (table stats.LookupTable, err error) {
	err = s.withBatch(ctx, func(b *Batch) error {
		t, err := b.Stats.All(ctx)
		table = t
		return err
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

// HasPlayer reports whether the player (display name or key) is in the batch.
func (s *Service) HasPlayer(ctx context.Context, name string) (ok bool, err error) {
	err = s.withBatch(ctx, func(b *Batch) error {
		found, err := b.HasPlayer(ctx, domain.NormalizePlayerName(name))
		ok = found
		return err
	})
	return ok, err
}

// RecentQueries returns the latest logged correlated queries, newest first.
func (s *Service) RecentQueries(ctx context.Context, limit int) ([]*domain.QueryRecord, error) {
	if s.queryLog == nil {
		return nil, ErrQueryLogDisabled
	}
	return s.queryLog.GetRecent(ctx, limit)
}

// QueriesByParlay returns every logged computation of one parlay, oldest first.
func (s *Service) QueriesByParlay(ctx context.Context, parlayID string) ([]*domain.QueryRecord, error) {
	if s.queryLog == nil {
		return nil, ErrQueryLogDisabled
	}
	return s.queryLog.GetByParlayID(ctx, parlayID)
}

// resolve fetches the Over bitmaps for props concurrently and applies sides.
// Returns the buffers and the parlay legs in input order.
func (s *Service) resolve(ctx context.Context, b *Batch, props []domain.PropQuery) ([][]byte, []string, error) {
	bufs := make([][]byte, len(props))
	legs := make([]string, len(props))
	sides := make([]domain.Side, len(props))

	for i, q := range props {
		side, ok := domain.ParseSide(string(q.Side))
		if !ok {
			return nil, nil, fmt.Errorf("%w: prop %d: %q", ErrInvalidSide, i, q.Side)
		}
		if domain.NormalizePlayerName(q.Player) == "" || q.StatName == "" {
			return nil, nil, fmt.Errorf("%w: prop %d: player and stat_name are required", propkey.ErrMalformed, i)
		}
		sides[i] = side
		legs[i] = idhash.ParlayLeg(q.PlayerKey()+"_"+q.StatKey(), string(side))
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range props {
		g.Go(func() error {
			buf, err := b.Bitmap(gctx, q.PlayerKey(), q.StatKey())
			if err != nil {
				return err
			}
			if sides[i] == domain.SideUnder {
				buf = bitmap.Invert(buf)
			}
			bufs[i] = buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return bufs, legs, nil
}

func (s *Service) record(ctx context.Context, res *CorrelatedResult) {
	if s.queryLog == nil {
		return
	}
	r := &domain.QueryRecord{
		ParlayID:     res.ParlayID,
		PropKeys:     res.Legs,
		NumProps:     res.NumProps,
		AllHit:       res.AllHit,
		AllButOneHit: res.AllButOneHit,
		AllButTwoHit: res.AllButTwoHit,
		TotalSims:    res.TotalSims,
		ComputedAt:   time.Now().UnixMilli(),
		DurationMs:   res.Duration.Milliseconds(),
	}
	err := s.queryLog.Insert(ctx, r)
	observability.RecordQueryLogWrite(err)
	if err != nil {
		s.logger.Printf("Query log insert failed for parlay %s: %v", shortID(res.ParlayID), err)
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
