package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pickem-lab/internal/domain"
	"pickem-lab/internal/storage"
)

// Catalog implements storage.Catalog using PostgreSQL.
// All rows are scoped by namespace.
type Catalog struct {
	pool      *Pool
	namespace string
}

// NewCatalog creates a new Catalog for a namespace.
func NewCatalog(pool *Pool, namespace string) *Catalog {
	return &Catalog{pool: pool, namespace: namespace}
}

// Compile-time interface check.
var _ storage.Catalog = (*Catalog)(nil)

// GetMetadata retrieves batch metadata. Returns ErrNotFound if absent.
func (c *Catalog) GetMetadata(ctx context.Context) (*domain.SimulationMetadata, error) {
	query := `
		SELECT num_sims, batch_ts
		FROM simulation_metadata
		WHERE namespace = $1
	`

	var numSims, ts int64
	err := c.pool.QueryRow(ctx, query, c.namespace).Scan(&numSims, &ts)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get simulation metadata: %w", err)
	}
	return &domain.SimulationMetadata{NumSims: uint64(numSims), Timestamp: ts}, nil
}

// GetPlayerBitmap retrieves a compressed bitmap. Returns ErrNotFound if absent.
func (c *Catalog) GetPlayerBitmap(ctx context.Context, playerID, statKey string) ([]byte, error) {
	query := `
		SELECT bitmap
		FROM player_bitmaps
		WHERE namespace = $1 AND player_id = $2 AND stat_key = $3
	`

	var raw []byte
	err := c.pool.QueryRow(ctx, query, c.namespace, playerID, statKey).Scan(&raw)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get player bitmap: %w", err)
	}
	return raw, nil
}

// GetAllPlayerStats retrieves the aggregate stats record. Returns ErrNotFound
// if no player stats are stored.
func (c *Catalog) GetAllPlayerStats(ctx context.Context) (*domain.AggregateStats, error) {
	query := `
		SELECT player_group, player_id, stats, total_sims
		FROM player_stats
		WHERE namespace = $1
	`

	rows, err := c.pool.Query(ctx, query, c.namespace)
	if err != nil {
		return nil, fmt.Errorf("get player stats: %w", err)
	}
	defer rows.Close()

	out := domain.NewAggregateStats()
	n := 0
	for rows.Next() {
		var (
			group     string
			playerID  string
			stats     map[string]map[string]uint64
			totalSims int64
		)
		if err := rows.Scan(&group, &playerID, &stats, &totalSims); err != nil {
			return nil, fmt.Errorf("scan player stats row: %w", err)
		}
		m := out.Group(domain.PlayerGroup(group))
		if m == nil {
			continue
		}
		m[playerID] = domain.PlayerStats{Stats: stats, TotalSims: uint64(totalSims)}
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate player stats rows: %w", err)
	}
	if n == 0 {
		return nil, storage.ErrNotFound
	}
	return out, nil
}

// ListPlayers retrieves the player list ordered by ID. Returns ErrNotFound if empty.
func (c *Catalog) ListPlayers(ctx context.Context) ([]string, error) {
	query := `
		SELECT player_id
		FROM players
		WHERE namespace = $1
		ORDER BY player_id ASC
	`

	rows, err := c.pool.Query(ctx, query, c.namespace)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	players, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan player rows: %w", err)
	}
	if len(players) == 0 {
		return nil, storage.ErrNotFound
	}
	return players, nil
}

// PutMetadata stores batch metadata.
func (c *Catalog) PutMetadata(ctx context.Context, m *domain.SimulationMetadata) error {
	if m == nil || !m.Valid() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO simulation_metadata (namespace, num_sims, batch_ts, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (namespace) DO UPDATE
		SET num_sims = EXCLUDED.num_sims, batch_ts = EXCLUDED.batch_ts, updated_at = now()
	`

	if _, err := c.pool.Exec(ctx, query, c.namespace, int64(m.NumSims), m.Timestamp); err != nil {
		// num_sims above MaxInt64 wraps negative and fails the CHECK
		if isCheckViolation(err) {
			return storage.ErrInvalidInput
		}
		return fmt.Errorf("put simulation metadata: %w", err)
	}
	return nil
}

// DeleteMetadata removes batch metadata.
func (c *Catalog) DeleteMetadata(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, `DELETE FROM simulation_metadata WHERE namespace = $1`, c.namespace); err != nil {
		return fmt.Errorf("delete simulation metadata: %w", err)
	}
	return nil
}

// PutPlayerBitmaps replaces all bitmaps for one player atomically.
func (c *Catalog) PutPlayerBitmaps(ctx context.Context, playerID string, bitmaps domain.PlayerBitmaps) error {
	if playerID == "" {
		return storage.ErrInvalidInput
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM player_bitmaps WHERE namespace = $1 AND player_id = $2`,
		c.namespace, playerID,
	); err != nil {
		return fmt.Errorf("delete player bitmaps: %w", err)
	}

	rows := make([][]any, 0, len(bitmaps))
	for statKey, raw := range bitmaps {
		rows = append(rows, []any{c.namespace, playerID, statKey, raw})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"player_bitmaps"},
		[]string{"namespace", "player_id", "stat_key", "bitmap"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy player bitmaps: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// PutAllPlayerStats replaces the aggregate stats record atomically.
func (c *Catalog) PutAllPlayerStats(ctx context.Context, stats *domain.AggregateStats) error {
	if stats == nil {
		return storage.ErrInvalidInput
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM player_stats WHERE namespace = $1`, c.namespace); err != nil {
		return fmt.Errorf("delete player stats: %w", err)
	}

	query := `
		INSERT INTO player_stats (namespace, player_group, player_id, stats, total_sims)
		VALUES ($1, $2, $3, $4, $5)
	`

	batch := &pgx.Batch{}
	for _, g := range domain.PlayerGroups {
		for playerID, ps := range stats.Group(g) {
			s := ps.Stats
			if s == nil {
				s = map[string]map[string]uint64{}
			}
			batch.Queue(query, c.namespace, string(g), playerID, s, int64(ps.TotalSims))
		}
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert player stats: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// PutPlayers replaces the player list and drops bitmaps of unlisted players
// atomically.
func (c *Catalog) PutPlayers(ctx context.Context, players []string) error {
	if players == nil {
		players = []string{}
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM player_bitmaps WHERE namespace = $1 AND NOT (player_id = ANY($2))`,
		c.namespace, players,
	); err != nil {
		return fmt.Errorf("delete stale player bitmaps: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM players WHERE namespace = $1`, c.namespace); err != nil {
		return fmt.Errorf("delete players: %w", err)
	}

	query := `
		INSERT INTO players (namespace, player_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	for _, p := range players {
		if _, err := tx.Exec(ctx, query, c.namespace, p); err != nil {
			return fmt.Errorf("insert player: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
