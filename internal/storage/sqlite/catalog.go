// Package sqlite implements the simulation catalog in a local SQLite file.
// Used for offline runs of the CLI tools without a Redis or Postgres server.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"pickem-lab/internal/domain"
	"pickem-lab/internal/storage"
	"pickem-lab/internal/storage/migrations"
)

// Catalog implements storage.Catalog on a SQLite database.
type Catalog struct {
	db        *sql.DB
	namespace string
}

// Compile-time interface check.
var _ storage.Catalog = (*Catalog)(nil)

// Open opens (creating if needed) a SQLite catalog file and applies migrations.
// Use ":memory:" for a private in-process database.
func Open(ctx context.Context, path, namespace string) (*Catalog, error) {
	dsn := path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	if path == ":memory:" {
		dsn = path
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrations.RunSQLiteMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Catalog{db: db, namespace: namespace}, nil
}

// NewNamespace returns a catalog sharing c's database under another namespace.
func NewNamespace(c *Catalog, namespace string) *Catalog {
	return &Catalog{db: c.db, namespace: namespace}
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// GetMetadata retrieves batch metadata. Returns ErrNotFound if absent.
func (c *Catalog) GetMetadata(ctx context.Context) (*domain.SimulationMetadata, error) {
	var numSims, ts int64
	err := c.db.QueryRowContext(ctx,
		`SELECT num_sims, batch_ts FROM simulation_metadata WHERE namespace = ?`, c.namespace,
	).Scan(&numSims, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get simulation metadata: %w", err)
	}
	return &domain.SimulationMetadata{NumSims: uint64(numSims), Timestamp: ts}, nil
}

// GetPlayerBitmap retrieves a compressed bitmap. Returns ErrNotFound if absent.
func (c *Catalog) GetPlayerBitmap(ctx context.Context, playerID, statKey string) ([]byte, error) {
	var raw []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT bitmap FROM player_bitmaps WHERE namespace = ? AND player_id = ? AND stat_key = ?`,
		c.namespace, playerID, statKey,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get player bitmap: %w", err)
	}
	return raw, nil
}

// GetAllPlayerStats retrieves the aggregate stats record. Returns ErrNotFound if empty.
func (c *Catalog) GetAllPlayerStats(ctx context.Context) (*domain.AggregateStats, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT player_group, player_id, stats, total_sims FROM player_stats WHERE namespace = ?`, c.namespace)
	if err != nil {
		return nil, fmt.Errorf("get player stats: %w", err)
	}
	defer rows.Close()

	out := domain.NewAggregateStats()
	n := 0
	for rows.Next() {
		var (
			group, playerID string
			statsJSON       []byte
			totalSims       int64
		)
		if err := rows.Scan(&group, &playerID, &statsJSON, &totalSims); err != nil {
			return nil, fmt.Errorf("scan player stats row: %w", err)
		}
		var stats map[string]map[string]uint64
		if err := json.Unmarshal(statsJSON, &stats); err != nil {
			return nil, fmt.Errorf("decode stats for %s: %w", playerID, err)
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
	rows, err := c.db.QueryContext(ctx,
		`SELECT player_id FROM players WHERE namespace = ? ORDER BY player_id ASC`, c.namespace)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var players []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan player row: %w", err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate player rows: %w", err)
	}
	if len(players) == 0 {
		return nil, storage.ErrNotFound
	}
	return players, nil
}

// PutMetadata stores batch metadata.
func (c *Catalog) PutMetadata(ctx context.Context, m *domain.SimulationMetadata) error {
	if m == nil || !m.Valid() || m.NumSims > 1<<62 {
		return storage.ErrInvalidInput
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO simulation_metadata (namespace, num_sims, batch_ts) VALUES (?, ?, ?)
		ON CONFLICT (namespace) DO UPDATE SET num_sims = excluded.num_sims, batch_ts = excluded.batch_ts
	`, c.namespace, int64(m.NumSims), m.Timestamp)
	if err != nil {
		return fmt.Errorf("put simulation metadata: %w", err)
	}
	return nil
}

// DeleteMetadata removes batch metadata.
func (c *Catalog) DeleteMetadata(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM simulation_metadata WHERE namespace = ?`, c.namespace); err != nil {
		return fmt.Errorf("delete simulation metadata: %w", err)
	}
	return nil
}

// PutPlayerBitmaps replaces all bitmaps for one player atomically.
func (c *Catalog) PutPlayerBitmaps(ctx context.Context, playerID string, bitmaps domain.PlayerBitmaps) error {
	if playerID == "" {
		return storage.ErrInvalidInput
	}
	return c.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM player_bitmaps WHERE namespace = ? AND player_id = ?`, c.namespace, playerID,
		); err != nil {
			return fmt.Errorf("delete player bitmaps: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO player_bitmaps (namespace, player_id, stat_key, bitmap) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()
		for statKey, raw := range bitmaps {
			if _, err := stmt.ExecContext(ctx, c.namespace, playerID, statKey, raw); err != nil {
				return fmt.Errorf("insert player bitmap %s: %w", statKey, err)
			}
		}
		return nil
	})
}

// PutAllPlayerStats replaces the aggregate stats record atomically.
func (c *Catalog) PutAllPlayerStats(ctx context.Context, stats *domain.AggregateStats) error {
	if stats == nil {
		return storage.ErrInvalidInput
	}
	return c.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM player_stats WHERE namespace = ?`, c.namespace); err != nil {
			return fmt.Errorf("delete player stats: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO player_stats (namespace, player_group, player_id, stats, total_sims) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()
		for _, g := range domain.PlayerGroups {
			for playerID, ps := range stats.Group(g) {
				s := ps.Stats
				if s == nil {
					s = map[string]map[string]uint64{}
				}
				data, err := json.Marshal(s)
				if err != nil {
					return fmt.Errorf("encode stats for %s: %w", playerID, err)
				}
				if _, err := stmt.ExecContext(ctx, c.namespace, string(g), playerID, string(data), int64(ps.TotalSims)); err != nil {
					return fmt.Errorf("insert player stats %s: %w", playerID, err)
				}
			}
		}
		return nil
	})
}

// PutPlayers replaces the player list and drops bitmaps of unlisted players
// atomically.
func (c *Catalog) PutPlayers(ctx context.Context, players []string) error {
	return c.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM players WHERE namespace = ?`, c.namespace); err != nil {
			return fmt.Errorf("delete players: %w", err)
		}
		for _, p := range players {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO players (namespace, player_id) VALUES (?, ?)`, c.namespace, p,
			); err != nil {
				return fmt.Errorf("insert player: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM player_bitmaps
			WHERE namespace = ? AND player_id NOT IN (SELECT player_id FROM players WHERE namespace = ?)
		`, c.namespace, c.namespace); err != nil {
			return fmt.Errorf("delete stale player bitmaps: %w", err)
		}
		return nil
	})
}

func (c *Catalog) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
