package clickhouse

import (
	"context"
	"fmt"

	"pickem-lab/internal/domain"
	"pickem-lab/internal/storage"
)

// QueryLogStore implements storage.QueryLogStore using ClickHouse.
type QueryLogStore struct {
	conn *Conn
}

// NewQueryLogStore creates a new QueryLogStore.
func NewQueryLogStore(conn *Conn) *QueryLogStore {
	return &QueryLogStore{conn: conn}
}

// Compile-time interface check.
var _ storage.QueryLogStore = (*QueryLogStore)(nil)

const queryLogColumns = `
	parlay_id, prop_keys, num_props,
	all_hit, all_but_one_hit, all_but_two_hit,
	total_sims, computed_at_ms, duration_ms
`

// Insert appends a record. Returns ErrDuplicateKey if (parlay_id, computed_at) exists.
func (s *QueryLogStore) Insert(ctx context.Context, r *domain.QueryRecord) error {
	if r == nil || r.ParlayID == "" {
		return storage.ErrInvalidInput
	}

	// ReplacingMergeTree would collapse duplicates; keep append-only semantics
	exists, err := s.exists(ctx, r.ParlayID, r.ComputedAt)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	propKeys := r.PropKeys
	if propKeys == nil {
		propKeys = []string{}
	}

	err = s.conn.Exec(ctx, `INSERT INTO correlation_queries (`+queryLogColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ParlayID, propKeys, uint8(r.NumProps),
		r.AllHit, r.AllButOneHit, r.AllButTwoHit,
		r.TotalSims, r.ComputedAt, r.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert query record: %w", err)
	}
	return nil
}

// GetByParlayID retrieves records for a parlay, ordered by computed_at ASC.
func (s *QueryLogStore) GetByParlayID(ctx context.Context, parlayID string) ([]*domain.QueryRecord, error) {
	query := `
		SELECT ` + queryLogColumns + `
		FROM correlation_queries FINAL
		WHERE parlay_id = ?
		ORDER BY computed_at_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, parlayID)
	if err != nil {
		return nil, fmt.Errorf("query by parlay id: %w", err)
	}
	defer rows.Close()

	return scanQueryRecords(rows)
}

// GetRecent retrieves up to limit records, ordered by computed_at DESC.
func (s *QueryLogStore) GetRecent(ctx context.Context, limit int) ([]*domain.QueryRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT ` + queryLogColumns + `
		FROM correlation_queries FINAL
		ORDER BY computed_at_ms DESC, parlay_id ASC
		LIMIT ?
	`

	rows, err := s.conn.Query(ctx, query, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	return scanQueryRecords(rows)
}

func (s *QueryLogStore) exists(ctx context.Context, parlayID string, computedAt int64) (bool, error) {
	query := `
		SELECT count(*) FROM correlation_queries
		WHERE parlay_id = ? AND computed_at_ms = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, parlayID, computedAt).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows is the subset of driver.Rows used for scanning.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanQueryRecords(rows chRows) ([]*domain.QueryRecord, error) {
	var records []*domain.QueryRecord

	for rows.Next() {
		var (
			r        domain.QueryRecord
			numProps uint8
		)
		err := rows.Scan(
			&r.ParlayID, &r.PropKeys, &numProps,
			&r.AllHit, &r.AllButOneHit, &r.AllButTwoHit,
			&r.TotalSims, &r.ComputedAt, &r.DurationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan query record row: %w", err)
		}
		r.NumProps = int(numProps)
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query record rows: %w", err)
	}

	return records, nil
}
