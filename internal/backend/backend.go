// Package backend opens the catalog and query log selected by configuration.
package backend

import (
	"context"
	"fmt"

	"pickem-lab/internal/config"
	"pickem-lab/internal/storage"
	chstore "pickem-lab/internal/storage/clickhouse"
	"pickem-lab/internal/storage/memory"
	"pickem-lab/internal/storage/migrations"
	pgstore "pickem-lab/internal/storage/postgres"
	redisstore "pickem-lab/internal/storage/redis"
	"pickem-lab/internal/storage/sqlite"
)

// OpenCatalog connects to the configured catalog backend. The returned
// cleanup function releases connections and is never nil on success.
func OpenCatalog(ctx context.Context, cfg *config.Config) (storage.Catalog, func(), error) {
	switch cfg.Catalog.Backend {
	case config.BackendMemory:
		return memory.NewCatalog(), func() {}, nil

	case config.BackendRedis:
		c, err := redisstore.NewCatalog(ctx, redisstore.Options{
			Addr:       cfg.Catalog.Redis.Addr,
			Password:   cfg.Catalog.Redis.Password,
			DB:         cfg.Catalog.Redis.DB,
			Namespace:  cfg.Namespace,
			TTL:        cfg.Catalog.Redis.TTL,
			MaxRetries: cfg.Catalog.Redis.MaxRetries,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, func() { c.Close() }, nil

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Catalog.PostgresDSN, 0)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
		}
		return pgstore.NewCatalog(pool, cfg.Namespace), pool.Close, nil

	case config.BackendSQLite:
		c, err := sqlite.Open(ctx, cfg.Catalog.SQLitePath, cfg.Namespace)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { c.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown catalog backend %q", cfg.Catalog.Backend)
	}
}

// OpenQueryLog connects to the configured query log. It returns a nil store
// when the query log is disabled.
func OpenQueryLog(ctx context.Context, cfg *config.Config) (storage.QueryLogStore, func(), error) {
	switch cfg.QueryLog.Backend {
	case config.QueryLogNone, "":
		return nil, func() {}, nil

	case config.QueryLogMemory:
		return memory.NewQueryLogStore(), func() {}, nil

	case config.QueryLogClickhouse:
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.QueryLog.ClickhouseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		return chstore.NewQueryLogStore(conn), func() { conn.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown query log backend %q", cfg.QueryLog.Backend)
	}
}
