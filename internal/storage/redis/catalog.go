// Package redis implements the simulation catalog on Redis using the
// producer's key layout:
//
//	<ns>_simulation_metadata       {"num_sims": N, "timestamp": T}
//	<ns>_player_bitmap_<player>    {"<stat_key>": <bytes>, ...}
//	<ns>_all_player_stats          {"batters": {...}, "pitchers": {...}}
//	<ns>_players_list              ["player", ...]
//
// Bitmap values are JSON arrays of byte values, or strings holding base64
// (raw bytes as fallback).
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pickem-lab/internal/domain"
	"pickem-lab/internal/storage"
)

// DefaultNamespace is the key prefix used by the simulation producer.
const DefaultNamespace = "pickem"

// Key suffixes.
const (
	keyMetadata     = "simulation_metadata"
	keyPlayerBitmap = "player_bitmap_"
	keyAllStats     = "all_player_stats"
	keyPlayersList  = "players_list"
)

// Options configures a Catalog.
type Options struct {
	Addr       string
	Password   string
	DB         int
	Namespace  string        // empty means DefaultNamespace
	TTL        time.Duration // expiry applied on writes; zero means none
	MaxRetries int           // go-redis retries on network errors; zero means the client default
}

// Catalog is a Redis implementation of storage.Catalog.
type Catalog struct {
	client *redis.Client
	ns     string
	ttl    time.Duration
}

var _ storage.Catalog = (*Catalog)(nil)

// NewCatalog connects to Redis and verifies the connection.
func NewCatalog(ctx context.Context, opts Options) (*Catalog, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       opts.Addr,
		Password:   opts.Password,
		DB:         opts.DB,
		MaxRetries: opts.MaxRetries,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewCatalogFromClient(client, opts.Namespace, opts.TTL), nil
}

// NewCatalogFromClient wraps an existing client.
func NewCatalogFromClient(client *redis.Client, namespace string, ttl time.Duration) *Catalog {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Catalog{client: client, ns: namespace, ttl: ttl}
}

// Close closes the connection.
func (c *Catalog) Close() error {
	return c.client.Close()
}

// Key returns the namespaced key for a suffix.
func (c *Catalog) Key(suffix string) string {
	return c.ns + "_" + suffix
}

// GetMetadata retrieves batch metadata. Returns ErrNotFound if absent.
func (c *Catalog) GetMetadata(ctx context.Context) (*domain.SimulationMetadata, error) {
	var m domain.SimulationMetadata
	if err := c.getJSON(ctx, c.Key(keyMetadata), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetPlayerBitmap retrieves a compressed bitmap. Returns ErrNotFound if the
// player document or the stat key is absent.
func (c *Catalog) GetPlayerBitmap(ctx context.Context, playerID, statKey string) ([]byte, error) {
	var doc map[string]bitmapValue
	if err := c.getJSON(ctx, c.Key(keyPlayerBitmap+playerID), &doc); err != nil {
		return nil, err
	}
	v, ok := doc[statKey]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return []byte(v), nil
}

// GetAllPlayerStats retrieves the aggregate stats record. Returns ErrNotFound if absent.
func (c *Catalog) GetAllPlayerStats(ctx context.Context) (*domain.AggregateStats, error) {
	stats := domain.NewAggregateStats()
	if err := c.getJSON(ctx, c.Key(keyAllStats), stats); err != nil {
		return nil, err
	}
	if stats.Batters == nil {
		stats.Batters = make(map[string]domain.PlayerStats)
	}
	if stats.Pitchers == nil {
		stats.Pitchers = make(map[string]domain.PlayerStats)
	}
	return stats, nil
}

// ListPlayers retrieves the player list. Returns ErrNotFound if absent.
func (c *Catalog) ListPlayers(ctx context.Context) ([]string, error) {
	var players []string
	if err := c.getJSON(ctx, c.Key(keyPlayersList), &players); err != nil {
		return nil, err
	}
	return players, nil
}

// PutMetadata stores batch metadata.
func (c *Catalog) PutMetadata(ctx context.Context, m *domain.SimulationMetadata) error {
	if m == nil || !m.Valid() {
		return storage.ErrInvalidInput
	}
	return c.setJSON(ctx, c.Key(keyMetadata), m)
}

// PutPlayerBitmaps replaces the bitmap document for one player.
func (c *Catalog) PutPlayerBitmaps(ctx context.Context, playerID string, bitmaps domain.PlayerBitmaps) error {
	if playerID == "" {
		return storage.ErrInvalidInput
	}
	doc := make(map[string]bitmapValue, len(bitmaps))
	for k, v := range bitmaps {
		doc[k] = bitmapValue(v)
	}
	return c.setJSON(ctx, c.Key(keyPlayerBitmap+playerID), doc)
}

// PutAllPlayerStats replaces the aggregate stats record.
func (c *Catalog) PutAllPlayerStats(ctx context.Context, stats *domain.AggregateStats) error {
	if stats == nil {
		return storage.ErrInvalidInput
	}
	return c.setJSON(ctx, c.Key(keyAllStats), stats)
}

// DeleteMetadata removes batch metadata.
func (c *Catalog) DeleteMetadata(ctx context.Context) error {
	if err := c.client.Del(ctx, c.Key(keyMetadata)).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", c.Key(keyMetadata), err)
	}
	return nil
}

// PutPlayers replaces the player list and deletes the bitmap documents of
// players missing from it.
func (c *Catalog) PutPlayers(ctx context.Context, players []string) error {
	if players == nil {
		players = []string{}
	}

	prev, err := c.ListPlayers(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	keep := make(map[string]struct{}, len(players))
	for _, p := range players {
		keep[p] = struct{}{}
	}
	var stale []string
	for _, p := range prev {
		if _, ok := keep[p]; !ok {
			stale = append(stale, c.Key(keyPlayerBitmap+p))
		}
	}
	if len(stale) > 0 {
		if err := c.client.Del(ctx, stale...).Err(); err != nil {
			return fmt.Errorf("delete stale player bitmaps: %w", err)
		}
	}

	return c.setJSON(ctx, c.Key(keyPlayersList), players)
}

// Clear deletes the catalog keys of this namespace. Keys of namespaces that
// share this one as a prefix are left alone.
func (c *Catalog) Clear(ctx context.Context) error {
	fixed := []string{c.Key(keyMetadata), c.Key(keyAllStats), c.Key(keyPlayersList)}
	if err := c.client.Del(ctx, fixed...).Err(); err != nil {
		return fmt.Errorf("delete keys: %w", err)
	}

	iter := c.client.Scan(ctx, 0, c.Key(keyPlayerBitmap)+"*", 500).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 500 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("delete keys: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan keys: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("delete keys: %w", err)
		}
	}
	return nil
}

func (c *Catalog) getJSON(ctx context.Context, key string, v any) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (c *Catalog) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
