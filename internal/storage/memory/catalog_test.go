package memory

import (
	"context"
	"errors"
	"testing"

	"pickem-lab/internal/domain"
	"pickem-lab/internal/storage"
)

func TestCatalog_EmptyReturnsNotFound(t *testing.T) {
	c := NewCatalog()
	ctx := context.Background()

	if _, err := c.GetMetadata(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetMetadata: expected ErrNotFound, got %v", err)
	}
	if _, err := c.GetPlayerBitmap(ctx, "mike_trout", "hits_1_plus"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetPlayerBitmap: expected ErrNotFound, got %v", err)
	}
	if _, err := c.GetAllPlayerStats(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetAllPlayerStats: expected ErrNotFound, got %v", err)
	}
	if _, err := c.ListPlayers(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ListPlayers: expected ErrNotFound, got %v", err)
	}
}

func TestCatalog_PutAndGet(t *testing.T) {
	c := NewCatalog()
	ctx := context.Background()

	if err := c.PutMetadata(ctx, &domain.SimulationMetadata{NumSims: 10000, Timestamp: 1700000000}); err != nil {
		t.Fatalf("PutMetadata failed: %v", err)
	}
	if err := c.PutPlayerBitmaps(ctx, "mike_trout", domain.PlayerBitmaps{
		"hits_1_plus": {0x1f, 0x8b, 0x01},
		"first_hit":   {0x1f, 0x8b, 0x02},
	}); err != nil {
		t.Fatalf("PutPlayerBitmaps failed: %v", err)
	}
	if err := c.PutPlayers(ctx, []string{"shohei_ohtani", "mike_trout"}); err != nil {
		t.Fatalf("PutPlayers failed: %v", err)
	}

	m, err := c.GetMetadata(ctx)
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if m.NumSims != 10000 {
		t.Errorf("NumSims mismatch: got %d, want 10000", m.NumSims)
	}

	raw, err := c.GetPlayerBitmap(ctx, "mike_trout", "first_hit")
	if err != nil {
		t.Fatalf("GetPlayerBitmap failed: %v", err)
	}
	if len(raw) != 3 || raw[2] != 0x02 {
		t.Errorf("bitmap mismatch: got %x", raw)
	}

	if _, err := c.GetPlayerBitmap(ctx, "mike_trout", "doubles_1_plus"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing stat key: expected ErrNotFound, got %v", err)
	}

	players, err := c.ListPlayers(ctx)
	if err != nil {
		t.Fatalf("ListPlayers failed: %v", err)
	}
	if len(players) != 2 || players[0] != "mike_trout" {
		t.Errorf("players not sorted: %v", players)
	}
}

func TestCatalog_InvalidInput(t *testing.T) {
	c := NewCatalog()
	ctx := context.Background()

	if err := c.PutMetadata(ctx, &domain.SimulationMetadata{NumSims: 0}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("zero num_sims: expected ErrInvalidInput, got %v", err)
	}
	if err := c.PutMetadata(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("nil metadata: expected ErrInvalidInput, got %v", err)
	}
	if err := c.PutPlayerBitmaps(ctx, "", nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty player: expected ErrInvalidInput, got %v", err)
	}
	if err := c.PutAllPlayerStats(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("nil stats: expected ErrInvalidInput, got %v", err)
	}
}

func TestCatalog_ReturnsCopies(t *testing.T) {
	c := NewCatalog()
	ctx := context.Background()

	stats := domain.NewAggregateStats()
	stats.Batters["mike_trout"] = domain.PlayerStats{
		Stats:     map[string]map[string]uint64{"hits": {"1": 700}},
		TotalSims: 1000,
	}
	if err := c.PutAllPlayerStats(ctx, stats); err != nil {
		t.Fatalf("PutAllPlayerStats failed: %v", err)
	}

	// mutating the input after Put must not leak
	stats.Batters["mike_trout"].Stats["hits"]["1"] = 1

	got, err := c.GetAllPlayerStats(ctx)
	if err != nil {
		t.Fatalf("GetAllPlayerStats failed: %v", err)
	}
	if got.Batters["mike_trout"].Stats["hits"]["1"] != 700 {
		t.Errorf("stored stats mutated through input")
	}

	// mutating the result must not leak either
	got.Batters["mike_trout"].Stats["hits"]["1"] = 2
	again, _ := c.GetAllPlayerStats(ctx)
	if again.Batters["mike_trout"].Stats["hits"]["1"] != 700 {
		t.Errorf("stored stats mutated through result")
	}
}

func TestCatalog_PutPlayersDropsStaleBitmaps(t *testing.T) {
	c := NewCatalog()
	ctx := context.Background()

	for _, p := range []string{"mike_trout", "aaron_judge"} {
		if err := c.PutPlayerBitmaps(ctx, p, domain.PlayerBitmaps{"hits_1_plus": {0x1f, 0x8b}}); err != nil {
			t.Fatalf("PutPlayerBitmaps(%s) failed: %v", p, err)
		}
	}
	if err := c.PutPlayers(ctx, []string{"mike_trout"}); err != nil {
		t.Fatalf("PutPlayers failed: %v", err)
	}

	if _, err := c.GetPlayerBitmap(ctx, "aaron_judge", "hits_1_plus"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unlisted player bitmap: expected ErrNotFound, got %v", err)
	}
	if _, err := c.GetPlayerBitmap(ctx, "mike_trout", "hits_1_plus"); err != nil {
		t.Errorf("listed player bitmap: %v", err)
	}
}

func TestCatalog_DeleteMetadata(t *testing.T) {
	c := NewCatalog()
	ctx := context.Background()

	if err := c.PutMetadata(ctx, &domain.SimulationMetadata{NumSims: 8, Timestamp: 1}); err != nil {
		t.Fatalf("PutMetadata failed: %v", err)
	}
	if err := c.DeleteMetadata(ctx); err != nil {
		t.Fatalf("DeleteMetadata failed: %v", err)
	}
	if _, err := c.GetMetadata(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := c.DeleteMetadata(ctx); err != nil {
		t.Errorf("second DeleteMetadata failed: %v", err)
	}
}
