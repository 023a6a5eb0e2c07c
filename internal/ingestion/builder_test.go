package ingestion

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"pickem-lab/internal/bitmap"
	"pickem-lab/internal/domain"
)

func decoded(t *testing.T, b *Batch, player, statKey string) []byte {
	t.Helper()
	raw, ok := b.Bitmaps[player][statKey]
	if !ok {
		t.Fatalf("missing bitmap %s/%s", player, statKey)
	}
	buf, err := bitmap.Decode(raw)
	if err != nil {
		t.Fatalf("decode %s/%s: %v", player, statKey, err)
	}
	return buf
}

func TestBuilder_AddStat(t *testing.T) {
	b, err := NewBuilder(8)
	if err != nil {
		t.Fatal(err)
	}
	err = b.AddStat(domain.GroupBatters, "mike_trout", "hits", StatSeries{
		Thresholds: []int64{1, 2},
		Values:     []float64{0, 1, 2, 3, 0, 1, 2, 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	batch := b.Build(1700000000)

	tests := []struct {
		statKey string
		want    byte
		hits    uint64
	}{
		{"hits_1_plus", 0xEE, 6},
		{"hits_2_plus", 0xCC, 4},
	}
	for _, tt := range tests {
		buf := decoded(t, batch, "mike_trout", tt.statKey)
		if len(buf) != 1 || buf[0] != tt.want {
			t.Errorf("%s: got %x, want %02x", tt.statKey, buf, tt.want)
		}
	}

	ps := batch.Stats.Batters["mike_trout"]
	if ps.TotalSims != 8 {
		t.Errorf("total_sims: got %d, want 8", ps.TotalSims)
	}
	if ps.Stats["hits"]["1"] != 6 || ps.Stats["hits"]["2"] != 4 {
		t.Errorf("hit counts: got %v", ps.Stats["hits"])
	}
	if batch.Metadata != (domain.SimulationMetadata{NumSims: 8, Timestamp: 1700000000}) {
		t.Errorf("metadata: got %+v", batch.Metadata)
	}
}

func TestBuilder_AtMost(t *testing.T) {
	b, _ := NewBuilder(4)
	err := b.AddStat(domain.GroupBatters, "mike_trout", "fantasy_points", StatSeries{
		Thresholds: []int64{5},
		AtMost:     []int64{4},
		Values:     []float64{3, 4.5, 6, 4},
	})
	if err != nil {
		t.Fatal(err)
	}
	batch := b.Build(0)

	// <= 4: runs 0 and 3
	if buf := decoded(t, batch, "mike_trout", "fantasy_points_4_plus"); buf[0] != 0x09 {
		t.Errorf("at-most bitmap: got %02x, want 09", buf[0])
	}
	// >= 5: run 2
	if buf := decoded(t, batch, "mike_trout", "fantasy_points_5_plus"); buf[0] != 0x04 {
		t.Errorf("at-least bitmap: got %02x, want 04", buf[0])
	}
}

func TestBuilder_AddEvent(t *testing.T) {
	b, _ := NewBuilder(10)
	results := make([]bool, 10)
	results[0], results[9] = true, true
	if err := b.AddEvent(domain.GroupPitchers, "gerrit_cole", "first_strikeout", results); err != nil {
		t.Fatal(err)
	}
	batch := b.Build(0)

	buf := decoded(t, batch, "gerrit_cole", "first_strikeout")
	if !bytes.Equal(buf, []byte{0x01, 0x02}) {
		t.Errorf("got %x, want 0102", buf)
	}
	if got := batch.Stats.Pitchers["gerrit_cole"].Stats["first_strikeout"]["1"]; got != 2 {
		t.Errorf("hit count: got %d, want 2", got)
	}
}

func TestBuilder_Errors(t *testing.T) {
	if _, err := NewBuilder(0); !errors.Is(err, ErrInvalidBatch) {
		t.Errorf("NewBuilder(0): got %v", err)
	}

	b, _ := NewBuilder(4)
	if err := b.AddProp(domain.GroupBatters, "a", "hits", 1, []bool{true}); !errors.Is(err, ErrInvalidBatch) {
		t.Errorf("short results: got %v", err)
	}
	if err := b.AddProp("umpires", "a", "hits", 1, make([]bool, 4)); !errors.Is(err, ErrInvalidBatch) {
		t.Errorf("unknown group: got %v", err)
	}
	if err := b.AddProp(domain.GroupBatters, "a", "hits", 1, make([]bool, 4)); err != nil {
		t.Fatal(err)
	}
	if err := b.AddProp(domain.GroupPitchers, "a", "strikeouts", 1, make([]bool, 4)); !errors.Is(err, ErrInvalidBatch) {
		t.Errorf("player in two groups: got %v", err)
	}
}

func TestBuild_Players(t *testing.T) {
	f := &BatchFile{
		NumSims: 2,
		Players: []PlayerResult{
			{Player: "Mike Trout", Group: domain.GroupBatters, Stats: map[string]StatSeries{
				"hits": {Thresholds: []int64{1}, Values: []float64{1, 0}},
			}},
			{Player: "Gerrit Cole", Group: domain.GroupPitchers, Events: map[string][]bool{
				"first_strikeout": {true, true},
			}},
			{Player: "Bench Guy", Group: domain.GroupBatters},
		},
	}
	batch, err := Build(f)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"bench_guy", "gerrit_cole", "mike_trout"}
	if strings.Join(batch.Players, ",") != strings.Join(want, ",") {
		t.Errorf("players: got %v, want %v", batch.Players, want)
	}
	if batch.BitmapCount() != 2 {
		t.Errorf("bitmap count: got %d, want 2", batch.BitmapCount())
	}
	if !batch.Stats.HasPlayer("bench_guy") {
		t.Error("player without props should still be listed in stats")
	}
}

func TestBatchFile_Validate(t *testing.T) {
	tests := []struct {
		name string
		file BatchFile
	}{
		{"zero sims", BatchFile{}},
		{"no name", BatchFile{NumSims: 1, Players: []PlayerResult{{Group: domain.GroupBatters}}}},
		{"bad group", BatchFile{NumSims: 1, Players: []PlayerResult{{Player: "a", Group: "coaches"}}}},
		{"duplicate", BatchFile{NumSims: 1, Players: []PlayerResult{
			{Player: "Mike Trout", Group: domain.GroupBatters},
			{Player: "mike trout", Group: domain.GroupBatters},
		}}},
		{"short values", BatchFile{NumSims: 2, Players: []PlayerResult{{Player: "a", Group: domain.GroupBatters,
			Stats: map[string]StatSeries{"hits": {Thresholds: []int64{1}, Values: []float64{1}}}}}}},
		{"overlapping thresholds", BatchFile{NumSims: 1, Players: []PlayerResult{{Player: "a", Group: domain.GroupBatters,
			Stats: map[string]StatSeries{"fantasy_points": {Thresholds: []int64{4}, AtMost: []int64{4}, Values: []float64{1}}}}}}},
		{"event name", BatchFile{NumSims: 1, Players: []PlayerResult{{Player: "a", Group: domain.GroupBatters,
			Events: map[string][]bool{"hit": {true}}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.file.Validate(); !errors.Is(err, ErrInvalidBatch) {
				t.Errorf("got %v, want ErrInvalidBatch", err)
			}
		})
	}
}

func TestReadBatch(t *testing.T) {
	doc := `{"num_sims": 3, "timestamp": 42, "players": [
		{"player": "Mike Trout", "group": "batters", "stats": {"hits": {"thresholds": [1], "values": [0, 1, 2]}}}
	]}`

	plain, err := ReadBatch(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write([]byte(doc))
	zw.Close()
	zipped, err := ReadBatch(&gz)
	if err != nil {
		t.Fatal(err)
	}

	for _, f := range []*BatchFile{plain, zipped} {
		if f.NumSims != 3 || f.Timestamp != 42 || len(f.Players) != 1 {
			t.Fatalf("unexpected batch: %+v", f)
		}
		if got := f.Players[0].Stats["hits"].Values; len(got) != 3 || got[2] != 2 {
			t.Errorf("values: got %v", got)
		}
	}

	if _, err := ReadBatch(strings.NewReader("{")); !errors.Is(err, ErrInvalidBatch) {
		t.Errorf("truncated json: got %v", err)
	}
}
