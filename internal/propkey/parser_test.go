package propkey

import (
	"errors"
	"fmt"
	"testing"

	"pickem-lab/internal/domain"
)

func TestParse_Regular(t *testing.T) {
	k, err := Parse("mike_trout_home_runs_1_plus")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.Player != "mike_trout" {
		t.Errorf("player: got %q, want %q", k.Player, "mike_trout")
	}
	if k.StatType != "home_runs" {
		t.Errorf("stat type: got %q, want %q", k.StatType, "home_runs")
	}
	if k.Threshold.String() != "1" {
		t.Errorf("threshold: got %s, want 1", k.Threshold)
	}
	if k.IsFirstOccurrenceProp {
		t.Error("regular prop must not be first-occurrence")
	}
	if k.Variant != domain.VariantRegular {
		t.Errorf("variant: got %s, want %s", k.Variant, domain.VariantRegular)
	}
	if k.StatKey() != "home_runs_1_plus" {
		t.Errorf("stat key: got %q", k.StatKey())
	}
}

func TestParse_FirstOccurrence(t *testing.T) {
	k, err := Parse("shohei_ohtani_first_strikeout")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.Player != "shohei_ohtani" {
		t.Errorf("player: got %q", k.Player)
	}
	if k.StatType != "first_strikeout" {
		t.Errorf("stat type: got %q", k.StatType)
	}
	if k.Threshold.IntPart() != 1 {
		t.Errorf("threshold: got %s, want 1", k.Threshold)
	}
	if !k.IsFirstOccurrenceProp {
		t.Error("expected first-occurrence prop")
	}
	if k.StatKey() != "first_strikeout" {
		t.Errorf("stat key: got %q", k.StatKey())
	}
}

func TestParse_FirstOccurrenceMultiToken(t *testing.T) {
	a, err := Parse("aaron_judge_first_home_run")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.StatType != "first_home_run" {
		t.Errorf("stat type: got %q, want first_home_run", a.StatType)
	}

	b, err := Parse("aaron_judge_first_home")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity(a) == identity(b) {
		t.Error("distinct keys must not parse to the same PropKey")
	}
}

func TestParse_PeriodRange(t *testing.T) {
	k, err := Parse("juan_soto_period_1_2_3_hits_runs_rbis_2_plus")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.Variant != domain.VariantPeriodRange {
		t.Errorf("variant: got %s", k.Variant)
	}
	if k.Player != "juan_soto" {
		t.Errorf("player: got %q", k.Player)
	}
	if k.StatType != "period_1_2_3_hits_runs_rbis" {
		t.Errorf("stat type: got %q", k.StatType)
	}
	if k.Threshold.String() != "2" {
		t.Errorf("threshold: got %s", k.Threshold)
	}
	if k.StatKey() != "period_1_2_3_hits_runs_rbis_2_plus" {
		t.Errorf("stat key: got %q", k.StatKey())
	}
}

func TestParse_PeriodRangeDiscardsAfterPlus(t *testing.T) {
	k, err := Parse("juan_soto_period_1_2_3_hits_1_plus_extra")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.StatType != "period_1_2_3_hits" || k.Threshold.String() != "1" {
		t.Errorf("got stat=%q threshold=%s", k.StatType, k.Threshold)
	}
}

func TestParse_PeriodOneIsRegular(t *testing.T) {
	k, err := Parse("juan_soto_period_1_hits_2_plus")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.Variant != domain.VariantRegular {
		t.Errorf("variant: got %s, want regular", k.Variant)
	}
	if k.StatType != "period_1_hits" {
		t.Errorf("stat type: got %q", k.StatType)
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := []struct {
		name string
		key  string
	}{
		{"plus_plus", "plus_plus"},
		{"empty", ""},
		{"single token", "trout"},
		{"no stat tokens", "mike_trout"},
		{"one token after player", "mike_trout_hits"},
		{"missing plus", "mike_trout_hits_1"},
		{"missing stat type", "mike_trout_hits_plus"},
		{"non-numeric threshold", "mike_trout_hits_one_plus"},
		{"negative threshold", "mike_trout_hits_-1_plus"},
		{"leading zero threshold", "mike_trout_hits_01_plus"},
		{"double underscore", "mike__trout_hits_1_plus"},
		{"period without threshold", "juan_soto_period_1_2_3_hits_plus"},
		{"period threshold without plus", "juan_soto_period_1_2_3_hits_2_runs"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.key)
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if pe.Key != tc.key {
				t.Errorf("ParseError.Key: got %q, want %q", pe.Key, tc.key)
			}
		})
	}
}

func TestParse_FirstTokenAlwaysPlayer(t *testing.T) {
	// "hits" as the first token is a player name, not a stat indicator.
	k, err := Parse("hits_doubles_1_plus")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.Player != "hits" || k.StatType != "doubles" {
		t.Errorf("got player=%q stat=%q", k.Player, k.StatType)
	}
}

func TestParse_FractionalThreshold(t *testing.T) {
	k, err := Parse("gerrit_cole_strikeouts_6.5_plus")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.Threshold.String() != "6.5" {
		t.Errorf("threshold: got %s", k.Threshold)
	}
	if k.IntThreshold() != 7 {
		t.Errorf("int threshold: got %d, want 7", k.IntThreshold())
	}
	if k.StatKey() != "strikeouts_7_plus" {
		t.Errorf("stat key: got %q", k.StatKey())
	}
}

func TestFormat_RoundTrip(t *testing.T) {
	keys := []string{
		"mike_trout_home_runs_1_plus",
		"shohei_ohtani_first_strikeout",
		"aaron_judge_first_home_run",
		"juan_soto_period_1_2_3_hits_runs_rbis_2_plus",
		"juan_soto_period_1_hits_2_plus",
		"gerrit_cole_strikeouts_6.5_plus",
		"jose_ramirez_total_bases_2_plus",
		"j#d_martinez_hits_runs_rbis_3_plus",
		"freddie_freeman_batter_strikeouts_1_plus",
	}

	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			k, err := Parse(key)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got := Format(k); got != key {
				t.Errorf("Format(Parse(%q)) = %q", key, got)
			}
		})
	}
}

func TestParse_Injective(t *testing.T) {
	keys := []string{
		"a_b_hits_1_plus",
		"a_b_hits_2_plus",
		"a_hits_1_plus",
		"a_b_home_runs_1_plus",
		"a_b_first_hit",
		"a_b_first_home_run",
		"a_b_period_1_2_3_hits_1_plus",
		"a_b_period_1_hits_1_plus",
		"a_b_strikeouts_1.5_plus",
	}

	seen := make(map[string]string)
	for _, key := range keys {
		k, err := Parse(key)
		if err != nil {
			t.Fatalf("Parse(%q): %v", key, err)
		}
		id := identity(k)
		if prev, ok := seen[id]; ok {
			t.Errorf("%q and %q parse to the same PropKey", prev, key)
		}
		seen[id] = key
	}
}

// identity compares PropKeys by value; decimal.Decimal holds a pointer.
func identity(k domain.PropKey) string {
	return fmt.Sprintf("%s|%s|%s|%s|%t", k.Player, k.Variant, k.StatType, k.Threshold.String(), k.IsFirstOccurrenceProp)
}
