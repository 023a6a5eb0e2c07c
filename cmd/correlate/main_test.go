package main

import (
	"testing"

	"pickem-lab/internal/domain"
)

func TestParseLegs(t *testing.T) {
	legs, err := parseLegs([]string{
		"Mike Trout|hits|0.5",
		"Aaron Judge | home_runs | 1.5 | Under",
	})
	if err != nil {
		t.Fatalf("parseLegs: %v", err)
	}
	if len(legs) != 2 {
		t.Fatalf("got %d legs, want 2", len(legs))
	}
	if legs[0].Side != domain.SideOver {
		t.Errorf("default side = %q, want over", legs[0].Side)
	}
	if got := legs[0].StatKey(); got != "hits_1_plus" {
		t.Errorf("leg 0 stat key = %q", got)
	}
	if legs[1].Player != "Aaron Judge" || legs[1].Side != domain.SideUnder {
		t.Errorf("leg 1 = %+v", legs[1])
	}
	if got := legs[1].StatKey(); got != "home_runs_2_plus" {
		t.Errorf("leg 1 stat key = %q", got)
	}
}

func TestParseLegs_Errors(t *testing.T) {
	for _, arg := range []string{
		"Mike Trout|hits",
		"Mike Trout|hits|x",
		"Mike Trout|hits|1|sideways",
		"a|b|1|over|extra",
	} {
		if _, err := parseLegs([]string{arg}); err == nil {
			t.Errorf("parseLegs(%q) succeeded, want error", arg)
		}
	}
}
