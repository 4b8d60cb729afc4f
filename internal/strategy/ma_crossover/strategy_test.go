package ma_crossover

import (
	"testing"

	"github.com/newthinker/quarry/internal/indicator"
	"github.com/newthinker/quarry/internal/strategy"
)

func TestNew_Defaults(t *testing.T) {
	s, err := New("", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID != "ma_crossover_5_20" {
		t.Errorf("expected generated id, got %q", s.ID)
	}
	if !s.IsConfigured() {
		t.Fatal("preset should carry entry conditions")
	}
	if err := s.Config.Validate(); err != nil {
		t.Errorf("preset config invalid: %v", err)
	}
}

func TestNew_Conditions(t *testing.T) {
	s, err := New("golden", 2, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry := s.Config.EntryConditions[0]
	if entry.Operator != strategy.OpCrossesAbove || entry.Period != 2 || entry.ComparePeriod != 4 {
		t.Errorf("unexpected entry condition: %+v", entry)
	}
	exit := s.Config.ExitConditions[0]
	if exit.Operator != strategy.OpCrossesBelow {
		t.Errorf("unexpected exit operator: %s", exit.Operator)
	}

	keys := s.Config.IndicatorKeys()
	want := []indicator.Key{{Kind: indicator.KindSMA, Period: 2}, {Kind: indicator.KindSMA, Period: 4}}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d = %v, want %v", i, keys[i], want[i])
		}
	}
}

func TestNew_RejectsInvertedPeriods(t *testing.T) {
	if _, err := New("x", 20, 5); err == nil {
		t.Error("expected error when fast >= slow")
	}
}
