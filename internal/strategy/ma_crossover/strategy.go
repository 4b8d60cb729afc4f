// Package ma_crossover builds the moving average crossover rule set.
package ma_crossover

import (
	"fmt"

	"github.com/newthinker/quarry/internal/strategy"
)

// Name is the preset identifier used in configuration.
const Name = "ma_crossover"

// Default periods.
const (
	DefaultFastPeriod = 5
	DefaultSlowPeriod = 20
)

// New returns a strategy that goes long when SMA(fast) crosses above SMA(slow)
// and exits when it crosses back below.
func New(id string, fastPeriod, slowPeriod int) (strategy.Strategy, error) {
	if fastPeriod <= 0 {
		fastPeriod = DefaultFastPeriod
	}
	if slowPeriod <= 0 {
		slowPeriod = DefaultSlowPeriod
	}
	if fastPeriod >= slowPeriod {
		return strategy.Strategy{}, fmt.Errorf("fast period %d must be shorter than slow period %d", fastPeriod, slowPeriod)
	}
	if id == "" {
		id = fmt.Sprintf("%s_%d_%d", Name, fastPeriod, slowPeriod)
	}

	cross := func(op strategy.Operator) strategy.Condition {
		return strategy.Condition{
			Indicator:        "SMA",
			Period:           fastPeriod,
			Operator:         op,
			CompareType:      strategy.CompareIndicator,
			CompareIndicator: "SMA",
			ComparePeriod:    slowPeriod,
		}
	}

	return strategy.Strategy{
		ID:          id,
		Name:        fmt.Sprintf("MA Crossover (%d/%d)", fastPeriod, slowPeriod),
		Description: fmt.Sprintf("Golden cross of SMA%d over SMA%d opens, death cross closes", fastPeriod, slowPeriod),
		Config: &strategy.Configuration{
			EntryConditions: []strategy.Condition{cross(strategy.OpCrossesAbove)},
			EntryLogic:      strategy.LogicAnd,
			ExitConditions:  []strategy.Condition{cross(strategy.OpCrossesBelow)},
			ExitLogic:       strategy.LogicAnd,
			PositionSizePct: 100,
		},
	}, nil
}
