// Package rsi_band builds a mean-reversion rule set on RSI thresholds.
package rsi_band

import (
	"fmt"

	"github.com/newthinker/quarry/internal/indicator"
	"github.com/newthinker/quarry/internal/strategy"
)

// Name is the preset identifier used in configuration.
const Name = "rsi_band"

// Default thresholds.
const (
	DefaultLow  = 30.0
	DefaultHigh = 70.0
)

// New returns a strategy that buys when RSI(period) drops below low and sells when it
// rises above high. A zero period uses the RSI default.
func New(id string, period int, low, high float64) (strategy.Strategy, error) {
	if period <= 0 {
		period = indicator.DefaultRSIPeriod
	}
	if low == 0 && high == 0 {
		low, high = DefaultLow, DefaultHigh
	}
	if low <= 0 || high >= 100 || low >= high {
		return strategy.Strategy{}, fmt.Errorf("invalid RSI band %.1f/%.1f", low, high)
	}
	if id == "" {
		id = fmt.Sprintf("%s_%d", Name, period)
	}

	threshold := func(op strategy.Operator, v float64) strategy.Condition {
		return strategy.Condition{
			Indicator:    "RSI",
			Period:       period,
			Operator:     op,
			CompareType:  strategy.CompareValue,
			CompareValue: &v,
		}
	}

	return strategy.Strategy{
		ID:          id,
		Name:        fmt.Sprintf("RSI Band (%d, %.0f/%.0f)", period, low, high),
		Description: fmt.Sprintf("Buy below RSI %.1f, sell above RSI %.1f", low, high),
		Config: &strategy.Configuration{
			EntryConditions: []strategy.Condition{threshold(strategy.OpLessThan, low)},
			EntryLogic:      strategy.LogicAnd,
			ExitConditions:  []strategy.Condition{threshold(strategy.OpGreaterThan, high)},
			ExitLogic:       strategy.LogicAnd,
			PositionSizePct: 100,
		},
	}, nil
}
