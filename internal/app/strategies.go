package app

import (
	"fmt"

	"github.com/newthinker/quarry/internal/config"
	"github.com/newthinker/quarry/internal/core"
	"github.com/newthinker/quarry/internal/strategy"
	"github.com/newthinker/quarry/internal/strategy/ma_crossover"
	"github.com/newthinker/quarry/internal/strategy/rsi_band"
)

// DefaultStrategies seeds the presets with default parameters on daily candles.
func DefaultStrategies() []config.StrategyConfig {
	return []config.StrategyConfig{
		{Preset: ma_crossover.Name, Interval: string(core.Interval1d)},
		{Preset: rsi_band.Name, Interval: string(core.Interval1d)},
	}
}

// BuildStrategies turns configured presets and rule sets into strategy records.
// An empty list yields DefaultStrategies.
func BuildStrategies(cfgs []config.StrategyConfig) ([]strategy.Strategy, error) {
	if len(cfgs) == 0 {
		cfgs = DefaultStrategies()
	}
	out := make([]strategy.Strategy, 0, len(cfgs))
	for i, sc := range cfgs {
		s, err := buildStrategy(sc)
		if err != nil {
			return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("strategies[%d]: %w", i, err))
		}
		out = append(out, s)
	}
	return out, nil
}

func buildStrategy(sc config.StrategyConfig) (strategy.Strategy, error) {
	var (
		s   strategy.Strategy
		err error
	)
	switch {
	case sc.Preset == ma_crossover.Name:
		s, err = ma_crossover.New(sc.ID, int(sc.Params["fast"]), int(sc.Params["slow"]))
	case sc.Preset == rsi_band.Name:
		s, err = rsi_band.New(sc.ID, int(sc.Params["period"]), sc.Params["low"], sc.Params["high"])
	case sc.Preset != "":
		err = fmt.Errorf("unknown preset %q", sc.Preset)
	case sc.Rules != nil:
		s = strategy.Strategy{ID: sc.ID, Name: sc.ID, Config: sc.Rules.Clone()}
	default:
		err = fmt.Errorf("preset or rules required")
	}
	if err != nil {
		return strategy.Strategy{}, err
	}

	if sc.Name != "" {
		s.Name = sc.Name
	}
	if sc.Description != "" {
		s.Description = sc.Description
	}
	if sc.Symbol != "" {
		s.Config.Symbol = sc.Symbol
	}
	if sc.Source != "" {
		s.Config.DataSource = sc.Source
	}
	if sc.Interval != "" {
		iv, err := core.ParseInterval(sc.Interval)
		if err != nil {
			return strategy.Strategy{}, err
		}
		s.Config.Interval = iv
	}
	s.Config.Normalize()
	if err := s.Config.Validate(); err != nil {
		return strategy.Strategy{}, err
	}
	return s, nil
}
