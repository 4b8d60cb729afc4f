package strategy

import (
	"errors"
	"math"
	"strings"

	"github.com/newthinker/quarry/internal/core"
	"github.com/newthinker/quarry/internal/indicator"
)

// Operator compares the two sides of a condition.
type Operator string

const (
	OpCrossesAbove Operator = "CROSSES_ABOVE"
	OpCrossesBelow Operator = "CROSSES_BELOW"
	OpGreaterThan  Operator = "GREATER_THAN"
	OpLessThan     Operator = "LESS_THAN"
	OpEquals       Operator = "EQUALS"
)

// CompareType selects what the right-hand side of a condition is.
type CompareType string

const (
	CompareValue     CompareType = "VALUE"
	CompareIndicator CompareType = "INDICATOR"
)

// Logic combines several conditions.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// EqualsEpsilon is the tolerance for EQUALS comparisons.
const EqualsEpsilon = 1e-4

// Condition is one rule: Indicator(Period) Operator (value | CompareIndicator(ComparePeriod)).
type Condition struct {
	Indicator        string      `json:"indicator" mapstructure:"indicator"`
	Period           int         `json:"period,omitempty" mapstructure:"period"`
	Operator         Operator    `json:"operator" mapstructure:"operator"`
	CompareType      CompareType `json:"compare_type" mapstructure:"compare_type"`
	CompareValue     *float64    `json:"compare_value,omitempty" mapstructure:"compare_value"`
	CompareIndicator string      `json:"compare_indicator,omitempty" mapstructure:"compare_indicator"`
	ComparePeriod    int         `json:"compare_period,omitempty" mapstructure:"compare_period"`
}

// LeftKey returns the series key of the left-hand side.
func (c Condition) LeftKey() indicator.Key {
	kind, _ := indicator.ParseKind(c.Indicator)
	return indicator.Key{Kind: kind, Period: c.Period}.Normalize()
}

// RightKey returns the series key of the right-hand side, if it is an indicator.
func (c Condition) RightKey() (indicator.Key, bool) {
	if c.CompareType != CompareIndicator {
		return indicator.Key{}, false
	}
	kind, _ := indicator.ParseKind(c.CompareIndicator)
	return indicator.Key{Kind: kind, Period: c.ComparePeriod}.Normalize(), true
}

// Validate checks one condition.
func (c Condition) Validate() error {
	kind, err := indicator.ParseKind(c.Indicator)
	if err != nil {
		return core.Validationf("%v", err)
	}
	if kind.NeedsPeriod() && c.Period <= 0 {
		return core.Validationf("%s requires a positive period", kind)
	}
	switch c.Operator {
	case OpCrossesAbove, OpCrossesBelow, OpGreaterThan, OpLessThan, OpEquals:
	default:
		return core.Validationf("unknown operator %q", c.Operator)
	}
	switch c.CompareType {
	case CompareValue:
		if c.CompareValue == nil || math.IsNaN(*c.CompareValue) {
			return core.Validationf("compare_value is required for VALUE comparisons")
		}
	case CompareIndicator:
		rk, err := indicator.ParseKind(c.CompareIndicator)
		if err != nil {
			return core.Validationf("compare indicator: %v", err)
		}
		if rk.NeedsPeriod() && c.ComparePeriod <= 0 {
			return core.Validationf("compare indicator %s requires a positive period", rk)
		}
	default:
		return core.Validationf("unknown compare type %q", c.CompareType)
	}
	return nil
}

// Configuration is the rule set a backtest runs.
type Configuration struct {
	Symbol          string        `json:"symbol" mapstructure:"symbol"`
	Interval        core.Interval `json:"interval" mapstructure:"interval"`
	DataSource      string        `json:"data_source" mapstructure:"data_source"`
	EntryConditions []Condition   `json:"entry_conditions" mapstructure:"entry_conditions"`
	EntryLogic      Logic         `json:"entry_logic" mapstructure:"entry_logic"`
	ExitConditions  []Condition   `json:"exit_conditions" mapstructure:"exit_conditions"`
	ExitLogic       Logic         `json:"exit_logic" mapstructure:"exit_logic"`
	PositionSizePct float64       `json:"position_size_pct" mapstructure:"position_size_pct"`
	AllowShort      bool          `json:"allow_short" mapstructure:"allow_short"`
	StopLossPct     *float64      `json:"stop_loss_pct,omitempty" mapstructure:"stop_loss_pct"`
	TakeProfitPct   *float64      `json:"take_profit_pct,omitempty" mapstructure:"take_profit_pct"`
}

// Validate checks a configuration before it is frozen for a run.
func (c *Configuration) Validate() error {
	if len(c.EntryConditions) == 0 {
		return core.WrapError(core.ErrUnconfiguredStrategy, errors.New("no entry conditions"))
	}
	for i, cond := range c.EntryConditions {
		if err := cond.Validate(); err != nil {
			return core.Validationf("entry condition %d: %v", i+1, err)
		}
	}
	for i, cond := range c.ExitConditions {
		if err := cond.Validate(); err != nil {
			return core.Validationf("exit condition %d: %v", i+1, err)
		}
	}
	if err := validateLogic(c.EntryLogic); err != nil {
		return err
	}
	if err := validateLogic(c.ExitLogic); err != nil {
		return err
	}
	if c.PositionSizePct <= 0 || c.PositionSizePct > 100 {
		return core.Validationf("position_size_pct must be in (0, 100], got %v", c.PositionSizePct)
	}
	if c.StopLossPct != nil && (*c.StopLossPct <= 0 || *c.StopLossPct >= 100) {
		return core.Validationf("stop_loss_pct must be in (0, 100), got %v", *c.StopLossPct)
	}
	if c.TakeProfitPct != nil && *c.TakeProfitPct <= 0 {
		return core.Validationf("take_profit_pct must be positive, got %v", *c.TakeProfitPct)
	}
	return nil
}

func validateLogic(l Logic) error {
	switch l {
	case "", LogicAnd, LogicOr:
		return nil
	}
	return core.Validationf("unknown logic %q", l)
}

// Normalize fills defaults: AND logic, 100% sizing, canonical casing.
func (c *Configuration) Normalize() {
	c.Symbol = core.NormalizeSymbol(c.Symbol)
	c.DataSource = core.NormalizeSource(c.DataSource)
	c.EntryLogic = Logic(strings.ToUpper(string(c.EntryLogic)))
	c.ExitLogic = Logic(strings.ToUpper(string(c.ExitLogic)))
	if c.EntryLogic == "" {
		c.EntryLogic = LogicAnd
	}
	if c.ExitLogic == "" {
		c.ExitLogic = LogicAnd
	}
	if c.PositionSizePct == 0 {
		c.PositionSizePct = 100
	}
}

// Clone returns a deep copy, so a run can freeze its configuration.
func (c *Configuration) Clone() *Configuration {
	if c == nil {
		return nil
	}
	out := *c
	out.EntryConditions = cloneConditions(c.EntryConditions)
	out.ExitConditions = cloneConditions(c.ExitConditions)
	out.StopLossPct = clonePtr(c.StopLossPct)
	out.TakeProfitPct = clonePtr(c.TakeProfitPct)
	return &out
}

// IndicatorKeys lists the distinct series referenced by all conditions.
func (c *Configuration) IndicatorKeys() []indicator.Key {
	seen := make(map[indicator.Key]bool)
	var keys []indicator.Key
	add := func(k indicator.Key) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, list := range [][]Condition{c.EntryConditions, c.ExitConditions} {
		for _, cond := range list {
			add(cond.LeftKey())
			if rk, ok := cond.RightKey(); ok {
				add(rk)
			}
		}
	}
	return keys
}

func cloneConditions(in []Condition) []Condition {
	if in == nil {
		return nil
	}
	out := make([]Condition, len(in))
	for i, c := range in {
		c.CompareValue = clonePtr(c.CompareValue)
		out[i] = c
	}
	return out
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Strategy is a stored strategy record. A nil Config marks a code-driven strategy
// that cannot be backtested by the rule engine.
type Strategy struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Config      *Configuration `json:"config,omitempty"`
}

// IsConfigured reports whether the strategy carries runnable rules.
func (s Strategy) IsConfigured() bool {
	return s.Config != nil && len(s.Config.EntryConditions) > 0
}
