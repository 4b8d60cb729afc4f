package strategy

import (
	"errors"
	"testing"

	"github.com/newthinker/quarry/internal/core"
	"github.com/newthinker/quarry/internal/indicator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func smaCross(op Operator, fast, slow int) Condition {
	return Condition{
		Indicator:        "SMA",
		Period:           fast,
		Operator:         op,
		CompareType:      CompareIndicator,
		CompareIndicator: "SMA",
		ComparePeriod:    slow,
	}
}

func validConfig() *Configuration {
	return &Configuration{
		Symbol:          "BTCUSDT",
		Interval:        core.Interval1h,
		DataSource:      "binance",
		EntryConditions: []Condition{smaCross(OpCrossesAbove, 5, 20)},
		ExitConditions:  []Condition{smaCross(OpCrossesBelow, 5, 20)},
		PositionSizePct: 100,
	}
}

func TestConfiguration_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Configuration)
		code   *core.Error
	}{
		{"valid", func(c *Configuration) {}, nil},
		{"no entry conditions", func(c *Configuration) { c.EntryConditions = nil }, core.ErrUnconfiguredStrategy},
		{"zero size", func(c *Configuration) { c.PositionSizePct = 0 }, core.ErrValidation},
		{"oversized", func(c *Configuration) { c.PositionSizePct = 150 }, core.ErrValidation},
		{"stop loss 100", func(c *Configuration) { c.StopLossPct = ptr(100) }, core.ErrValidation},
		{"negative take profit", func(c *Configuration) { c.TakeProfitPct = ptr(-1) }, core.ErrValidation},
		{"bad logic", func(c *Configuration) { c.EntryLogic = "XOR" }, core.ErrValidation},
		{"unknown indicator", func(c *Configuration) { c.EntryConditions[0].Indicator = "ATR" }, core.ErrValidation},
		{"sma without period", func(c *Configuration) { c.EntryConditions[0].Period = 0 }, core.ErrValidation},
		{"bad operator", func(c *Configuration) { c.ExitConditions[0].Operator = "NEAR" }, core.ErrValidation},
		{"value without number", func(c *Configuration) {
			c.EntryConditions[0] = Condition{Indicator: "RSI", Operator: OpLessThan, CompareType: CompareValue}
		}, core.ErrValidation},
		{"rsi default period ok", func(c *Configuration) {
			c.EntryConditions[0] = Condition{Indicator: "rsi", Operator: OpLessThan, CompareType: CompareValue, CompareValue: ptr(30)}
		}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.code == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestConfiguration_Normalize(t *testing.T) {
	c := &Configuration{Symbol: " btcusdt ", DataSource: "Binance", EntryLogic: "or"}
	c.Normalize()
	assert.Equal(t, "BTCUSDT", c.Symbol)
	assert.Equal(t, "binance", c.DataSource)
	assert.Equal(t, LogicOr, c.EntryLogic)
	assert.Equal(t, LogicAnd, c.ExitLogic)
	assert.Equal(t, 100.0, c.PositionSizePct)
}

func TestConfiguration_CloneIsDeep(t *testing.T) {
	c := validConfig()
	c.StopLossPct = ptr(5)
	c.EntryConditions = append(c.EntryConditions, Condition{
		Indicator: "RSI", Operator: OpLessThan, CompareType: CompareValue, CompareValue: ptr(30),
	})

	clone := c.Clone()
	*clone.StopLossPct = 9
	*clone.EntryConditions[1].CompareValue = 10
	clone.EntryConditions[0].Period = 99

	assert.Equal(t, 5.0, *c.StopLossPct)
	assert.Equal(t, 30.0, *c.EntryConditions[1].CompareValue)
	assert.Equal(t, 5, c.EntryConditions[0].Period)
	assert.Nil(t, (*Configuration)(nil).Clone())
}

func TestConfiguration_IndicatorKeys(t *testing.T) {
	c := validConfig()
	c.ExitConditions = append(c.ExitConditions,
		Condition{Indicator: "RSI", Operator: OpGreaterThan, CompareType: CompareValue, CompareValue: ptr(70)},
		Condition{Indicator: "PRICE", Operator: OpLessThan, CompareType: CompareIndicator, CompareIndicator: "BB_LOWER"},
	)

	keys := c.IndicatorKeys()
	assert.Equal(t, []indicator.Key{
		{Kind: indicator.KindSMA, Period: 5},
		{Kind: indicator.KindSMA, Period: 20},
		{Kind: indicator.KindRSI, Period: indicator.DefaultRSIPeriod},
		{Kind: indicator.KindPrice},
		{Kind: indicator.KindBBLower, Period: indicator.DefaultBollingerPeriod},
	}, keys)
}

func TestStrategy_IsConfigured(t *testing.T) {
	assert.False(t, Strategy{ID: "code"}.IsConfigured())
	assert.False(t, Strategy{ID: "empty", Config: &Configuration{}}.IsConfigured())
	assert.True(t, Strategy{ID: "rules", Config: validConfig()}.IsConfigured())
}

func TestCondition_Keys(t *testing.T) {
	c := Condition{Indicator: "macd_signal", Period: 7, Operator: OpGreaterThan, CompareType: CompareValue, CompareValue: ptr(0)}
	assert.Equal(t, indicator.Key{Kind: indicator.KindMACDSignal}, c.LeftKey())
	_, ok := c.RightKey()
	assert.False(t, ok)
	require.NoError(t, c.Validate())
}
