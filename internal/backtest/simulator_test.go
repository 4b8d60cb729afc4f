package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/newthinker/quarry/internal/core"
	"github.com/newthinker/quarry/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

// dailyBars builds bars whose open/high/low collapse onto close.
func dailyBars(closes ...float64) []Bar {
	bars := make([]Bar, len(closes))
	for i, c := range closes {
		bars[i] = Bar{Timestamp: t0.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1000}
	}
	return bars
}

func crossoverConfig() *strategy.Configuration {
	cross := func(op strategy.Operator) strategy.Condition {
		return strategy.Condition{
			Indicator: "SMA", Period: 5, Operator: op,
			CompareType: strategy.CompareIndicator, CompareIndicator: "SMA", ComparePeriod: 20,
		}
	}
	return &strategy.Configuration{
		Interval:        core.Interval1d,
		EntryConditions: []strategy.Condition{cross(strategy.OpCrossesAbove)},
		ExitConditions:  []strategy.Condition{cross(strategy.OpCrossesBelow)},
		PositionSizePct: 100,
	}
}

// alwaysIn enters on the first candle with a positive close.
func alwaysIn() *strategy.Configuration {
	return &strategy.Configuration{
		Interval: core.Interval1d,
		EntryConditions: []strategy.Condition{{
			Indicator: "PRICE", Operator: strategy.OpGreaterThan,
			CompareType: strategy.CompareValue, CompareValue: ptr(0),
		}},
		PositionSizePct: 100,
	}
}

// declineThenRally falls for 20 days and rises for 10; SMA(5) crosses SMA(20) at index 24.
func declineThenRally() []float64 {
	closes := make([]float64, 0, 40)
	for i := 0; i < 20; i++ {
		closes = append(closes, float64(100-i))
	}
	for i := 20; i < 30; i++ {
		closes = append(closes, float64(81+3*(i-19)))
	}
	return closes
}

func TestSimulate_CrossoverEndOfData(t *testing.T) {
	res, err := Simulate(crossoverConfig(), dailyBars(declineThenRally()...), 10000)
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, SideLong, tr.Side)
	assert.Equal(t, t0.AddDate(0, 0, 24), tr.EntryTime)
	assert.Equal(t, 96.0, tr.EntryPrice)
	assert.Equal(t, 111.0, tr.ExitPrice)
	assert.Equal(t, ExitEndOfData, tr.ExitReason)
	assert.Equal(t, 5*24*time.Hour, tr.HoldDuration)
	assert.InDelta(t, 1562.5, tr.PnL, 1e-6)
	assert.InDelta(t, 11562.5, res.FinalCapital, 1e-6)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "force-closed")

	assert.Equal(t, 19, res.WarmupIndex)
	assert.Len(t, res.EquityCurve, 1+30-19)
	assert.Equal(t, 10000.0, res.EquityCurve[0].Equity)
	assert.InDelta(t, 11562.5, res.EquityCurve[len(res.EquityCurve)-1].Equity, 1e-6)
}

func TestSimulate_CrossoverThenCrossunder(t *testing.T) {
	closes := declineThenRally()
	for i := 30; i < 40; i++ {
		closes = append(closes, float64(111-8*(i-29)))
	}

	res, err := Simulate(crossoverConfig(), dailyBars(closes...), 10000)
	require.NoError(t, err)

	require.Len(t, res.Trades, 1, "one position per crossover")
	tr := res.Trades[0]
	assert.Equal(t, ExitSignal, tr.ExitReason)
	assert.Equal(t, t0.AddDate(0, 0, 34), tr.ExitTime)
	assert.Equal(t, 71.0, tr.ExitPrice)
	assert.InDelta(t, 10000.0/96*(71-96), tr.PnL, 1e-6)
	assert.InDelta(t, (71.0-96)/96*100, tr.PnLPct, 1e-9)
	assert.InDelta(t, 10000+tr.PnL, res.FinalCapital, 1e-6)
	assert.Empty(t, res.Warnings)

	assert.Equal(t, 1, res.Stats.LosingTrades)
	assert.Equal(t, 0.0, res.Stats.ProfitFactor)
	assert.Greater(t, res.Stats.MaxDrawdownPct, 0.0)
}

func TestSimulate_StopLossBeatsTakeProfit(t *testing.T) {
	cfg := alwaysIn()
	cfg.StopLossPct = ptr(5)
	cfg.TakeProfitPct = ptr(10)

	bars := dailyBars(100, 100)
	bars[1].Low = 90
	bars[1].High = 120

	res, err := Simulate(cfg, bars, 10000)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, ExitStopLoss, tr.ExitReason)
	assert.InDelta(t, 95, tr.ExitPrice, 1e-9)
	assert.InDelta(t, -500, tr.PnL, 1e-6)
	assert.InDelta(t, 9500, res.FinalCapital, 1e-6)
	assert.InDelta(t, 9500, tr.EquityAfter, 1e-6)
}

func TestSimulate_TakeProfit(t *testing.T) {
	cfg := alwaysIn()
	cfg.StopLossPct = ptr(5)
	cfg.TakeProfitPct = ptr(10)

	bars := dailyBars(100, 105)
	bars[1].Low = 99
	bars[1].High = 112

	res, err := Simulate(cfg, bars, 10000)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, ExitTakeProfit, res.Trades[0].ExitReason)
	assert.InDelta(t, 110, res.Trades[0].ExitPrice, 1e-9)
	assert.InDelta(t, 11000, res.FinalCapital, 1e-6)
	assert.Equal(t, ProfitFactorNoLosses, res.Stats.ProfitFactor)
	assert.Equal(t, 100.0, res.Stats.WinRate)
}

func TestSimulate_FewerThanTwoCandles(t *testing.T) {
	for _, bars := range [][]Bar{nil, dailyBars(100)} {
		res, err := Simulate(crossoverConfig(), bars, 5000)
		require.NoError(t, err)
		assert.Equal(t, 5000.0, res.FinalCapital)
		assert.Empty(t, res.Trades)
		assert.Len(t, res.Warnings, 1)
	}
}

func TestSimulate_Deterministic(t *testing.T) {
	closes := make([]float64, 200)
	for i := range closes {
		closes[i] = 100 + 15*math.Sin(float64(i)/9) + float64(i%5)
	}
	bars := dailyBars(closes...)
	cfg := crossoverConfig()
	cfg.StopLossPct = ptr(3)

	first, err := Simulate(cfg, bars, 10000)
	require.NoError(t, err)
	second, err := Simulate(cfg, bars, 10000)
	require.NoError(t, err)

	assert.NotEmpty(t, first.Trades)
	assert.Equal(t, first, second)
}

func TestSimulate_StaticValueNeverCrosses(t *testing.T) {
	cfg := alwaysIn()
	cfg.EntryConditions[0].Operator = strategy.OpCrossesAbove
	cfg.EntryConditions[0].CompareValue = ptr(50)

	res, err := Simulate(cfg, dailyBars(40, 45, 55, 60), 1000)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, 1000.0, res.FinalCapital)
}

func TestSimulate_EqualsEpsilon(t *testing.T) {
	cfg := alwaysIn()
	cfg.EntryConditions[0].Operator = strategy.OpEquals
	cfg.EntryConditions[0].CompareValue = ptr(42)

	res, err := Simulate(cfg, dailyBars(41, 42.00005, 43), 1000)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, t0.AddDate(0, 0, 1), res.Trades[0].EntryTime)
}

func TestSimulate_ExitLogic(t *testing.T) {
	tests := []struct {
		name  string
		logic strategy.Logic
		exits bool
	}{
		{"AND needs both", strategy.LogicAnd, false},
		{"OR needs one", strategy.LogicOr, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := alwaysIn()
			// Entry cannot fire again after the exit at 110.
			cfg.EntryConditions[0].Operator = strategy.OpLessThan
			cfg.EntryConditions[0].CompareValue = ptr(105)
			cfg.ExitLogic = tt.logic
			cfg.ExitConditions = []strategy.Condition{
				{Indicator: "PRICE", Operator: strategy.OpGreaterThan, CompareType: strategy.CompareValue, CompareValue: ptr(105)},
				{Indicator: "VOLUME", Operator: strategy.OpGreaterThan, CompareType: strategy.CompareValue, CompareValue: ptr(5000)},
			}

			res, err := Simulate(cfg, dailyBars(100, 110, 120), 1000)
			require.NoError(t, err)
			require.Len(t, res.Trades, 1)
			if tt.exits {
				assert.Equal(t, ExitSignal, res.Trades[0].ExitReason)
				assert.Equal(t, 110.0, res.Trades[0].ExitPrice)
			} else {
				assert.Equal(t, ExitEndOfData, res.Trades[0].ExitReason)
			}
		})
	}
}

func TestSimulate_ReentryAfterExit(t *testing.T) {
	cfg := alwaysIn()
	cfg.ExitLogic = strategy.LogicOr
	cfg.ExitConditions = []strategy.Condition{
		{Indicator: "PRICE", Operator: strategy.OpGreaterThan, CompareType: strategy.CompareValue, CompareValue: ptr(105)},
	}

	res, err := Simulate(cfg, dailyBars(100, 110, 120), 1000)
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)

	assert.Equal(t, ExitSignal, res.Trades[0].ExitReason)
	assert.Equal(t, t0.AddDate(0, 0, 1), res.Trades[0].ExitTime)

	// Flat again on the next bar, so the entry fires and the position is force-closed there.
	second := res.Trades[1]
	assert.Equal(t, ExitEndOfData, second.ExitReason)
	assert.Equal(t, t0.AddDate(0, 0, 2), second.EntryTime)
	assert.Equal(t, 120.0, second.EntryPrice)
	assert.Equal(t, 120.0, second.ExitPrice)
	assert.Zero(t, second.HoldDuration)
	assert.Zero(t, second.PnL)
	assert.InDelta(t, 1100, second.EquityAfter, 1e-9)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "force-closed")
}

func TestSimulate_EntryOnLastCandle(t *testing.T) {
	cfg := alwaysIn()
	cfg.EntryConditions[0].CompareValue = ptr(115)

	res, err := Simulate(cfg, dailyBars(100, 110, 120), 1000)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	tr := res.Trades[0]
	assert.Equal(t, ExitEndOfData, tr.ExitReason)
	assert.Equal(t, tr.EntryTime, tr.ExitTime)
	assert.Zero(t, tr.HoldDuration)
	assert.Zero(t, tr.PnL)
	assert.False(t, tr.IsWin())

	assert.Equal(t, 1000.0, res.FinalCapital)
	assert.Equal(t, 1, res.Stats.TotalTrades)
	assert.Equal(t, 0, res.Stats.WinningTrades)
	assert.Equal(t, 1, res.Stats.LosingTrades)
	assert.Zero(t, res.Stats.WinRate)
	assert.Zero(t, res.Stats.ProfitFactor)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "force-closed")
}

func TestSimulate_PositionSizing(t *testing.T) {
	cfg := alwaysIn()
	cfg.PositionSizePct = 50

	res, err := Simulate(cfg, dailyBars(100, 120), 1000)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.InDelta(t, 5, res.Trades[0].Quantity, 1e-9)
	assert.InDelta(t, 1100, res.FinalCapital, 1e-9)
}

func TestSimulate_IndicatorNeverWarmsUp(t *testing.T) {
	cfg := crossoverConfig()
	cfg.EntryConditions[0].ComparePeriod = 50
	bars := dailyBars(declineThenRally()...)

	res, err := Simulate(cfg, bars, 1000)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, len(bars), res.WarmupIndex)
	assert.Len(t, res.EquityCurve, 1)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "SMA(50)")
}

func TestSimulate_InvalidInput(t *testing.T) {
	_, err := Simulate(nil, dailyBars(1, 2), 100)
	assert.ErrorIs(t, err, core.ErrUnconfiguredStrategy)

	_, err = Simulate(&strategy.Configuration{PositionSizePct: 100}, dailyBars(1, 2), 100)
	assert.ErrorIs(t, err, core.ErrUnconfiguredStrategy)

	_, err = Simulate(alwaysIn(), dailyBars(1, 2), 0)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestWalk_ShortSide(t *testing.T) {
	cfg := alwaysIn()
	w := &walk{cfg: cfg, bars: dailyBars(100, 100, 100), equity: 1000, peak: 1000, stopPct: 0.05, tpPct: 0.1}
	w.open(0, SideShort)
	require.NotNil(t, w.pos)

	price, hit := w.stopHit(Bar{High: 106, Low: 100})
	assert.True(t, hit)
	assert.InDelta(t, 105, price, 1e-9)

	price, hit = w.targetHit(Bar{High: 100, Low: 89})
	assert.True(t, hit)
	assert.InDelta(t, 90, price, 1e-9)

	w.close(1, 90, ExitTakeProfit)
	require.Len(t, w.trades, 1)
	assert.InDelta(t, 100, w.trades[0].PnL, 1e-9)
	assert.InDelta(t, 10, w.trades[0].PnLPct, 1e-9)
	assert.InDelta(t, 1100, w.equity, 1e-9)
}
