package backtest

import (
	"time"

	"github.com/newthinker/quarry/internal/core"
	"github.com/newthinker/quarry/internal/strategy"
)

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// ExitReason records why a trade was closed.
type ExitReason string

const (
	ExitSignal     ExitReason = "SIGNAL"
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitEndOfData  ExitReason = "END_OF_DATA"
)

// ProfitFactorNoLosses is reported when there are winning trades and no losing ones.
const ProfitFactorNoLosses = 999.99

// Bar is the numeric candle representation the simulator walks.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// BarsFromCandles maps stored candles to bars, keeping order.
func BarsFromCandles(candles []core.Candle) []Bar {
	bars := make([]Bar, len(candles))
	for i, c := range candles {
		bars[i] = Bar{
			Timestamp: c.Timestamp,
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		}
	}
	return bars
}

// Trade is one simulated round trip.
type Trade struct {
	TradeNumber  int           `json:"trade_number"`
	Side         Side          `json:"side"`
	EntryTime    time.Time     `json:"entry_time"`
	EntryPrice   float64       `json:"entry_price"`
	ExitTime     time.Time     `json:"exit_time"`
	ExitPrice    float64       `json:"exit_price"`
	Quantity     float64       `json:"quantity"`
	PnL          float64       `json:"pnl"`
	PnLPct       float64       `json:"pnl_pct"`
	EquityAfter  float64       `json:"equity_after"`
	ExitReason   ExitReason    `json:"exit_reason"`
	HoldDuration time.Duration `json:"hold_duration"`
}

// IsWin returns true if the trade was profitable
func (t Trade) IsWin() bool {
	return t.PnL > 0
}

// EquityPoint is the marked-to-market equity after one candle.
type EquityPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	Equity      float64   `json:"equity"`
	DrawdownPct float64   `json:"drawdown_pct"`
}

// Stats holds performance statistics. Percentages are in percent units.
type Stats struct {
	TotalTrades     int           `json:"total_trades"`
	WinningTrades   int           `json:"winning_trades"`
	LosingTrades    int           `json:"losing_trades"`
	WinRate         float64       `json:"win_rate"`
	ProfitFactor    float64       `json:"profit_factor"`
	AvgWinPct       float64       `json:"avg_win_pct"`
	AvgLossPct      float64       `json:"avg_loss_pct"`
	LargestWinPct   float64       `json:"largest_win_pct"`
	LargestLossPct  float64       `json:"largest_loss_pct"`
	AvgHoldDuration time.Duration `json:"avg_hold_duration"`
	SharpeRatio     float64       `json:"sharpe_ratio"`
	MaxDrawdownPct  float64       `json:"max_drawdown_pct"`
	TotalReturnPct  float64       `json:"total_return_pct"`
}

// SimulationResult is the output of one simulator walk.
type SimulationResult struct {
	InitialCapital float64       `json:"initial_capital"`
	FinalCapital   float64       `json:"final_capital"`
	WarmupIndex    int           `json:"warmup_index"`
	Stats          Stats         `json:"stats"`
	EquityCurve    []EquityPoint `json:"equity_curve"`
	Trades         []Trade       `json:"trades"`
	Warnings       []string      `json:"warnings,omitempty"`
}

// Request asks for one backtest of a stored strategy. Symbol, Source and Interval
// override the strategy's own configuration when set.
type Request struct {
	StrategyID     string        `json:"strategyId"`
	StartDate      time.Time     `json:"startDate"`
	EndDate        time.Time     `json:"endDate"`
	InitialCapital float64       `json:"initialCapital"`
	Symbol         string        `json:"symbol,omitempty"`
	Source         string        `json:"source,omitempty"`
	Interval       core.Interval `json:"interval,omitempty"`
}

// Validate checks the request fields that do not depend on the strategy.
func (r Request) Validate() error {
	switch {
	case r.StrategyID == "":
		return core.Validationf("strategyId is required")
	case r.StartDate.IsZero() || r.EndDate.IsZero():
		return core.Validationf("startDate and endDate are required")
	case !r.StartDate.Before(r.EndDate):
		return core.Validationf("startDate must be before endDate")
	case r.InitialCapital <= 0:
		return core.Validationf("initialCapital must be positive, got %v", r.InitialCapital)
	case r.Interval != "" && !r.Interval.IsValid():
		return core.Validationf("unsupported interval %q", r.Interval)
	}
	return nil
}

// Result is a complete backtest run as returned and archived.
type Result struct {
	ID             string                  `json:"id"`
	StrategyID     string                  `json:"strategy_id"`
	StrategyName   string                  `json:"strategy_name"`
	Symbol         string                  `json:"symbol"`
	Source         string                  `json:"source"`
	Interval       core.Interval           `json:"interval"`
	StartDate      time.Time               `json:"start_date"`
	EndDate        time.Time               `json:"end_date"`
	Config         *strategy.Configuration `json:"config"`
	InitialCapital float64                 `json:"initial_capital"`
	FinalCapital   float64                 `json:"final_capital"`
	Stats          Stats                   `json:"stats"`
	EquityCurve    []EquityPoint           `json:"equity_curve"`
	Trades         []Trade                 `json:"trades"`
	Warnings       []string                `json:"warnings,omitempty"`
	CandleCount    int                     `json:"candle_count"`
	CachedCount    int                     `json:"cached_count"`
	FetchedCount   int                     `json:"fetched_count"`
	CreatedAt      time.Time               `json:"created_at"`
}

// Summary is the denormalized row stored per run.
type Summary struct {
	ID             string        `json:"id"`
	StrategyID     string        `json:"strategy_id"`
	Symbol         string        `json:"symbol"`
	Source         string        `json:"source"`
	Interval       core.Interval `json:"interval"`
	StartDate      time.Time     `json:"start_date"`
	EndDate        time.Time     `json:"end_date"`
	InitialCapital float64       `json:"initial_capital"`
	FinalCapital   float64       `json:"final_capital"`
	TotalReturnPct float64       `json:"total_return_pct"`
	TotalTrades    int           `json:"total_trades"`
	WinRate        float64       `json:"win_rate"`
	SharpeRatio    float64       `json:"sharpe_ratio"`
	MaxDrawdownPct float64       `json:"max_drawdown_pct"`
	Warnings       []string      `json:"warnings,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Summary derives the denormalized row from a full result.
func (r *Result) Summary() Summary {
	return Summary{
		ID:             r.ID,
		StrategyID:     r.StrategyID,
		Symbol:         r.Symbol,
		Source:         r.Source,
		Interval:       r.Interval,
		StartDate:      r.StartDate,
		EndDate:        r.EndDate,
		InitialCapital: r.InitialCapital,
		FinalCapital:   r.FinalCapital,
		TotalReturnPct: r.Stats.TotalReturnPct,
		TotalTrades:    r.Stats.TotalTrades,
		WinRate:        r.Stats.WinRate,
		SharpeRatio:    r.Stats.SharpeRatio,
		MaxDrawdownPct: r.Stats.MaxDrawdownPct,
		Warnings:       r.Warnings,
		CreatedAt:      r.CreatedAt,
	}
}
