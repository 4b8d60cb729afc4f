package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/newthinker/quarry/internal/core"
	"github.com/newthinker/quarry/internal/indicator"
	"github.com/newthinker/quarry/internal/strategy"
)

// position is the open trade, if any. All run state lives in one Simulate call.
type position struct {
	side     Side
	entryIdx int
	entry    float64
	qty      float64
}

func (p *position) unrealized(price float64) float64 {
	if p.side == SideShort {
		return p.qty * (p.entry - price)
	}
	return p.qty * (price - p.entry)
}

// Simulate walks bars in order and trades cfg's rules. It is deterministic:
// the same inputs always produce the same trades and statistics.
func Simulate(cfg *strategy.Configuration, bars []Bar, initialCapital float64) (SimulationResult, error) {
	res := SimulationResult{
		InitialCapital: initialCapital,
		FinalCapital:   initialCapital,
		Trades:         []Trade{},
		EquityCurve:    []EquityPoint{},
	}
	if cfg == nil {
		return res, core.WrapError(core.ErrUnconfiguredStrategy, fmt.Errorf("nil configuration"))
	}
	if err := cfg.Validate(); err != nil {
		return res, err
	}
	if initialCapital <= 0 {
		return res, core.Validationf("initial capital must be positive, got %v", initialCapital)
	}
	if len(bars) < 2 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: got %d candles, need at least 2", core.ErrInsufficientData.Message, len(bars)))
		return res, nil
	}

	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
	}
	cache := indicator.NewCache(closes, volumes)

	warmup := 0
	for _, key := range cfg.IndicatorKeys() {
		series, err := cache.Series(key)
		if err != nil {
			return res, core.Validationf("%v", err)
		}
		first := indicator.FirstValid(series)
		if first < 0 {
			first = len(bars)
			res.Warnings = append(res.Warnings, fmt.Sprintf("indicator %s never warms up over %d candles", key, len(bars)))
		}
		if first > warmup {
			warmup = first
		}
	}
	res.WarmupIndex = warmup

	w := &walk{
		cfg:     cfg,
		bars:    bars,
		cache:   cache,
		equity:  initialCapital,
		peak:    initialCapital,
		stopPct: pct(cfg.StopLossPct),
		tpPct:   pct(cfg.TakeProfitPct),
	}
	w.curve = append(w.curve, EquityPoint{Timestamp: bars[0].Timestamp, Equity: initialCapital})

	for i := warmup; i < len(bars); i++ {
		w.step(i)
	}

	if w.pos != nil {
		last := len(bars) - 1
		w.close(last, bars[last].Close, ExitEndOfData)
		res.Warnings = append(res.Warnings, fmt.Sprintf("open position force-closed at end of data (%s)", bars[last].Timestamp.Format(time.RFC3339)))
	}

	res.FinalCapital = w.equity
	res.Trades = w.trades
	res.EquityCurve = w.curve
	res.Stats = CalculateStats(w.trades, w.curve, initialCapital, w.equity, cfg.Interval)
	return res, nil
}

type walk struct {
	cfg     *strategy.Configuration
	bars    []Bar
	cache   *indicator.Cache
	pos     *position
	equity  float64 // realized
	peak    float64
	stopPct float64
	tpPct   float64
	trades  []Trade
	curve   []EquityPoint
}

func pct(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p / 100
}

// step applies one candle: stop loss, take profit, exit signal while in a
// position, or entry while flat; then marks equity to market.
func (w *walk) step(i int) {
	bar := w.bars[i]

	if w.pos != nil {
		if price, ok := w.stopHit(bar); ok {
			w.close(i, price, ExitStopLoss)
		} else if price, ok := w.targetHit(bar); ok {
			w.close(i, price, ExitTakeProfit)
		} else if w.evaluate(w.cfg.ExitConditions, w.cfg.ExitLogic, i) {
			w.close(i, bar.Close, ExitSignal)
		}
	} else if w.evaluate(w.cfg.EntryConditions, w.cfg.EntryLogic, i) {
		w.open(i, SideLong)
	}

	current := w.equity
	if w.pos != nil {
		current += w.pos.unrealized(bar.Close)
	}
	if current > w.peak {
		w.peak = current
	}
	var dd float64
	if w.peak > 0 {
		dd = (w.peak - current) / w.peak * 100
	}
	w.curve = append(w.curve, EquityPoint{Timestamp: bar.Timestamp, Equity: current, DrawdownPct: dd})
}

func (w *walk) stopHit(bar Bar) (float64, bool) {
	if w.stopPct <= 0 {
		return 0, false
	}
	if w.pos.side == SideShort {
		stop := w.pos.entry * (1 + w.stopPct)
		return stop, bar.High >= stop
	}
	stop := w.pos.entry * (1 - w.stopPct)
	return stop, bar.Low <= stop
}

func (w *walk) targetHit(bar Bar) (float64, bool) {
	if w.tpPct <= 0 {
		return 0, false
	}
	if w.pos.side == SideShort {
		target := w.pos.entry * (1 - w.tpPct)
		return target, bar.Low <= target
	}
	target := w.pos.entry * (1 + w.tpPct)
	return target, bar.High >= target
}

func (w *walk) open(i int, side Side) {
	price := w.bars[i].Close
	if price <= 0 || w.equity <= 0 {
		return
	}
	w.pos = &position{
		side:     side,
		entryIdx: i,
		entry:    price,
		qty:      w.equity * w.cfg.PositionSizePct / 100 / price,
	}
}

func (w *walk) close(i int, price float64, reason ExitReason) {
	p := w.pos
	pnl := p.unrealized(price)
	w.equity += pnl

	pnlPct := (price - p.entry) / p.entry * 100
	if p.side == SideShort {
		pnlPct = -pnlPct
	}
	entry, exit := w.bars[p.entryIdx], w.bars[i]
	w.trades = append(w.trades, Trade{
		TradeNumber:  len(w.trades) + 1,
		Side:         p.side,
		EntryTime:    entry.Timestamp,
		EntryPrice:   p.entry,
		ExitTime:     exit.Timestamp,
		ExitPrice:    price,
		Quantity:     p.qty,
		PnL:          pnl,
		PnLPct:       pnlPct,
		EquityAfter:  w.equity,
		ExitReason:   reason,
		HoldDuration: exit.Timestamp.Sub(entry.Timestamp),
	})
	w.pos = nil
}

// evaluate combines conditions with AND (all) or OR (any). No conditions never fire.
func (w *walk) evaluate(conds []strategy.Condition, logic strategy.Logic, i int) bool {
	if len(conds) == 0 {
		return false
	}
	for _, c := range conds {
		ok := w.condition(c, i)
		if logic == strategy.LogicOr && ok {
			return true
		}
		if logic != strategy.LogicOr && !ok {
			return false
		}
	}
	return logic != strategy.LogicOr
}

func (w *walk) condition(c strategy.Condition, i int) bool {
	left, err := w.cache.Series(c.LeftKey())
	if err != nil {
		return false
	}
	cur := left[i]

	var right []float64
	if key, ok := c.RightKey(); ok {
		if right, err = w.cache.Series(key); err != nil {
			return false
		}
	}
	rightAt := func(j int) float64 {
		if right == nil {
			return *c.CompareValue
		}
		return right[j]
	}

	switch c.Operator {
	case strategy.OpCrossesAbove, strategy.OpCrossesBelow:
		// A static value has no prior to cross from.
		if right == nil || i == 0 {
			return false
		}
		prev, rCur, rPrev := left[i-1], right[i], right[i-1]
		if anyNaN(cur, prev, rCur, rPrev) {
			return false
		}
		if c.Operator == strategy.OpCrossesAbove {
			return prev <= rPrev && cur > rCur
		}
		return prev >= rPrev && cur < rCur
	case strategy.OpGreaterThan:
		r := rightAt(i)
		return !anyNaN(cur, r) && cur > r
	case strategy.OpLessThan:
		r := rightAt(i)
		return !anyNaN(cur, r) && cur < r
	case strategy.OpEquals:
		r := rightAt(i)
		return !anyNaN(cur, r) && math.Abs(cur-r) <= strategy.EqualsEpsilon
	}
	return false
}

func anyNaN(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
