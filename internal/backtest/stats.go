package backtest

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/newthinker/quarry/internal/core"
)

// CalculateStats computes performance statistics once a walk is complete.
func CalculateStats(trades []Trade, curve []EquityPoint, initial, final float64, interval core.Interval) Stats {
	s := Stats{
		TotalTrades:    len(trades),
		SharpeRatio:    sharpeRatio(curve, interval),
		MaxDrawdownPct: maxDrawdown(curve),
	}
	if initial > 0 {
		s.TotalReturnPct = (final - initial) / initial * 100
	}
	if len(trades) == 0 {
		return s
	}

	var grossWin, grossLoss, winPctSum, lossPctSum float64
	var hold time.Duration
	for _, t := range trades {
		hold += t.HoldDuration
		if t.IsWin() {
			s.WinningTrades++
			grossWin += t.PnL
			winPctSum += t.PnLPct
			s.LargestWinPct = math.Max(s.LargestWinPct, t.PnLPct)
			continue
		}
		s.LosingTrades++
		grossLoss += math.Abs(t.PnL)
		lossPctSum += t.PnLPct
		s.LargestLossPct = math.Min(s.LargestLossPct, t.PnLPct)
	}

	s.WinRate = float64(s.WinningTrades) / float64(len(trades)) * 100
	s.AvgHoldDuration = hold / time.Duration(len(trades))
	if s.WinningTrades > 0 {
		s.AvgWinPct = winPctSum / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AvgLossPct = lossPctSum / float64(s.LosingTrades)
	}
	s.ProfitFactor = profitFactor(grossWin, grossLoss)
	return s
}

func profitFactor(grossWin, grossLoss float64) float64 {
	switch {
	case grossLoss > 0:
		return grossWin / grossLoss
	case grossWin > 0:
		return ProfitFactorNoLosses
	}
	return 0
}

// maxDrawdown returns the largest drawdown percentage on the curve.
func maxDrawdown(curve []EquityPoint) float64 {
	var maxDD float64
	for _, p := range curve {
		if p.DrawdownPct > maxDD {
			maxDD = p.DrawdownPct
		}
	}
	return maxDD
}

// sharpeRatio is mean/stdev of per-candle equity returns, annualized for the interval.
// Assumes a risk-free rate of zero.
func sharpeRatio(curve []EquityPoint, interval core.Interval) float64 {
	if len(curve) < 3 {
		return 0
	}
	returns := make(stats.Float64Data, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, curve[i].Equity/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}

	mean, err := stats.Mean(returns)
	if err != nil {
		return 0
	}
	sd, err := stats.StandardDeviationSample(returns)
	if err != nil || sd == 0 || math.IsNaN(sd) {
		return 0
	}
	return mean / sd * math.Sqrt(interval.PeriodsPerYear())
}
