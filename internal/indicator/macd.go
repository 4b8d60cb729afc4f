package indicator

import "math"

// Standard MACD parameters.
const (
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9
)

// MACDResult holds the three aligned MACD outputs.
type MACDResult struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes EMA(fast) - EMA(slow), its EMA(signal) over the valid segment,
// and the histogram. All outputs are aligned with prices.
func MACD(prices []float64, fast, slow, signal int) MACDResult {
	n := len(prices)
	res := MACDResult{Line: nanSeries(n), Signal: nanSeries(n), Histogram: nanSeries(n)}

	fastEMA := EMA(prices, fast)
	slowEMA := EMA(prices, slow)
	for i := 0; i < n; i++ {
		if !math.IsNaN(fastEMA[i]) && !math.IsNaN(slowEMA[i]) {
			res.Line[i] = fastEMA[i] - slowEMA[i]
		}
	}

	start := FirstValid(res.Line)
	if start < 0 {
		return res
	}
	sig := EMA(res.Line[start:], signal)
	copy(res.Signal[start:], sig)

	for i := start; i < n; i++ {
		if !math.IsNaN(res.Signal[i]) {
			res.Histogram[i] = res.Line[i] - res.Signal[i]
		}
	}
	return res
}
