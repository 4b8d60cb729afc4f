package indicator

import "math"

// Default Bollinger Band parameters.
const (
	DefaultBollingerPeriod = 20
	DefaultBollingerK      = 2.0
)

// BollingerResult holds the aligned band outputs.
type BollingerResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger computes middle = SMA(period) and middle ± k·σ using the population
// standard deviation of the trailing period prices.
func Bollinger(prices []float64, period int, k float64) BollingerResult {
	n := len(prices)
	res := BollingerResult{Upper: nanSeries(n), Middle: SMA(prices, period), Lower: nanSeries(n)}
	if period <= 0 || n < period {
		return res
	}

	for i := period - 1; i < n; i++ {
		mean := res.Middle[i]
		var sq float64
		for _, p := range prices[i-period+1 : i+1] {
			d := p - mean
			sq += d * d
		}
		sd := math.Sqrt(sq / float64(period))
		res.Upper[i] = mean + k*sd
		res.Lower[i] = mean - k*sd
	}
	return res
}
