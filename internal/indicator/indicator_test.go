package indicator

import (
	"math"
	"testing"

	"github.com/markcheno/go-talib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// samplePrices returns a deterministic oscillating series.
func samplePrices(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 10*math.Sin(float64(i)/4) + float64(i%7) - 3
	}
	return out
}

// assertMatchesTalib compares the valid tail of ours with the same indices of ta-lib's output.
func assertMatchesTalib(t *testing.T, ours, theirs []float64, from int) {
	t.Helper()
	require.Equal(t, len(theirs), len(ours))
	for i := from; i < len(ours); i++ {
		assert.InDelta(t, theirs[i], ours[i], 1e-6, "index %d", i)
	}
}

func TestSMA_MatchesTalib(t *testing.T) {
	prices := samplePrices(120)
	assertMatchesTalib(t, SMA(prices, 20), talib.Sma(prices, 20), 19)
}

func TestEMA_MatchesTalib(t *testing.T) {
	prices := samplePrices(120)
	assertMatchesTalib(t, EMA(prices, 12), talib.Ema(prices, 12), 11)
}

func TestRSI_MatchesTalib(t *testing.T) {
	prices := samplePrices(120)
	assertMatchesTalib(t, RSI(prices, 14), talib.Rsi(prices, 14), 14)
}

func TestBollinger_MatchesTalib(t *testing.T) {
	prices := samplePrices(120)
	upper, middle, lower := talib.BBands(prices, 20, 2, 2, talib.SMA)
	bb := Bollinger(prices, 20, 2)
	assertMatchesTalib(t, bb.Upper, upper, 19)
	assertMatchesTalib(t, bb.Middle, middle, 19)
	assertMatchesTalib(t, bb.Lower, lower, 19)
}

func TestRSI_NoLosses(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5, 6}
	rsi := RSI(prices, 3)
	assert.Equal(t, 100.0, rsi[3])
	assert.Equal(t, 100.0, rsi[5])
}

func TestRSI_WilderSmoothing(t *testing.T) {
	// deltas: +1, -1, +2, -2
	prices := []float64{10, 11, 10, 12, 10}
	rsi := RSI(prices, 2)

	// index 2: avgGain 0.5, avgLoss 0.5 -> 50
	assert.InDelta(t, 50, rsi[2], 1e-9)
	// index 3: avgGain (0.5+2)/2 = 1.25, avgLoss 0.25 -> 100 - 100/6
	assert.InDelta(t, 100-100.0/6, rsi[3], 1e-9)
	// index 4: avgGain 0.625, avgLoss (0.25+2)/2 = 1.125
	assert.InDelta(t, 100-100/(1+0.625/1.125), rsi[4], 1e-9)
}

func TestMACD_Composition(t *testing.T) {
	prices := samplePrices(80)
	m := MACD(prices, 12, 26, 9)
	fast, slow := EMA(prices, 12), EMA(prices, 26)

	for i := 25; i < len(prices); i++ {
		assert.InDelta(t, fast[i]-slow[i], m.Line[i], 1e-12)
	}

	// Signal is EMA(9) over the valid MACD segment re-aligned to the original indices.
	sig := EMA(m.Line[25:], 9)
	for i := 33; i < len(prices); i++ {
		assert.InDelta(t, sig[i-25], m.Signal[i], 1e-12)
		assert.InDelta(t, m.Line[i]-m.Signal[i], m.Histogram[i], 1e-12)
	}
	assert.True(t, math.IsNaN(m.Histogram[32]))
}

func TestBollinger_Flat(t *testing.T) {
	prices := []float64{5, 5, 5, 5}
	bb := Bollinger(prices, 3, 2)
	assert.Equal(t, 5.0, bb.Upper[3])
	assert.Equal(t, 5.0, bb.Lower[3])
}

func TestCache_ReusesSeries(t *testing.T) {
	prices := samplePrices(60)
	c := NewCache(prices, make([]float64, len(prices)))

	a, err := c.Series(Key{Kind: KindSMA, Period: 5})
	require.NoError(t, err)
	b, err := c.Series(Key{Kind: KindSMA, Period: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Computations())
	assert.Equal(t, &a[0], &b[0], "same backing array expected")

	_, err = c.Series(Key{Kind: KindSMA, Period: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Computations())
}

func TestCache_MultiOutputSubKeys(t *testing.T) {
	prices := samplePrices(60)
	c := NewCache(prices, nil)

	_, err := c.Series(Key{Kind: KindMACDSignal})
	require.NoError(t, err)
	computed := c.Computations()
	assert.Equal(t, 3, computed, "line, signal and histogram stored together")

	// Period is ignored for MACD outputs.
	_, err = c.Series(Key{Kind: KindMACDHistogram, Period: 7})
	require.NoError(t, err)
	assert.Equal(t, computed, c.Computations())

	_, err = c.Series(Key{Kind: KindBBLower})
	require.NoError(t, err)
	upper, err := c.Series(Key{Kind: KindBBUpper, Period: 20})
	require.NoError(t, err)
	assert.Equal(t, computed+3, c.Computations())
	assert.Equal(t, 19, FirstValid(upper))

	rsi, err := c.Series(Key{Kind: KindRSI})
	require.NoError(t, err)
	assert.Equal(t, DefaultRSIPeriod, FirstValid(rsi))
}

func TestCache_Errors(t *testing.T) {
	c := NewCache(samplePrices(10), nil)
	_, err := c.Series(Key{Kind: KindEMA})
	assert.Error(t, err)
	_, err = c.Series(Key{Kind: "VWAP", Period: 3})
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("bb_upper")
	require.NoError(t, err)
	assert.Equal(t, KindBBUpper, k)

	_, err = ParseKind("ATR")
	assert.Error(t, err)
}

func TestKey_String(t *testing.T) {
	assert.Equal(t, "SMA(5)", Key{Kind: KindSMA, Period: 5}.String())
	assert.Equal(t, "MACD", Key{Kind: KindMACD}.String())
}
