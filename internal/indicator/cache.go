package indicator

import (
	"fmt"
	"strings"
)

// Kind names a series a strategy condition can reference.
type Kind string

const (
	KindSMA           Kind = "SMA"
	KindEMA           Kind = "EMA"
	KindRSI           Kind = "RSI"
	KindMACD          Kind = "MACD"
	KindMACDSignal    Kind = "MACD_SIGNAL"
	KindMACDHistogram Kind = "MACD_HISTOGRAM"
	KindBBUpper       Kind = "BB_UPPER"
	KindBBMiddle      Kind = "BB_MIDDLE"
	KindBBLower       Kind = "BB_LOWER"
	KindPrice         Kind = "PRICE"
	KindVolume        Kind = "VOLUME"
)

var kinds = map[Kind]bool{
	KindSMA: true, KindEMA: true, KindRSI: true,
	KindMACD: true, KindMACDSignal: true, KindMACDHistogram: true,
	KindBBUpper: true, KindBBMiddle: true, KindBBLower: true,
	KindPrice: true, KindVolume: true,
}

// ParseKind resolves an indicator name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	if !kinds[k] {
		return "", fmt.Errorf("unknown indicator %q", s)
	}
	return k, nil
}

// NeedsPeriod reports whether the kind requires an explicit positive period.
func (k Kind) NeedsPeriod() bool {
	return k == KindSMA || k == KindEMA
}

// Key identifies one computed series within a run.
type Key struct {
	Kind   Kind
	Period int
}

// Normalize fills default periods so equivalent references share a key.
// MACD outputs always use 12/26/9 and are keyed with period 0.
func (k Key) Normalize() Key {
	switch k.Kind {
	case KindRSI:
		if k.Period <= 0 {
			k.Period = DefaultRSIPeriod
		}
	case KindBBUpper, KindBBMiddle, KindBBLower:
		if k.Period <= 0 {
			k.Period = DefaultBollingerPeriod
		}
	case KindMACD, KindMACDSignal, KindMACDHistogram, KindPrice, KindVolume:
		k.Period = 0
	}
	return k
}

func (k Key) String() string {
	if k.Period == 0 {
		return string(k.Kind)
	}
	return fmt.Sprintf("%s(%d)", k.Kind, k.Period)
}

// Cache computes each series once per run. It is not safe for concurrent use;
// each simulation owns its own Cache.
type Cache struct {
	closes   []float64
	volumes  []float64
	series   map[Key][]float64
	computed int
}

// NewCache creates a cache over one candle sequence.
func NewCache(closes, volumes []float64) *Cache {
	return &Cache{
		closes:  closes,
		volumes: volumes,
		series:  make(map[Key][]float64),
	}
}

// Series returns the aligned series for key, computing it on first use.
func (c *Cache) Series(key Key) ([]float64, error) {
	key = key.Normalize()
	if s, ok := c.series[key]; ok {
		return s, nil
	}

	switch key.Kind {
	case KindSMA, KindEMA:
		if key.Period <= 0 {
			return nil, fmt.Errorf("%s requires a positive period", key.Kind)
		}
		if key.Kind == KindSMA {
			c.store(key, SMA(c.closes, key.Period))
		} else {
			c.store(key, EMA(c.closes, key.Period))
		}
	case KindRSI:
		c.store(key, RSI(c.closes, key.Period))
	case KindMACD, KindMACDSignal, KindMACDHistogram:
		m := MACD(c.closes, MACDFast, MACDSlow, MACDSignal)
		c.store(Key{Kind: KindMACD}, m.Line)
		c.store(Key{Kind: KindMACDSignal}, m.Signal)
		c.store(Key{Kind: KindMACDHistogram}, m.Histogram)
	case KindBBUpper, KindBBMiddle, KindBBLower:
		b := Bollinger(c.closes, key.Period, DefaultBollingerK)
		c.store(Key{Kind: KindBBUpper, Period: key.Period}, b.Upper)
		c.store(Key{Kind: KindBBMiddle, Period: key.Period}, b.Middle)
		c.store(Key{Kind: KindBBLower, Period: key.Period}, b.Lower)
	case KindPrice:
		c.store(key, c.closes)
	case KindVolume:
		c.store(key, c.volumes)
	default:
		return nil, fmt.Errorf("unknown indicator %q", key.Kind)
	}
	return c.series[key], nil
}

// Computations returns how many series were computed, for reuse checks.
func (c *Cache) Computations() int {
	return c.computed
}

func (c *Cache) store(key Key, s []float64) {
	c.series[key] = s
	c.computed++
}
