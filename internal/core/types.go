package core

import (
	"strings"
	"time"
)

// Tick is the smallest time step the store distinguishes.
const Tick = time.Second

// Candle represents one OHLCV observation with its provenance.
type Candle struct {
	Symbol     string    `json:"symbol"`
	Source     string    `json:"source"`
	Interval   Interval  `json:"interval"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	TradeCount int64     `json:"trade_count"`
	Timestamp  time.Time `json:"timestamp"`
}

// IsValid checks if the candle has required fields
func (c Candle) IsValid() bool {
	return c.Symbol != "" && c.Source != "" && c.Interval.IsValid() && !c.Timestamp.IsZero()
}

// Key identifies a candle series.
type Key struct {
	Symbol   string
	Source   string
	Interval Interval
}

// SeriesKey returns the series the candle belongs to.
func (c Candle) SeriesKey() Key {
	return Key{Symbol: c.Symbol, Source: c.Source, Interval: c.Interval}
}

// NormalizeSource lowercases and trims a source name to its canonical form.
func NormalizeSource(source string) string {
	return strings.ToLower(strings.TrimSpace(source))
}

// NormalizeSymbol uppercases and trims a symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// CoverageInfo summarizes what the store holds for one series.
// Count == 0 iff Earliest and Latest are nil.
type CoverageInfo struct {
	Symbol   string     `json:"symbol"`
	Source   string     `json:"source"`
	Interval Interval   `json:"interval"`
	Earliest *time.Time `json:"earliest,omitempty"`
	Latest   *time.Time `json:"latest,omitempty"`
	Count    int64      `json:"count"`
}

// EmptyCoverage returns the coverage of a series with no stored candles.
func EmptyCoverage(symbol, source string, interval Interval) CoverageInfo {
	return CoverageInfo{Symbol: symbol, Source: source, Interval: interval}
}

// Empty reports whether nothing is stored for the series.
func (c CoverageInfo) Empty() bool {
	return c.Count == 0 || c.Earliest == nil || c.Latest == nil
}

// FullyCovers reports whether [from, to] lies inside the stored range.
func (c CoverageInfo) FullyCovers(from, to time.Time) bool {
	if c.Empty() {
		return false
	}
	return !c.Earliest.After(from) && !c.Latest.Before(to)
}

// DataGap is an inclusive window that has to be fetched. From <= To.
type DataGap struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Duration returns the length of the gap.
func (g DataGap) Duration() time.Duration {
	return g.To.Sub(g.From)
}

// MarketDataRequest asks for a series over an inclusive time window.
type MarketDataRequest struct {
	Symbol   string    `json:"symbol"`
	Source   string    `json:"source"`
	Interval Interval  `json:"interval"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
}

// Normalize returns a copy with canonical symbol/source casing and UTC bounds.
func (r MarketDataRequest) Normalize() MarketDataRequest {
	r.Symbol = NormalizeSymbol(r.Symbol)
	r.Source = NormalizeSource(r.Source)
	r.From = r.From.UTC()
	r.To = r.To.UTC()
	return r
}

// Validate checks required fields and bounds.
func (r MarketDataRequest) Validate() error {
	switch {
	case r.Symbol == "":
		return Validationf("symbol is required")
	case r.Source == "":
		return Validationf("source is required")
	case !r.Interval.IsValid():
		return Validationf("unsupported interval %q", r.Interval)
	case r.From.IsZero() || r.To.IsZero():
		return Validationf("from and to are required")
	case !r.From.Before(r.To):
		return Validationf("from (%s) must be before to (%s)", r.From.Format(time.RFC3339), r.To.Format(time.RFC3339))
	}
	return nil
}

// MarketDataResult is the outcome of a cache-first candle lookup.
type MarketDataResult struct {
	Symbol       string    `json:"symbol"`
	Source       string    `json:"source"`
	Interval     Interval  `json:"interval"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	Candles      []Candle  `json:"candles"`
	CachedCount  int       `json:"cached_count"`
	FetchedCount int       `json:"fetched_count"`
	Gaps         []DataGap `json:"gaps,omitempty"`
	FailedGaps   int       `json:"failed_gaps,omitempty"`
	Warnings     []string  `json:"warnings,omitempty"`
	Message      string    `json:"message,omitempty"`
}

// CachedFrom derives the cached count, floored at zero.
func CachedFrom(total, fetched int) int {
	if total-fetched < 0 {
		return 0
	}
	return total - fetched
}
