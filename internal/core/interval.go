package core

import (
	"strings"
	"time"
)

// Interval is a canonical candle interval code.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval2h  Interval = "2h"
	Interval4h  Interval = "4h"
	Interval6h  Interval = "6h"
	Interval8h  Interval = "8h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
	Interval3d  Interval = "3d"
	Interval1w  Interval = "1w"
	Interval1M  Interval = "1M"
)

// Intervals lists the canonical vocabulary in ascending duration order.
var Intervals = []Interval{
	Interval1m, Interval3m, Interval5m, Interval15m, Interval30m,
	Interval1h, Interval2h, Interval4h, Interval6h, Interval8h, Interval12h,
	Interval1d, Interval3d, Interval1w, Interval1M,
}

var intervalDurations = map[Interval]time.Duration{
	Interval1m:  time.Minute,
	Interval3m:  3 * time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval30m: 30 * time.Minute,
	Interval1h:  time.Hour,
	Interval2h:  2 * time.Hour,
	Interval4h:  4 * time.Hour,
	Interval6h:  6 * time.Hour,
	Interval8h:  8 * time.Hour,
	Interval12h: 12 * time.Hour,
	Interval1d:  24 * time.Hour,
	Interval3d:  72 * time.Hour,
	Interval1w:  7 * 24 * time.Hour,
	Interval1M:  30 * 24 * time.Hour,
}

// periodsPerYear annualizes per-candle return statistics.
var periodsPerYear = map[Interval]float64{
	Interval1m:  525600,
	Interval5m:  105120,
	Interval15m: 35040,
	Interval1h:  8760,
	Interval4h:  2190,
	Interval1d:  365,
	Interval1w:  52,
}

// ParseInterval validates s against the canonical vocabulary.
// "1M" (month) is case-sensitive; everything else is matched case-insensitively.
func ParseInterval(s string) (Interval, error) {
	s = strings.TrimSpace(s)
	if s == "1M" {
		return Interval1M, nil
	}
	iv := Interval(strings.ToLower(s))
	if _, ok := intervalDurations[iv]; !ok {
		return "", Validationf("unsupported interval %q", s)
	}
	return iv, nil
}

// IsValid reports whether the interval is part of the canonical vocabulary.
func (i Interval) IsValid() bool {
	_, ok := intervalDurations[i]
	return ok
}

// Duration returns the nominal length of one candle. Months count as 30 days.
func (i Interval) Duration() time.Duration {
	return intervalDurations[i]
}

// PeriodsPerYear returns the annualization multiplier, defaulting to 365.
func (i Interval) PeriodsPerYear() float64 {
	if p, ok := periodsPerYear[i]; ok {
		return p
	}
	return 365
}

// ExpectedCandles is the number of candles a gapless [from, to] window holds.
func (i Interval) ExpectedCandles(from, to time.Time) int64 {
	step := i.Duration()
	if step <= 0 || to.Before(from) {
		return 0
	}
	return int64(to.Sub(from)/step) + 1
}

func (i Interval) String() string {
	return string(i)
}
