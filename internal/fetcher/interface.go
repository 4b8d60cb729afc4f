package fetcher

import (
	"context"
	"time"

	"github.com/newthinker/quarry/internal/core"
)

// Info describes a fetcher's capabilities. SourceName is the registry key.
type Info struct {
	SourceName         string          `json:"source_name"`
	DisplayName        string          `json:"display_name"`
	CanFetchOnDemand   bool            `json:"can_fetch_on_demand"`
	SupportedIntervals []core.Interval `json:"supported_intervals"`
}

// Supports reports whether the fetcher can serve the interval.
func (i Info) Supports(interval core.Interval) bool {
	for _, iv := range i.SupportedIntervals {
		if iv == interval {
			return true
		}
	}
	return false
}

// Fetcher retrieves historical candles from one external source.
type Fetcher interface {
	Info() Info

	// Fetch returns candles in [from, to] ordered ascending, paging internally.
	// Unsupported intervals fail with core.ErrValidation before any network call.
	// On error no candles are returned.
	Fetch(ctx context.Context, symbol string, interval core.Interval, from, to time.Time) ([]core.Candle, error)
}

// Config holds per-source fetcher settings.
type Config struct {
	Enabled    bool          `mapstructure:"enabled"`
	BaseURL    string        `mapstructure:"base_url"`
	PageLimit  int           `mapstructure:"page_limit"`
	RatePerSec float64       `mapstructure:"rate_per_sec"`
	Timeout    time.Duration `mapstructure:"timeout"`
}
