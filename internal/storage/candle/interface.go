// internal/storage/candle/interface.go
package candle

import (
	"context"
	"time"

	"github.com/newthinker/quarry/internal/core"
)

// Store defines the interface for candle persistence.
// Writes are upserts keyed by (symbol, source, interval, timestamp); the last writer wins.
type Store interface {
	// EnsureSchema creates tables or verifies buckets. Safe to call on every start.
	EnsureSchema(ctx context.Context) error

	// Coverage returns min/max timestamp and count for one series.
	Coverage(ctx context.Context, symbol, source string, interval core.Interval) (core.CoverageInfo, error)

	// Summaries returns coverage for every series of symbol, or of all symbols when empty.
	Summaries(ctx context.Context, symbol string) ([]core.CoverageInfo, error)

	// Symbols returns the distinct stored symbols, sorted.
	Symbols(ctx context.Context) ([]string, error)

	// Read returns candles in [from, to] ordered by timestamp ascending.
	Read(ctx context.Context, symbol, source string, interval core.Interval, from, to time.Time) ([]core.Candle, error)

	// Write upserts candles and returns how many were written.
	Write(ctx context.Context, candles []core.Candle) (int, error)

	Close() error
}

// Driver names accepted by the storage.candles.driver setting.
const (
	DriverSQLite   = "sqlite"
	DriverInfluxDB = "influxdb"
	DriverMemory   = "memory"
)

// persistenceErr tags a storage failure so callers can match core.ErrPersistence.
func persistenceErr(err error) error {
	if err == nil {
		return nil
	}
	return core.WrapError(core.ErrPersistence, err)
}

// truncate returns the canonical stored form of a timestamp.
func truncate(t time.Time) time.Time {
	return t.UTC().Truncate(core.Tick)
}
