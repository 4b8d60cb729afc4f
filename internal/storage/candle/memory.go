// internal/storage/candle/memory.go
package candle

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/newthinker/quarry/internal/core"
)

// MemoryStore is an in-memory candle store.
type MemoryStore struct {
	series map[core.Key]map[int64]core.Candle
	mu     sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{series: make(map[core.Key]map[int64]core.Candle)}
}

// EnsureSchema is a no-op.
func (m *MemoryStore) EnsureSchema(ctx context.Context) error {
	return nil
}

// Coverage scans one series for its bounds.
func (m *MemoryStore) Coverage(ctx context.Context, symbol, source string, interval core.Interval) (core.CoverageInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.coverage(core.Key{Symbol: symbol, Source: source, Interval: interval}), nil
}

func (m *MemoryStore) coverage(key core.Key) core.CoverageInfo {
	info := core.EmptyCoverage(key.Symbol, key.Source, key.Interval)
	bars := m.series[key]
	if len(bars) == 0 {
		return info
	}
	var minTS, maxTS int64
	first := true
	for ts := range bars {
		if first || ts < minTS {
			minTS = ts
		}
		if first || ts > maxTS {
			maxTS = ts
		}
		first = false
	}
	earliest := time.Unix(minTS, 0).UTC()
	latest := time.Unix(maxTS, 0).UTC()
	info.Earliest = &earliest
	info.Latest = &latest
	info.Count = int64(len(bars))
	return info
}

// Summaries returns coverage per series, sorted by symbol, source and interval.
func (m *MemoryStore) Summaries(ctx context.Context, symbol string) ([]core.CoverageInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []core.CoverageInfo
	for key, bars := range m.series {
		if len(bars) == 0 {
			continue
		}
		if symbol != "" && key.Symbol != symbol {
			continue
		}
		out = append(out, m.coverage(key))
	}
	sortSummaries(out)
	return out, nil
}

// Symbols returns distinct symbols.
func (m *MemoryStore) Symbols(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for key, bars := range m.series {
		if len(bars) == 0 || seen[key.Symbol] {
			continue
		}
		seen[key.Symbol] = true
		out = append(out, key.Symbol)
	}
	sort.Strings(out)
	return out, nil
}

// Read returns candles in [from, to] ascending.
func (m *MemoryStore) Read(ctx context.Context, symbol, source string, interval core.Interval, from, to time.Time) ([]core.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lo, hi := truncate(from).Unix(), truncate(to).Unix()
	var out []core.Candle
	for ts, c := range m.series[core.Key{Symbol: symbol, Source: source, Interval: interval}] {
		if ts >= lo && ts <= hi {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Write upserts candles.
func (m *MemoryStore) Write(ctx context.Context, candles []core.Candle) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range candles {
		c.Timestamp = truncate(c.Timestamp)
		key := c.SeriesKey()
		bars, ok := m.series[key]
		if !ok {
			bars = make(map[int64]core.Candle)
			m.series[key] = bars
		}
		bars[c.Timestamp.Unix()] = c
	}
	return len(candles), nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

func sortSummaries(s []core.CoverageInfo) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Symbol != s[j].Symbol {
			return s[i].Symbol < s[j].Symbol
		}
		if s[i].Source != s[j].Source {
			return s[i].Source < s[j].Source
		}
		return s[i].Interval < s[j].Interval
	})
}
