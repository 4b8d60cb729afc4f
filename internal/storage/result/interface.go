// Package result persists backtest runs: a summary row per run plus the full
// serialized result.
package result

import (
	"fmt"

	"github.com/newthinker/quarry/internal/backtest"
	"github.com/newthinker/quarry/internal/core"
)

// Store is satisfied by MemoryStore and GormStore.
type Store = backtest.ResultStore

// BlobPath is the archive path of a run's serialized result.
func BlobPath(strategyID, id string) string {
	return fmt.Sprintf("results/%s/%s.json", strategyID, id)
}

func matches(s backtest.Summary, f backtest.ResultFilter) bool {
	if f.StrategyID != "" && s.StrategyID != f.StrategyID {
		return false
	}
	if f.Symbol != "" && s.Symbol != core.NormalizeSymbol(f.Symbol) {
		return false
	}
	return true
}

// page applies offset and limit to an already ordered slice.
func page[T any](items []T, f backtest.ResultFilter) []T {
	if f.Offset > 0 {
		if f.Offset >= len(items) {
			return []T{}
		}
		items = items[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(items) {
		items = items[:f.Limit]
	}
	return items
}

func notFound(id string) error {
	return core.WrapError(core.ErrNotFound, fmt.Errorf("backtest result %q", id))
}
