package result

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/newthinker/quarry/internal/backtest"
	"github.com/newthinker/quarry/internal/core"
	"github.com/newthinker/quarry/internal/storage/archive"
	"github.com/newthinker/quarry/internal/storage/gormdb"
	"github.com/newthinker/quarry/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func sampleResult(id, strategyID, symbol string, created time.Time) *backtest.Result {
	v := 0.0
	return &backtest.Result{
		ID:           id,
		StrategyID:   strategyID,
		StrategyName: "Strategy " + strategyID,
		Symbol:       symbol,
		Source:       "binance",
		Interval:     core.Interval1d,
		StartDate:    base.AddDate(0, -1, 0),
		EndDate:      base,
		Config: &strategy.Configuration{
			Symbol: symbol,
			EntryConditions: []strategy.Condition{{
				Indicator: "PRICE", Operator: strategy.OpGreaterThan,
				CompareType: strategy.CompareValue, CompareValue: &v,
			}},
		},
		InitialCapital: 1000,
		FinalCapital:   1100,
		Stats:          backtest.Stats{TotalTrades: 1, WinningTrades: 1, TotalReturnPct: 10, WinRate: 100},
		EquityCurve:    []backtest.EquityPoint{{Timestamp: base, Equity: 1100}},
		Trades: []backtest.Trade{{
			EntryTime: base.AddDate(0, 0, -5), ExitTime: base,
			EntryPrice: 100, ExitPrice: 110, PnL: 100, ExitReason: backtest.ExitEndOfData,
		}},
		Warnings:  []string{"data covers 80.0% of the requested range (24 of 30 expected candles)"},
		CreatedAt: created,
	}
}

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	db, err := gormdb.Open(gormdb.MemoryPath, &SummaryModel{})
	require.NoError(t, err)
	t.Cleanup(func() { gormdb.Close(db) })

	blobs, err := archive.NewLocalFS(t.TempDir())
	require.NoError(t, err)

	return map[string]Store{
		"memory": NewMemoryStore(10),
		"gorm":   NewGormStore(db, blobs, nil),
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			in := sampleResult("r1", "cross", "BTCUSDT", base)
			require.NoError(t, store.Save(ctx, in))

			got, err := store.Get(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, "cross", got.StrategyID)
			assert.Equal(t, 1100.0, got.FinalCapital)
			require.Len(t, got.Trades, 1)
			assert.Equal(t, backtest.ExitEndOfData, got.Trades[0].ExitReason)
			require.NotNil(t, got.Config)
			require.Len(t, got.Config.EntryConditions, 1)
			assert.Equal(t, in.Warnings, got.Warnings)
			assert.True(t, got.CreatedAt.Equal(base))

			_, err = store.Get(ctx, "missing")
			assert.True(t, errors.Is(err, core.ErrNotFound))
		})
	}
}

func TestStore_ListFiltersAndOrders(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				strategyID, symbol := "cross", "BTCUSDT"
				if i%2 == 1 {
					strategyID, symbol = "rsi", "ETHUSDT"
				}
				r := sampleResult(fmt.Sprintf("r%d", i), strategyID, symbol, base.Add(time.Duration(i)*time.Minute))
				require.NoError(t, store.Save(ctx, r))
			}

			all, err := store.List(ctx, backtest.ResultFilter{})
			require.NoError(t, err)
			require.Len(t, all, 5)
			assert.Equal(t, "r4", all[0].ID, "newest first")
			assert.Equal(t, "r0", all[4].ID)

			cross, err := store.List(ctx, backtest.ResultFilter{StrategyID: "cross"})
			require.NoError(t, err)
			assert.Len(t, cross, 3)

			eth, err := store.List(ctx, backtest.ResultFilter{Symbol: "ethusdt"})
			require.NoError(t, err)
			require.Len(t, eth, 2)
			assert.Equal(t, "r3", eth[0].ID)
			assert.Equal(t, 10.0, eth[0].TotalReturnPct)
			assert.Equal(t, core.Interval1d, eth[0].Interval)
			assert.Len(t, eth[0].Warnings, 1)

			paged, err := store.List(ctx, backtest.ResultFilter{Limit: 2, Offset: 1})
			require.NoError(t, err)
			require.Len(t, paged, 2)
			assert.Equal(t, "r3", paged[0].ID)
			assert.Equal(t, "r2", paged[1].ID)

			none, err := store.List(ctx, backtest.ResultFilter{StrategyID: "unknown"})
			require.NoError(t, err)
			assert.NotNil(t, none)
			assert.Empty(t, none)
		})
	}
}

func TestMemoryStore_Eviction(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, sampleResult(fmt.Sprintf("r%d", i), "cross", "BTCUSDT", base)))
	}

	_, err := store.Get(ctx, "r0")
	assert.Error(t, err, "oldest result evicted")
	list, err := store.List(ctx, backtest.ResultFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestGormStore_WritesBlob(t *testing.T) {
	ctx := context.Background()
	db, err := gormdb.Open(gormdb.MemoryPath, &SummaryModel{})
	require.NoError(t, err)
	defer gormdb.Close(db)
	blobs, err := archive.NewLocalFS(t.TempDir())
	require.NoError(t, err)

	store := NewGormStore(db, blobs, nil)
	require.NoError(t, store.Save(ctx, sampleResult("r1", "cross", "BTCUSDT", base)))

	ok, err := blobs.Exists(ctx, BlobPath("cross", "r1"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, blobs.Delete(ctx, BlobPath("cross", "r1")))
	_, err = store.Get(ctx, "r1")
	assert.True(t, errors.Is(err, core.ErrNotFound), "row without blob reads as not found")
}

func TestBlobPath(t *testing.T) {
	assert.Equal(t, "results/cross/abc.json", BlobPath("cross", "abc"))
}
