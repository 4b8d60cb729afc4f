// Package app assembles quarry's stores, fetchers and services from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/quarry/internal/api"
	"github.com/newthinker/quarry/internal/api/job"
	"github.com/newthinker/quarry/internal/backtest"
	"github.com/newthinker/quarry/internal/config"
	"github.com/newthinker/quarry/internal/core"
	"github.com/newthinker/quarry/internal/fetcher"
	"github.com/newthinker/quarry/internal/fetcher/binance"
	"github.com/newthinker/quarry/internal/fetcher/yahoo"
	"github.com/newthinker/quarry/internal/marketdata"
	"github.com/newthinker/quarry/internal/metrics"
	"github.com/newthinker/quarry/internal/storage/archive"
	"github.com/newthinker/quarry/internal/storage/candle"
	"github.com/newthinker/quarry/internal/storage/gormdb"
	"github.com/newthinker/quarry/internal/storage/result"
	"github.com/newthinker/quarry/internal/strategy"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App owns every long-lived component. Close releases the stores.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	Metrics    *metrics.Registry
	Candles    candle.Store
	Fetchers   *fetcher.Registry
	MarketData *marketdata.Service
	Strategies strategy.Repository
	Results    backtest.ResultStore
	Backtests  *backtest.Service
	Jobs       *job.Store

	db *gorm.DB

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New builds the application. The candle schema is bootstrapped with retries;
// failing that is fatal.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger, Metrics: metrics.NewRegistry()}

	store, err := openCandleStore(cfg.Storage.Candles, logger)
	if err != nil {
		return nil, err
	}
	a.Candles = store
	c := cfg.Storage.Candles
	if err := candle.EnsureSchemaWithRetry(ctx, store, c.SchemaAttempts, c.SchemaDelay, logger); err != nil {
		a.Close()
		return nil, err
	}

	a.db, err = gormdb.Open(cfg.Storage.Results.DSN, &strategy.StrategyModel{}, &result.SummaryModel{})
	if err != nil {
		a.Close()
		return nil, err
	}
	blobs, err := archive.New(cfg.Storage.Archive)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Results = result.NewGormStore(a.db, blobs, logger)

	repo := strategy.NewGormRepository(a.db, logger)
	seeds, err := BuildStrategies(cfg.Strategies)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := strategy.Seed(ctx, repo, seeds); err != nil {
		a.Close()
		return nil, err
	}
	a.Strategies = repo

	a.Fetchers, err = BuildFetchers(cfg.Fetchers)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.MarketData = marketdata.New(store, a.Fetchers, marketdata.Config{
		SettleDelay:     cfg.MarketData.SettleDelay,
		WarmConcurrency: cfg.MarketData.WarmConcurrency,
	}, logger)
	a.MarketData.SetMetrics(a.Metrics)

	a.Backtests = backtest.NewService(repo, a.MarketData, a.Results, logger)
	a.Backtests.SetMetrics(a.Metrics)

	a.Jobs = job.NewStore(cfg.Server.MaxJobs, time.Duration(cfg.Server.JobTTLHours)*time.Hour)
	a.Jobs.OnActive = a.Metrics.SetJobsActive

	logger.Info("quarry initialized",
		zap.String("candle_store", cfg.Storage.Candles.Driver),
		zap.String("archive", cfg.Storage.Archive.Backend),
		zap.Int("strategies", len(seeds)),
		zap.Int("fetchers", len(a.Fetchers.List())),
	)
	return a, nil
}

func openCandleStore(cfg config.CandleStoreConfig, logger *zap.Logger) (candle.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return candle.NewSQLiteStore(cfg.Path, logger)
	case config.DriverInflux:
		return candle.NewInfluxStore(cfg.Influx, logger)
	case config.DriverMemory:
		return candle.NewMemoryStore(), nil
	}
	return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown candle store driver %q", cfg.Driver))
}

// BuildFetchers registers every enabled fetcher.
func BuildFetchers(cfgs map[string]fetcher.Config) (*fetcher.Registry, error) {
	reg := fetcher.NewRegistry()
	for name, fc := range cfgs {
		if !fc.Enabled {
			continue
		}
		switch core.NormalizeSource(name) {
		case binance.SourceName:
			reg.Register(binance.NewWithConfig(fc))
		case yahoo.SourceName:
			reg.Register(yahoo.NewWithConfig(fc))
		default:
			return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown fetcher %q", name))
		}
	}
	return reg, nil
}

// Server builds the HTTP server over the app's services.
func (a *App) Server() (*api.Server, error) {
	deps := api.Dependencies{
		Strategies: a.Strategies,
		Backtests:  a.Backtests,
		MarketData: a.MarketData,
		Jobs:       a.Jobs,
	}
	if a.cfg.Metrics.Enabled {
		deps.Metrics = a.Metrics
	}
	return api.NewServer(api.Config{
		Host:            a.cfg.Server.Host,
		Port:            a.cfg.Server.Port,
		APIKey:          a.cfg.Server.APIKey,
		BacktestTimeout: a.cfg.Backtest.Timeout,
	}, deps, a.logger)
}

// Start serves HTTP until ctx is cancelled or Stop is called.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app already running")
	}
	srv, err := a.Server()
	if err != nil {
		a.mu.Unlock()
		return err
	}
	a.running = true
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		cancel()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.Jobs.Wait()
	return <-errCh
}

// Stop stops a running Start.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// Close releases the candle store and the results database.
func (a *App) Close() error {
	var errs []error
	if a.Candles != nil {
		errs = append(errs, a.Candles.Close())
	}
	errs = append(errs, gormdb.Close(a.db))
	return errors.Join(errs...)
}
