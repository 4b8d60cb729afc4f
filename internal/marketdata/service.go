package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newthinker/quarry/internal/core"
	"github.com/newthinker/quarry/internal/fetcher"
	"github.com/newthinker/quarry/internal/storage/candle"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Cache outcomes reported to the Recorder.
const (
	OutcomeHit     = "hit"
	OutcomePartial = "partial"
	OutcomeMiss    = "miss"
)

// Recorder receives cache and fetch measurements. *metrics.Registry satisfies it.
type Recorder interface {
	RecordCandleRequest(source, interval, outcome string)
	RecordGaps(source string, n int)
	RecordFetch(source, interval string, candles int, duration float64, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordCandleRequest(string, string, string)      {}
func (nopRecorder) RecordGaps(string, int)                          {}
func (nopRecorder) RecordFetch(string, string, int, float64, error) {}

// Config controls the cache orchestrator.
type Config struct {
	// SettleDelay is waited after a write before the final read. Zero disables it.
	SettleDelay time.Duration
	// WarmConcurrency bounds parallel requests in Warm and Summaries.
	WarmConcurrency int
}

// DefaultConfig returns the default orchestrator settings.
func DefaultConfig() Config {
	return Config{
		SettleDelay:     500 * time.Millisecond,
		WarmConcurrency: 4,
	}
}

// Service serves candles cache-first, fetching missing ranges on demand.
type Service struct {
	store    candle.Store
	fetchers *fetcher.Registry
	cfg      Config
	metrics  Recorder
	logger   *zap.Logger
}

// New creates a Service.
func New(store candle.Store, fetchers *fetcher.Registry, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fetchers == nil {
		fetchers = fetcher.NewRegistry()
	}
	if cfg.WarmConcurrency <= 0 {
		cfg.WarmConcurrency = 1
	}
	return &Service{
		store:    store,
		fetchers: fetchers,
		cfg:      cfg,
		metrics:  nopRecorder{},
		logger:   logger,
	}
}

// SetMetrics attaches a metrics recorder.
func (s *Service) SetMetrics(r Recorder) {
	if r != nil {
		s.metrics = r
	}
}

// Fetchers returns the registry backing on-demand fetches.
func (s *Service) Fetchers() *fetcher.Registry {
	return s.fetchers
}

// GetCandles returns candles for req, fetching and persisting any head or tail
// range the store does not cover. A failing fetch only produces a warning;
// store failures are returned.
func (s *Service) GetCandles(ctx context.Context, req core.MarketDataRequest) (*core.MarketDataResult, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cov, err := s.store.Coverage(ctx, req.Symbol, req.Source, req.Interval)
	if err != nil {
		return nil, asPersistence(err)
	}
	gaps := IdentifyGaps(req, cov)

	result := &core.MarketDataResult{
		Symbol:   req.Symbol,
		Source:   req.Source,
		Interval: req.Interval,
		From:     req.From,
		To:       req.To,
		Gaps:     gaps,
	}
	s.metrics.RecordCandleRequest(req.Source, string(req.Interval), outcome(cov, gaps))

	fetched := 0
	fetcherFound := false
	if len(gaps) > 0 {
		s.metrics.RecordGaps(req.Source, len(gaps))

		f, ok := s.fetchers.Lookup(req.Source, req.Interval)
		fetcherFound = ok
		if !ok {
			s.logger.Debug("no on-demand fetcher, serving stored data only",
				zap.String("source", req.Source),
				zap.String("interval", string(req.Interval)),
			)
		}
		for _, gap := range gaps {
			if !ok {
				break
			}
			n, err := s.fillGap(ctx, f, req, gap)
			if err == nil {
				fetched += n
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, core.ErrPersistence) {
				return nil, err
			}
			result.FailedGaps++
			result.Warnings = append(result.Warnings, fmt.Sprintf("fetch failed for %s..%s: %v",
				gap.From.Format(time.RFC3339), gap.To.Format(time.RFC3339), err))
			s.logger.Warn("gap fetch failed, skipping",
				zap.String("symbol", req.Symbol),
				zap.String("source", req.Source),
				zap.String("interval", string(req.Interval)),
				zap.Time("from", gap.From),
				zap.Time("to", gap.To),
				zap.Error(err),
			)
		}
	}

	if fetched > 0 {
		if err := s.settle(ctx); err != nil {
			return nil, err
		}
	}

	candles, err := s.store.Read(ctx, req.Symbol, req.Source, req.Interval, req.From, req.To)
	if err != nil {
		return nil, asPersistence(err)
	}
	result.Candles = candles
	result.FetchedCount = fetched
	result.CachedCount = core.CachedFrom(len(candles), fetched)

	if len(candles) == 0 {
		result.Message = absenceMessage(req, fetcherFound)
	}

	s.logger.Debug("candles served",
		zap.String("symbol", req.Symbol),
		zap.String("source", req.Source),
		zap.String("interval", string(req.Interval)),
		zap.Int("total", len(candles)),
		zap.Int("fetched", fetched),
		zap.Int("gaps", len(gaps)),
	)
	return result, nil
}

// fillGap fetches one gap and writes what came back.
func (s *Service) fillGap(ctx context.Context, f fetcher.Fetcher, req core.MarketDataRequest, gap core.DataGap) (int, error) {
	start := time.Now()
	candles, err := f.Fetch(ctx, req.Symbol, req.Interval, gap.From, gap.To)
	s.metrics.RecordFetch(req.Source, string(req.Interval), len(candles), time.Since(start).Seconds(), err)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, nil
	}

	for i := range candles {
		candles[i].Symbol = req.Symbol
		candles[i].Source = req.Source
		candles[i].Interval = req.Interval
	}
	n, err := s.store.Write(ctx, candles)
	if err != nil {
		return 0, asPersistence(err)
	}
	s.logger.Info("gap filled",
		zap.String("symbol", req.Symbol),
		zap.String("source", req.Source),
		zap.String("interval", string(req.Interval)),
		zap.Time("from", gap.From),
		zap.Time("to", gap.To),
		zap.Int("written", n),
	)
	return n, nil
}

// settle waits for the configured delay so asynchronous stores expose fresh writes.
func (s *Service) settle(ctx context.Context) error {
	if s.cfg.SettleDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(s.cfg.SettleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Coverage returns the stored coverage of one series.
func (s *Service) Coverage(ctx context.Context, symbol, source string, interval core.Interval) (core.CoverageInfo, error) {
	cov, err := s.store.Coverage(ctx, core.NormalizeSymbol(symbol), core.NormalizeSource(source), interval)
	if err != nil {
		return core.CoverageInfo{}, asPersistence(err)
	}
	return cov, nil
}

// Summaries lists coverage per series for one symbol, or for every stored symbol when empty.
func (s *Service) Summaries(ctx context.Context, symbol string) ([]core.CoverageInfo, error) {
	if symbol != "" {
		out, err := s.store.Summaries(ctx, core.NormalizeSymbol(symbol))
		return out, asPersistence(err)
	}

	symbols, err := s.store.Symbols(ctx)
	if err != nil {
		return nil, asPersistence(err)
	}

	perSymbol := make([][]core.CoverageInfo, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.WarmConcurrency)
	for i, sym := range symbols {
		g.Go(func() error {
			out, err := s.store.Summaries(gctx, sym)
			if err != nil {
				return err
			}
			perSymbol[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, asPersistence(err)
	}

	var out []core.CoverageInfo
	for _, list := range perSymbol {
		out = append(out, list...)
	}
	return out, nil
}

// Warm runs GetCandles for many requests with bounded concurrency.
// Results are returned in request order; the first hard error cancels the rest.
func (s *Service) Warm(ctx context.Context, reqs []core.MarketDataRequest) ([]*core.MarketDataResult, error) {
	results := make([]*core.MarketDataResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.WarmConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := s.GetCandles(gctx, req)
			if err != nil {
				return fmt.Errorf("%s/%s/%s: %w", req.Symbol, req.Source, req.Interval, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func outcome(cov core.CoverageInfo, gaps []core.DataGap) string {
	switch {
	case len(gaps) == 0:
		return OutcomeHit
	case cov.Empty():
		return OutcomeMiss
	default:
		return OutcomePartial
	}
}

func absenceMessage(req core.MarketDataRequest, fetcherFound bool) string {
	if !fetcherFound {
		return fmt.Sprintf("no stored candles for %s %s on %s and no fetcher can load source %q on demand",
			req.Symbol, req.Interval, req.Source, req.Source)
	}
	return fmt.Sprintf("source %q returned no candles for %s %s in the requested range",
		req.Source, req.Symbol, req.Interval)
}

// asPersistence tags untyped store errors as persistence failures.
func asPersistence(err error) error {
	if err == nil {
		return nil
	}
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return err
	}
	return core.WrapError(core.ErrPersistence, err)
}
