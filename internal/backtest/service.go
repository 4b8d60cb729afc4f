package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/quarry/internal/core"
	"github.com/newthinker/quarry/internal/marketdata"
	"github.com/newthinker/quarry/internal/strategy"
	"go.uber.org/zap"
)

// MinCoverageRatio is the share of expected candles below which a run is flagged.
const MinCoverageRatio = 0.9

// MarketData serves candles cache-first. *marketdata.Service satisfies it.
type MarketData interface {
	GetCandles(ctx context.Context, req core.MarketDataRequest) (*core.MarketDataResult, error)
	Verify(ctx context.Context, req core.MarketDataRequest) (*marketdata.Verification, error)
}

// ResultFilter narrows result listings.
type ResultFilter struct {
	StrategyID string
	Symbol     string
	Limit      int
	Offset     int
}

// ResultStore persists completed runs.
type ResultStore interface {
	Save(ctx context.Context, r *Result) error
	Get(ctx context.Context, id string) (*Result, error)
	List(ctx context.Context, filter ResultFilter) ([]Summary, error)
}

// Recorder receives run measurements. *metrics.Registry satisfies it.
type Recorder interface {
	RecordBacktest(status string, duration float64, trades int)
}

type nopRecorder struct{}

func (nopRecorder) RecordBacktest(string, float64, int) {}

// Service runs backtests of stored strategies against cached market data.
type Service struct {
	strategies strategy.Repository
	data       MarketData
	results    ResultStore
	metrics    Recorder
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a Service. A nil results store disables persistence.
func NewService(strategies strategy.Repository, data MarketData, results ResultStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		strategies: strategies,
		data:       data,
		results:    results,
		metrics:    nopRecorder{},
		logger:     logger,
		now:        time.Now,
	}
}

// SetMetrics attaches a metrics recorder.
func (s *Service) SetMetrics(r Recorder) {
	if r != nil {
		s.metrics = r
	}
}

// Run executes one backtest. Failing to persist the result is reported as a
// warning; the computed result is still returned.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := s.run(ctx, req)

	status, trades := "completed", 0
	if err != nil {
		status = "failed"
	} else {
		trades = len(res.Trades)
	}
	s.metrics.RecordBacktest(status, time.Since(start).Seconds(), trades)
	return res, err
}

func (s *Service) run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	strat, cfg, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	mdReq := marketDataRequest(cfg, req)
	md, err := s.data.GetCandles(ctx, mdReq)
	if err != nil {
		return nil, err
	}

	sim, err := Simulate(cfg, BarsFromCandles(md.Candles), req.InitialCapital)
	if err != nil {
		return nil, err
	}

	res := &Result{
		ID:             uuid.NewString(),
		StrategyID:     strat.ID,
		StrategyName:   strat.Name,
		Symbol:         cfg.Symbol,
		Source:         cfg.DataSource,
		Interval:       cfg.Interval,
		StartDate:      mdReq.From,
		EndDate:        mdReq.To,
		Config:         cfg,
		InitialCapital: sim.InitialCapital,
		FinalCapital:   sim.FinalCapital,
		Stats:          sim.Stats,
		EquityCurve:    sim.EquityCurve,
		Trades:         sim.Trades,
		CandleCount:    len(md.Candles),
		CachedCount:    md.CachedCount,
		FetchedCount:   md.FetchedCount,
		CreatedAt:      s.now().UTC(),
	}
	res.Warnings = append(cacheWarnings(mdReq, md), sim.Warnings...)

	if s.results != nil {
		if err := s.results.Save(ctx, res); err != nil {
			s.logger.Warn("failed to persist backtest result",
				zap.String("id", res.ID),
				zap.String("strategy", res.StrategyID),
				zap.Error(err),
			)
			res.Warnings = append(res.Warnings, fmt.Sprintf("result was not saved: %v", err))
		}
	}

	s.logger.Info("backtest completed",
		zap.String("id", res.ID),
		zap.String("strategy", res.StrategyID),
		zap.String("symbol", res.Symbol),
		zap.String("interval", string(res.Interval)),
		zap.Int("candles", res.CandleCount),
		zap.Int("trades", len(res.Trades)),
		zap.Float64("return_pct", res.Stats.TotalReturnPct),
	)
	return res, nil
}

// Verify classifies the data a run of req would see, without fetching or simulating.
func (s *Service) Verify(ctx context.Context, req Request) (*marketdata.Verification, error) {
	req.InitialCapital = 1
	if err := req.Validate(); err != nil {
		return nil, err
	}
	_, cfg, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.data.Verify(ctx, marketDataRequest(cfg, req))
}

// Results lists stored run summaries.
func (s *Service) Results(ctx context.Context, filter ResultFilter) ([]Summary, error) {
	if s.results == nil {
		return []Summary{}, nil
	}
	return s.results.List(ctx, filter)
}

// Result loads one stored run.
func (s *Service) Result(ctx context.Context, id string) (*Result, error) {
	if s.results == nil {
		return nil, core.WrapError(core.ErrNotFound, fmt.Errorf("backtest result %q", id))
	}
	return s.results.Get(ctx, id)
}

// resolve loads the strategy, applies request overrides and freezes a copy of the rules.
func (s *Service) resolve(ctx context.Context, req Request) (strategy.Strategy, *strategy.Configuration, error) {
	strat, err := s.strategies.Get(ctx, req.StrategyID)
	if err != nil {
		return strategy.Strategy{}, nil, err
	}
	if !strat.IsConfigured() {
		return strategy.Strategy{}, nil, core.WrapError(core.ErrUnconfiguredStrategy,
			fmt.Errorf("strategy %q has no entry rules", strat.ID))
	}

	cfg := strat.Config.Clone()
	if req.Symbol != "" {
		cfg.Symbol = req.Symbol
	}
	if req.Source != "" {
		cfg.DataSource = req.Source
	}
	if req.Interval != "" {
		cfg.Interval = req.Interval
	}
	cfg.Normalize()

	switch {
	case cfg.Symbol == "":
		return strategy.Strategy{}, nil, core.Validationf("symbol must be set on the strategy or the request")
	case cfg.DataSource == "":
		return strategy.Strategy{}, nil, core.Validationf("source must be set on the strategy or the request")
	case !cfg.Interval.IsValid():
		return strategy.Strategy{}, nil, core.Validationf("unsupported interval %q", cfg.Interval)
	}
	if err := cfg.Validate(); err != nil {
		return strategy.Strategy{}, nil, err
	}
	return strat, cfg, nil
}

func marketDataRequest(cfg *strategy.Configuration, req Request) core.MarketDataRequest {
	return core.MarketDataRequest{
		Symbol:   cfg.Symbol,
		Source:   cfg.DataSource,
		Interval: cfg.Interval,
		From:     req.StartDate.UTC(),
		To:       req.EndDate.UTC(),
	}.Normalize()
}

// cacheWarnings reports fetches, thin coverage and data that stops short of the requested bounds.
func cacheWarnings(req core.MarketDataRequest, md *core.MarketDataResult) []string {
	var warnings []string
	warnings = append(warnings, md.Warnings...)
	if md.FetchedCount > 0 {
		warnings = append(warnings, fmt.Sprintf("fetched %d candles from %s to fill gaps", md.FetchedCount, req.Source))
	}
	if len(md.Candles) == 0 {
		if md.Message != "" {
			warnings = append(warnings, md.Message)
		}
		return warnings
	}

	expected := req.Interval.ExpectedCandles(req.From, req.To)
	if expected > 0 {
		ratio := float64(len(md.Candles)) / float64(expected)
		if ratio < MinCoverageRatio {
			warnings = append(warnings, fmt.Sprintf("data covers %.1f%% of the requested range (%d of %d expected candles)",
				ratio*100, len(md.Candles), expected))
		}
	}

	step := req.Interval.Duration()
	first, last := md.Candles[0].Timestamp, md.Candles[len(md.Candles)-1].Timestamp
	if first.Sub(req.From) > step {
		warnings = append(warnings, fmt.Sprintf("data starts at %s, more than one %s interval after the requested start",
			first.Format(time.RFC3339), req.Interval))
	}
	if req.To.Sub(last) > step {
		warnings = append(warnings, fmt.Sprintf("data ends at %s, more than one %s interval before the requested end",
			last.Format(time.RFC3339), req.Interval))
	}
	return warnings
}
