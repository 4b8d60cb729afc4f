package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	handler "github.com/newthinker/quarry/internal/api/handler/api"
	"github.com/newthinker/quarry/internal/api/job"
	"github.com/newthinker/quarry/internal/api/middleware"
	"github.com/newthinker/quarry/internal/api/response"
	"github.com/newthinker/quarry/internal/metrics"
	"github.com/newthinker/quarry/internal/strategy"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server for quarry.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	APIKey          string
	BacktestTimeout time.Duration
}

// Dependencies are the services the routes call into.
type Dependencies struct {
	Strategies strategy.Repository
	Backtests  handler.Backtester
	MarketData handler.CandleService
	Jobs       *job.Store
	Metrics    *metrics.Registry // optional
}

// NewServer creates a new HTTP server.
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Strategies == nil || deps.Backtests == nil || deps.MarketData == nil {
		return nil, fmt.Errorf("server requires strategies, backtests and market data")
	}
	if deps.Jobs == nil {
		deps.Jobs = job.NewStore(100, time.Hour)
	}
	if cfg.BacktestTimeout <= 0 {
		cfg.BacktestTimeout = handler.DefaultBacktestTimeout
	}

	mux := http.NewServeMux()
	s := &Server{
		logger: logger,
		mux:    mux,
	}
	s.setupRoutes(cfg, deps)

	var h http.Handler = mux
	h = middleware.APIKeyAuth(cfg.APIKey, "/api/health", "/metrics")(h)
	h = metrics.LoggingMiddleware(logger)(h)
	if deps.Metrics != nil {
		h = metrics.HTTPMiddleware(deps.Metrics)(h)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.BacktestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) setupRoutes(cfg Config, deps Dependencies) {
	backtests := handler.NewBacktestHandler(deps.Jobs, deps.Backtests, cfg.BacktestTimeout, s.logger)
	market := handler.NewMarketDataHandler(deps.MarketData, deps.Backtests)
	strategies := handler.NewStrategyHandler(deps.Strategies, deps.Backtests)

	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	if deps.Metrics != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	s.mux.HandleFunc("POST /api/v1/backtests", backtests.Create)
	s.mux.HandleFunc("GET /api/v1/backtests/{id}", backtests.GetStatus)
	s.mux.HandleFunc("GET /api/v1/results", backtests.ListResults)
	s.mux.HandleFunc("GET /api/v1/results/{id}", backtests.GetResult)

	s.mux.HandleFunc("GET /api/v1/market-data/coverage", market.Coverage)
	s.mux.HandleFunc("GET /api/v1/market-data/verify", market.Verify)
	s.mux.HandleFunc("GET /api/v1/market-data/candles", market.Candles)
	s.mux.HandleFunc("GET /api/v1/market-data/sources", market.Sources)

	s.mux.HandleFunc("GET /api/v1/strategies", strategies.List)
	s.mux.HandleFunc("GET /api/v1/strategies/{id}", strategies.Get)
	s.mux.HandleFunc("GET /api/v1/strategies/{id}/results", strategies.Results)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
