package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/quarry/internal/api/job"
	"github.com/newthinker/quarry/internal/backtest"
	"github.com/newthinker/quarry/internal/fetcher"
	"github.com/newthinker/quarry/internal/marketdata"
	"github.com/newthinker/quarry/internal/metrics"
	"github.com/newthinker/quarry/internal/storage/candle"
	"github.com/newthinker/quarry/internal/storage/result"
	"github.com/newthinker/quarry/internal/strategy"
	"github.com/newthinker/quarry/internal/strategy/ma_crossover"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testDeps(t *testing.T) Dependencies {
	t.Helper()
	repo := strategy.NewMemoryRepository()
	s, err := ma_crossover.New("", 5, 20)
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), s))

	data := marketdata.New(candle.NewMemoryStore(), fetcher.NewRegistry(), marketdata.DefaultConfig(), nil)
	return Dependencies{
		Strategies: repo,
		Backtests:  backtest.NewService(repo, data, result.NewMemoryStore(10), nil),
		MarketData: data,
		Jobs:       job.NewStore(10, time.Hour),
		Metrics:    metrics.NewRegistry(),
	}
}

func get(h http.Handler, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	srv, err := NewServer(Config{Host: "localhost"}, testDeps(t), zap.NewNop())
	require.NoError(t, err)

	w := get(srv.Handler(), "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestServer_APIAuth(t *testing.T) {
	srv, err := NewServer(Config{Host: "localhost", APIKey: "test-key"}, testDeps(t), zap.NewNop())
	require.NoError(t, err)
	h := srv.Handler()

	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/v1/strategies", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/v1/strategies", "wrong").Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/v1/strategies", "test-key").Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/health", "").Code)
}

func TestServer_Metrics(t *testing.T) {
	srv, err := NewServer(Config{Host: "localhost"}, testDeps(t), zap.NewNop())
	require.NoError(t, err)
	h := srv.Handler()

	get(h, "/api/v1/market-data/sources", "")
	w := get(h, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "http_requests_total"))
}

func TestServer_StrategyRoutes(t *testing.T) {
	srv, err := NewServer(Config{Host: "localhost"}, testDeps(t), zap.NewNop())
	require.NoError(t, err)
	h := srv.Handler()

	w := get(h, "/api/v1/strategies/ma_crossover_5_20", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = get(h, "/api/v1/strategies/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(Config{}, Dependencies{}, nil)
	assert.Error(t, err)
}
