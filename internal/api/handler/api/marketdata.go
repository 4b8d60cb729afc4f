package api

import (
	"context"
	"net/http"

	"github.com/newthinker/quarry/internal/api/response"
	"github.com/newthinker/quarry/internal/backtest"
	"github.com/newthinker/quarry/internal/core"
	"github.com/newthinker/quarry/internal/fetcher"
)

// CandleService is the market data surface the handlers need. *marketdata.Service satisfies it.
type CandleService interface {
	GetCandles(ctx context.Context, req core.MarketDataRequest) (*core.MarketDataResult, error)
	Summaries(ctx context.Context, symbol string) ([]core.CoverageInfo, error)
	Fetchers() *fetcher.Registry
}

// MarketDataHandler serves coverage, verification and raw candles.
type MarketDataHandler struct {
	data      CandleService
	backtests Backtester
}

// NewMarketDataHandler creates a new market data handler.
func NewMarketDataHandler(data CandleService, backtests Backtester) *MarketDataHandler {
	return &MarketDataHandler{data: data, backtests: backtests}
}

// Coverage handles GET /api/v1/market-data/coverage?symbol=.
func (h *MarketDataHandler) Coverage(w http.ResponseWriter, r *http.Request) {
	list, err := h.data.Summaries(r.Context(), r.URL.Query().Get("symbol"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.List(w, list)
}

// Verify handles GET /api/v1/market-data/verify. It answers how a backtest of
// the strategy would be served without fetching anything.
func (h *MarketDataHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := parseDate("startDate", q.Get("startDate"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	end, err := parseDate("endDate", q.Get("endDate"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	iv, err := parseInterval(q.Get("interval"))
	if err != nil {
		response.Fail(w, err)
		return
	}

	v, err := h.backtests.Verify(r.Context(), backtest.Request{
		StrategyID: q.Get("strategyId"),
		StartDate:  start,
		EndDate:    end,
		Symbol:     q.Get("symbol"),
		Source:     q.Get("source"),
		Interval:   iv,
	})
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, v)
}

// Candles handles GET /api/v1/market-data/candles?symbol&source&interval&from&to.
func (h *MarketDataHandler) Candles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate("from", q.Get("from"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	to, err := parseDate("to", q.Get("to"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	iv, err := core.ParseInterval(q.Get("interval"))
	if err != nil {
		response.Fail(w, err)
		return
	}

	res, err := h.data.GetCandles(r.Context(), core.MarketDataRequest{
		Symbol:   q.Get("symbol"),
		Source:   q.Get("source"),
		Interval: iv,
		From:     from,
		To:       to,
	})
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

// Sources handles GET /api/v1/market-data/sources.
func (h *MarketDataHandler) Sources(w http.ResponseWriter, r *http.Request) {
	response.List(w, h.data.Fetchers().List())
}
