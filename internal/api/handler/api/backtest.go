package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/newthinker/quarry/internal/api/job"
	"github.com/newthinker/quarry/internal/api/response"
	"github.com/newthinker/quarry/internal/backtest"
	"github.com/newthinker/quarry/internal/core"
	"github.com/newthinker/quarry/internal/marketdata"
	"go.uber.org/zap"
)

// DefaultBacktestTimeout bounds one backtest job.
const DefaultBacktestTimeout = 5 * time.Minute

// Backtester is the backtest surface the handlers need. *backtest.Service satisfies it.
type Backtester interface {
	Run(ctx context.Context, req backtest.Request) (*backtest.Result, error)
	Verify(ctx context.Context, req backtest.Request) (*marketdata.Verification, error)
	Results(ctx context.Context, filter backtest.ResultFilter) ([]backtest.Summary, error)
	Result(ctx context.Context, id string) (*backtest.Result, error)
}

// BacktestRequest is the request body for starting a backtest.
type BacktestRequest struct {
	StrategyID     string  `json:"strategyId"`
	StartDate      string  `json:"startDate"`
	EndDate        string  `json:"endDate"`
	InitialCapital float64 `json:"initialCapital"`
	Symbol         string  `json:"symbol,omitempty"`
	Source         string  `json:"source,omitempty"`
	Interval       string  `json:"interval,omitempty"`
}

func (b BacktestRequest) toRequest() (backtest.Request, error) {
	start, err := parseDate("startDate", b.StartDate)
	if err != nil {
		return backtest.Request{}, err
	}
	end, err := parseDate("endDate", b.EndDate)
	if err != nil {
		return backtest.Request{}, err
	}
	iv, err := parseInterval(b.Interval)
	if err != nil {
		return backtest.Request{}, err
	}
	req := backtest.Request{
		StrategyID:     b.StrategyID,
		StartDate:      start,
		EndDate:        end,
		InitialCapital: b.InitialCapital,
		Symbol:         b.Symbol,
		Source:         b.Source,
		Interval:       iv,
	}
	return req, req.Validate()
}

// BacktestHandler handles backtest API requests.
type BacktestHandler struct {
	jobs    *job.Store
	service Backtester
	timeout time.Duration
	logger  *zap.Logger
}

// NewBacktestHandler creates a new backtest handler. A zero timeout uses DefaultBacktestTimeout.
func NewBacktestHandler(jobs *job.Store, service Backtester, timeout time.Duration, logger *zap.Logger) *BacktestHandler {
	if timeout <= 0 {
		timeout = DefaultBacktestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BacktestHandler{jobs: jobs, service: service, timeout: timeout, logger: logger}
}

// Create handles POST /api/v1/backtests. The run is queued as a job unless
// ?sync=true asks for the result inline.
func (h *BacktestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Fail(w, core.Validationf("decoding request body: %v", err))
		return
	}
	req, err := body.toRequest()
	if err != nil {
		response.Fail(w, err)
		return
	}

	run := func(ctx context.Context) (any, error) {
		res, err := h.service.Run(ctx, req)
		if err != nil {
			h.logger.Warn("backtest failed",
				zap.String("strategy", req.StrategyID),
				zap.Error(err))
			return nil, err
		}
		return res, nil
	}

	if sync, _ := strconv.ParseBool(r.URL.Query().Get("sync")); sync {
		j := h.jobs.Run(r.Context(), "backtest", h.timeout, run)
		if j.Status == job.StatusFailed {
			err := failureError(j.Error)
			response.Error(w, statusForFailure(err), err)
			return
		}
		response.JSON(w, http.StatusOK, jobView(j))
		return
	}

	j := h.jobs.Start("backtest", h.timeout, run)
	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	})
}

// GetStatus handles GET /api/v1/backtests/{id}.
func (h *BacktestHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobs.Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, jobView(j))
}

// ListResults handles GET /api/v1/results?strategyId=&symbol=&limit=&offset=.
func (h *BacktestHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := resultFilter(q.Get("strategyId"), q)
	if err != nil {
		response.Fail(w, err)
		return
	}
	list, err := h.service.Results(r.Context(), filter)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.List(w, list)
}

// GetResult handles GET /api/v1/results/{id}.
func (h *BacktestHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Result(r.Context(), r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

func jobView(j *job.Job) map[string]any {
	view := map[string]any{
		"job_id":   j.ID,
		"status":   j.Status,
		"progress": j.Progress,
	}
	if j.Status == job.StatusComplete {
		view["result"] = j.Result
	}
	if j.Status == job.StatusFailed && j.Error != nil {
		view["error"] = j.Error
	}
	return view
}

// failureError rebuilds a coded error from a failed job.
func failureError(f *job.Failure) *core.Error {
	if f == nil {
		return &core.Error{Code: "INTERNAL_ERROR", Message: "job failed"}
	}
	e := &core.Error{Code: f.Code, Message: f.Message}
	if f.Cause != "" {
		e.Cause = errors.New(f.Cause)
	}
	return e
}

func statusForFailure(err *core.Error) int {
	if err.Code == "TIMEOUT" {
		return http.StatusGatewayTimeout
	}
	return response.StatusFor(err)
}

func resultFilter(strategyID string, q url.Values) (backtest.ResultFilter, error) {
	limit, err := queryInt(q, "limit", 50)
	if err != nil {
		return backtest.ResultFilter{}, err
	}
	offset, err := queryInt(q, "offset", 0)
	if err != nil {
		return backtest.ResultFilter{}, err
	}
	return backtest.ResultFilter{
		StrategyID: strategyID,
		Symbol:     core.NormalizeSymbol(q.Get("symbol")),
		Limit:      limit,
		Offset:     offset,
	}, nil
}
