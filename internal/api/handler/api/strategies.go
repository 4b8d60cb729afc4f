package api

import (
	"net/http"

	"github.com/newthinker/quarry/internal/api/response"
	"github.com/newthinker/quarry/internal/strategy"
)

// StrategyHandler lists strategies and their stored results.
type StrategyHandler struct {
	repo      strategy.Repository
	backtests Backtester
}

// NewStrategyHandler creates a new strategy handler.
func NewStrategyHandler(repo strategy.Repository, backtests Backtester) *StrategyHandler {
	return &StrategyHandler{repo: repo, backtests: backtests}
}

// List handles GET /api/v1/strategies.
func (h *StrategyHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.List(r.Context())
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.List(w, list)
}

// Get handles GET /api/v1/strategies/{id}.
func (h *StrategyHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.repo.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, s)
}

// Results handles GET /api/v1/strategies/{id}/results.
func (h *StrategyHandler) Results(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.repo.Get(r.Context(), id); err != nil {
		response.Fail(w, err)
		return
	}
	filter, err := resultFilter(id, r.URL.Query())
	if err != nil {
		response.Fail(w, err)
		return
	}
	list, err := h.backtests.Results(r.Context(), filter)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.List(w, list)
}
