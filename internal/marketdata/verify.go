package marketdata

import (
	"context"
	"fmt"

	"github.com/newthinker/quarry/internal/core"
)

// VerificationStatus classifies how a request would be served.
type VerificationStatus string

const (
	StatusFullyCovered     VerificationStatus = "FULLY_COVERED"
	StatusPartialWithFetch VerificationStatus = "PARTIAL_WITH_FETCH"
	StatusPartialCoverage  VerificationStatus = "PARTIAL_COVERAGE"
	StatusFetchRequired    VerificationStatus = "FETCH_REQUIRED"
	StatusNoData           VerificationStatus = "NO_DATA"
)

// Verification is the dry-run answer for a candle request.
type Verification struct {
	Status           VerificationStatus `json:"status"`
	Message          string             `json:"message"`
	Coverage         core.CoverageInfo  `json:"coverage"`
	Gaps             []core.DataGap     `json:"gaps,omitempty"`
	FetcherAvailable bool               `json:"fetcher_available"`
	ExpectedCandles  int64              `json:"expected_candles"`
}

// Verify classifies req from coverage and the fetcher registry alone.
// It performs no writes and no network calls.
func (s *Service) Verify(ctx context.Context, req core.MarketDataRequest) (*Verification, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cov, err := s.store.Coverage(ctx, req.Symbol, req.Source, req.Interval)
	if err != nil {
		return nil, asPersistence(err)
	}
	_, canFetch := s.fetchers.Lookup(req.Source, req.Interval)

	v := &Verification{
		Coverage:         cov,
		Gaps:             IdentifyGaps(req, cov),
		FetcherAvailable: canFetch,
		ExpectedCandles:  req.Interval.ExpectedCandles(req.From, req.To),
	}
	v.Status = classify(cov, len(v.Gaps), canFetch)
	v.Message = verificationMessage(v.Status, req, cov, len(v.Gaps))
	return v, nil
}

func classify(cov core.CoverageInfo, gaps int, canFetch bool) VerificationStatus {
	switch {
	case cov.Empty() && canFetch:
		return StatusFetchRequired
	case cov.Empty():
		return StatusNoData
	case gaps == 0:
		return StatusFullyCovered
	case canFetch:
		return StatusPartialWithFetch
	default:
		return StatusPartialCoverage
	}
}

func verificationMessage(status VerificationStatus, req core.MarketDataRequest, cov core.CoverageInfo, gaps int) string {
	series := fmt.Sprintf("%s %s from %s", req.Symbol, req.Interval, req.Source)
	switch status {
	case StatusFullyCovered:
		return fmt.Sprintf("%s is fully cached (%d candles stored)", series, cov.Count)
	case StatusPartialWithFetch:
		return fmt.Sprintf("%s is partially cached; %d missing range(s) will be fetched", series, gaps)
	case StatusPartialCoverage:
		return fmt.Sprintf("%s is partially cached and no fetcher is available; the backtest will use %d stored candles", series, cov.Count)
	case StatusFetchRequired:
		return fmt.Sprintf("no cached data for %s; the full range will be fetched", series)
	default:
		return fmt.Sprintf("no cached data for %s and no fetcher is available", series)
	}
}
