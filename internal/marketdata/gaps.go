package marketdata

import (
	"github.com/newthinker/quarry/internal/core"
)

// IdentifyGaps compares a requested window with stored coverage and returns
// the head and/or tail ranges that still have to be fetched.
//
// Gaps are anchored on the stored bounds, so a request entirely after the
// stored range also backfills the span between them and the series stays
// contiguous. Holes inside the covered range are not detected; writes are
// upserts, so re-fetching an overlapping range later is harmless.
func IdentifyGaps(req core.MarketDataRequest, coverage core.CoverageInfo) []core.DataGap {
	if coverage.Empty() {
		return []core.DataGap{{From: req.From, To: req.To}}
	}

	var gaps []core.DataGap
	if req.From.Before(*coverage.Earliest) {
		gaps = append(gaps, core.DataGap{From: req.From, To: coverage.Earliest.Add(-core.Tick)})
	}
	if req.To.After(*coverage.Latest) {
		gaps = append(gaps, core.DataGap{From: coverage.Latest.Add(core.Tick), To: req.To})
	}
	return gaps
}
