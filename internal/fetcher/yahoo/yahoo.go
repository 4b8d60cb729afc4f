package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/newthinker/quarry/internal/core"
	"github.com/newthinker/quarry/internal/fetcher"
	"golang.org/x/time/rate"
)

const (
	baseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

	// SourceName is the registry key for this fetcher.
	SourceName = "yahoo"
)

// validSymbol matches stock symbols like AAPL, MSFT, 600519.SH, 0700.HK, BTC-USD
var validSymbol = regexp.MustCompile(`^[A-Za-z0-9^=]{1,12}([.-][A-Za-z]{1,4})?$`)

// validateSymbol checks if a symbol has valid format
func validateSymbol(symbol string) error {
	if symbol == "" {
		return core.Validationf("symbol cannot be empty")
	}
	if len(symbol) > 20 {
		return core.Validationf("symbol too long: %s", symbol)
	}
	if !validSymbol.MatchString(symbol) {
		return core.Validationf("invalid symbol format: %s", symbol)
	}
	return nil
}

// yahooIntervals maps canonical intervals to Yahoo codes and the widest window one call may span.
var yahooIntervals = map[core.Interval]struct {
	code    string
	maxSpan time.Duration
}{
	core.Interval1m:  {"1m", 7 * 24 * time.Hour},
	core.Interval5m:  {"5m", 59 * 24 * time.Hour},
	core.Interval15m: {"15m", 59 * 24 * time.Hour},
	core.Interval30m: {"30m", 59 * 24 * time.Hour},
	core.Interval1h:  {"1h", 729 * 24 * time.Hour},
	core.Interval1d:  {"1d", 0},
	core.Interval1w:  {"1wk", 0},
	core.Interval1M:  {"1mo", 0},
}

// Yahoo fetches historical bars from the Yahoo Finance chart API
type Yahoo struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
}

// New creates a new Yahoo fetcher
func New() *Yahoo {
	return NewWithConfig(fetcher.Config{})
}

// NewWithConfig creates a Yahoo fetcher from explicit settings.
func NewWithConfig(cfg fetcher.Config) *Yahoo {
	y := &Yahoo{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Limit(2), 1),
	}
	if cfg.BaseURL != "" {
		y.baseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.RatePerSec > 0 {
		y.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	if cfg.Timeout > 0 {
		y.client.Timeout = cfg.Timeout
	}
	return y
}

func (y *Yahoo) Info() fetcher.Info {
	intervals := make([]core.Interval, 0, len(yahooIntervals))
	for _, iv := range core.Intervals {
		if _, ok := yahooIntervals[iv]; ok {
			intervals = append(intervals, iv)
		}
	}
	return fetcher.Info{
		SourceName:         SourceName,
		DisplayName:        "Yahoo Finance",
		CanFetchOnDemand:   true,
		SupportedIntervals: intervals,
	}
}

// toYahooSymbol converts internal symbol format to Yahoo format
func toYahooSymbol(symbol string) string {
	symbol = core.NormalizeSymbol(symbol)
	// Shanghai stocks: 600519.SH -> 600519.SS
	if strings.HasSuffix(symbol, ".SH") {
		return strings.TrimSuffix(symbol, ".SH") + ".SS"
	}
	return symbol
}

// Fetch splits [from, to] into windows the chart API accepts and requests them in order.
func (y *Yahoo) Fetch(ctx context.Context, symbol string, interval core.Interval, from, to time.Time) ([]core.Candle, error) {
	spec, ok := yahooIntervals[interval]
	if !ok {
		return nil, core.Validationf("yahoo does not support interval %q", interval)
	}
	if !from.Before(to) {
		return nil, core.Validationf("from must be before to")
	}
	native := toYahooSymbol(symbol)
	if err := validateSymbol(native); err != nil {
		return nil, err
	}
	canonical := core.NormalizeSymbol(symbol)

	var out []core.Candle
	windowStart := from.UTC()
	end := to.UTC()
	for page := 0; !windowStart.After(end); page++ {
		windowEnd := end
		if spec.maxSpan > 0 && windowStart.Add(spec.maxSpan).Before(end) {
			windowEnd = windowStart.Add(spec.maxSpan)
		}
		if page > 0 {
			if err := y.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		candles, err := y.fetchWindow(ctx, native, spec.code, windowStart, windowEnd)
		if err != nil {
			return nil, err
		}
		for _, c := range candles {
			if c.Timestamp.Before(from) || c.Timestamp.After(end) {
				continue
			}
			if n := len(out); n > 0 && !c.Timestamp.After(out[n-1].Timestamp) {
				continue
			}
			c.Symbol = canonical
			c.Source = SourceName
			c.Interval = interval
			out = append(out, c)
		}
		windowStart = windowEnd.Add(core.Tick)
	}
	return out, nil
}

func (y *Yahoo) fetchWindow(ctx context.Context, symbol, interval string, start, end time.Time) ([]core.Candle, error) {
	url := fmt.Sprintf("%s/%s?interval=%s&period1=%d&period2=%d",
		y.baseURL, symbol, interval, start.Unix(), end.Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := y.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.WrapError(core.ErrFetchFailed, fmt.Errorf("fetching history: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, core.WrapError(core.ErrFetchFailed, fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	var result chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, core.WrapError(core.ErrFetchFailed, fmt.Errorf("decoding response: %w", err))
	}

	if result.Chart.Error != nil {
		return nil, core.WrapError(core.ErrFetchFailed, fmt.Errorf("yahoo error: %s", result.Chart.Error.Description))
	}

	if len(result.Chart.Result) == 0 || len(result.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	r := result.Chart.Result[0]
	quotes := r.Indicators.Quote[0]

	data := make([]core.Candle, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(quotes.Open) || i >= len(quotes.High) || i >= len(quotes.Low) || i >= len(quotes.Close) {
			break
		}
		if quotes.Open[i] == nil || quotes.High[i] == nil || quotes.Low[i] == nil || quotes.Close[i] == nil {
			continue // Skip missing data
		}
		var volume float64
		if i < len(quotes.Volume) && quotes.Volume[i] != nil {
			volume = *quotes.Volume[i]
		}
		data = append(data, core.Candle{
			Open:      *quotes.Open[i],
			High:      *quotes.High[i],
			Low:       *quotes.Low[i],
			Close:     *quotes.Close[i],
			Volume:    volume,
			Timestamp: time.Unix(ts, 0).UTC(),
		})
	}

	return data, nil
}

// Yahoo API response types
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp  []int64    `json:"timestamp"`
	Indicators indicators `json:"indicators"`
}

type indicators struct {
	Quote []quoteIndicator `json:"quote"`
}

type quoteIndicator struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*float64 `json:"volume"`
}
