package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/quarry/internal/core"
	"github.com/newthinker/quarry/internal/fetcher"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	baseURL = "https://api.binance.com"

	// SourceName is the registry key for this fetcher.
	SourceName = "binance"

	defaultPageLimit = 1000
	maxPageLimit     = 1000
	defaultRate      = 5.0
)

// Binance fetches spot klines from the Binance REST API.
type Binance struct {
	client    *http.Client
	baseURL   string
	pageLimit int
	limiter   *rate.Limiter
}

// New creates a Binance fetcher with default settings
func New() *Binance {
	return NewWithConfig(fetcher.Config{})
}

// NewWithBaseURL creates a Binance fetcher with custom base URL (for testing)
func NewWithBaseURL(url string) *Binance {
	return NewWithConfig(fetcher.Config{BaseURL: url, RatePerSec: 1000})
}

// NewWithConfig creates a Binance fetcher from explicit settings; zero values fall back to defaults.
func NewWithConfig(cfg fetcher.Config) *Binance {
	b := &Binance{
		client:    &http.Client{Timeout: 10 * time.Second},
		baseURL:   baseURL,
		pageLimit: defaultPageLimit,
		limiter:   rate.NewLimiter(rate.Limit(defaultRate), 1),
	}
	if cfg.BaseURL != "" {
		b.baseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.PageLimit > 0 && cfg.PageLimit <= maxPageLimit {
		b.pageLimit = cfg.PageLimit
	}
	if cfg.RatePerSec > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	if cfg.Timeout > 0 {
		b.client.Timeout = cfg.Timeout
	}
	return b
}

func (b *Binance) Info() fetcher.Info {
	return fetcher.Info{
		SourceName:         SourceName,
		DisplayName:        "Binance Spot",
		CanFetchOnDemand:   true,
		SupportedIntervals: append([]core.Interval(nil), core.Intervals...),
	}
}

// Fetch pages through /api/v3/klines until the window is covered or a short page is returned.
func (b *Binance) Fetch(ctx context.Context, symbol string, interval core.Interval, from, to time.Time) ([]core.Candle, error) {
	if !b.Info().Supports(interval) {
		return nil, core.Validationf("binance does not support interval %q", interval)
	}
	if !from.Before(to) {
		return nil, core.Validationf("from must be before to")
	}
	native := toBinanceSymbol(symbol)
	if native == "" {
		return nil, core.Validationf("symbol is required")
	}
	canonical := core.NormalizeSymbol(symbol)

	var out []core.Candle
	cursor := from.UTC()
	end := to.UTC()

	for page := 0; !cursor.After(end); page++ {
		if page > 0 {
			if err := b.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		rows, err := b.fetchPage(ctx, native, interval, cursor, end)
		if err != nil {
			return nil, err
		}

		var last time.Time
		for _, row := range rows {
			c, err := parseKline(row)
			if err != nil {
				return nil, core.WrapError(core.ErrFetchFailed, err)
			}
			if c.Timestamp.Before(from) || c.Timestamp.After(end) {
				continue
			}
			c.Symbol = canonical
			c.Source = SourceName
			c.Interval = interval
			out = append(out, c)
			last = c.Timestamp
		}

		if len(rows) < b.pageLimit || last.IsZero() {
			break
		}
		cursor = last.Add(core.Tick)
	}

	return out, nil
}

func (b *Binance) fetchPage(ctx context.Context, symbol string, interval core.Interval, start, end time.Time) ([][]any, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", string(interval))
	q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	q.Set("limit", strconv.Itoa(b.pageLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/v3/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.WrapError(core.ErrFetchFailed, fmt.Errorf("fetching klines: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, core.WrapError(core.ErrFetchFailed, fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	var rows [][]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, core.WrapError(core.ErrFetchFailed, fmt.Errorf("decoding response: %w", err))
	}
	return rows, nil
}

// parseKline converts one kline array:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume, trades, ...]
func parseKline(row []any) (core.Candle, error) {
	if len(row) < 9 {
		return core.Candle{}, fmt.Errorf("kline has %d fields, want at least 9", len(row))
	}
	openTime, ok := row[0].(float64)
	if !ok {
		return core.Candle{}, fmt.Errorf("kline open time is %T", row[0])
	}

	// Prices stay decimal until the bar is known to be consistent.
	var vals [5]decimal.Decimal
	for i := range vals {
		s, ok := row[i+1].(string)
		if !ok {
			return core.Candle{}, fmt.Errorf("kline field %d is %T, want string", i+1, row[i+1])
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return core.Candle{}, fmt.Errorf("parsing kline field %d: %w", i+1, err)
		}
		if d.IsNegative() {
			return core.Candle{}, fmt.Errorf("kline field %d is negative: %s", i+1, s)
		}
		vals[i] = d
	}
	open, high, low, cls := vals[0], vals[1], vals[2], vals[3]
	if low.GreaterThan(high) {
		return core.Candle{}, fmt.Errorf("kline low %s above high %s", low, high)
	}
	for _, p := range []decimal.Decimal{open, cls} {
		if p.LessThan(low) || p.GreaterThan(high) {
			return core.Candle{}, fmt.Errorf("kline price %s outside [%s, %s]", p, low, high)
		}
	}
	var prices [5]float64
	for i, d := range vals {
		prices[i] = d.InexactFloat64()
	}
	trades, _ := row[8].(float64)

	return core.Candle{
		Open:       prices[0],
		High:       prices[1],
		Low:        prices[2],
		Close:      prices[3],
		Volume:     prices[4],
		TradeCount: int64(trades),
		Timestamp:  time.UnixMilli(int64(openTime)).UTC().Truncate(core.Tick),
	}, nil
}

// toBinanceSymbol converts "btc-usdt", "BTC/USDT" or "btc_usdt" to "BTCUSDT".
func toBinanceSymbol(symbol string) string {
	s := core.NormalizeSymbol(symbol)
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}
