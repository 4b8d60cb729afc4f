// internal/storage/candle/influx.go
package candle

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/newthinker/quarry/internal/core"
	"go.uber.org/zap"
)

const measurement = "candles"

// InfluxConfig holds connection settings for the InfluxDB store.
type InfluxConfig struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`
}

// InfluxStore keeps candles as points of one measurement tagged by series.
// A point with the same tags and timestamp overwrites the previous one.
type InfluxStore struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	cfg      InfluxConfig
	logger   *zap.Logger
}

// NewInfluxStore creates a client; connectivity is checked by EnsureSchema.
func NewInfluxStore(cfg InfluxConfig, logger *zap.Logger) (*InfluxStore, error) {
	if cfg.URL == "" || cfg.Bucket == "" || cfg.Org == "" {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("influxdb url, org and bucket are required"))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxStore{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI: client.QueryAPI(cfg.Org),
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// EnsureSchema checks server health and that the bucket exists.
func (s *InfluxStore) EnsureSchema(ctx context.Context) error {
	health, err := s.client.Health(ctx)
	if err != nil {
		return persistenceErr(fmt.Errorf("influxdb health: %w", err))
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return persistenceErr(fmt.Errorf("influxdb not ready: %s %s", health.Status, msg))
	}
	if _, err := s.client.BucketsAPI().FindBucketByName(ctx, s.cfg.Bucket); err != nil {
		return persistenceErr(fmt.Errorf("influxdb bucket %q: %w", s.cfg.Bucket, err))
	}
	return nil
}

// Coverage runs first/last/count over the close field of one series.
func (s *InfluxStore) Coverage(ctx context.Context, symbol, source string, interval core.Interval) (core.CoverageInfo, error) {
	info := core.EmptyCoverage(symbol, source, interval)
	base := seriesFilter(s.cfg.Bucket, symbol, source, interval)

	count, err := s.queryCount(ctx, base+"\n  |> count()")
	if err != nil || count == 0 {
		return info, err
	}
	earliest, err := s.queryTime(ctx, base+"\n  |> first()")
	if err != nil {
		return info, err
	}
	latest, err := s.queryTime(ctx, base+"\n  |> last()")
	if err != nil {
		return info, err
	}
	if earliest == nil || latest == nil {
		return info, nil
	}
	info.Earliest = earliest
	info.Latest = latest
	info.Count = count
	return info, nil
}

// Summaries lists the stored series, then resolves coverage for each.
func (s *InfluxStore) Summaries(ctx context.Context, symbol string) ([]core.CoverageInfo, error) {
	filter := fmt.Sprintf(`r._measurement == %s and r._field == "close"`, fluxString(measurement))
	if symbol != "" {
		filter += fmt.Sprintf(` and r.symbol == %s`, fluxString(symbol))
	}
	query := fmt.Sprintf(`from(bucket: %s)
  |> range(start: 0)
  |> filter(fn: (r) => %s)
  |> group(columns: ["symbol", "source", "interval"])
  |> count()`, fluxString(s.cfg.Bucket), filter)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, persistenceErr(fmt.Errorf("summaries query: %w", err))
	}
	var keys []core.Key
	for result.Next() {
		rec := result.Record()
		sym, _ := rec.ValueByKey("symbol").(string)
		src, _ := rec.ValueByKey("source").(string)
		iv, _ := rec.ValueByKey("interval").(string)
		keys = append(keys, core.Key{Symbol: sym, Source: src, Interval: core.Interval(iv)})
	}
	if result.Err() != nil {
		return nil, persistenceErr(result.Err())
	}

	out := make([]core.CoverageInfo, 0, len(keys))
	for _, k := range keys {
		info, err := s.Coverage(ctx, k.Symbol, k.Source, k.Interval)
		if err != nil {
			return nil, err
		}
		if !info.Empty() {
			out = append(out, info)
		}
	}
	sortSummaries(out)
	return out, nil
}

// Symbols lists the values of the symbol tag.
func (s *InfluxStore) Symbols(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`import "influxdata/influxdb/schema"
schema.tagValues(bucket: %s, tag: "symbol", start: 0)
  |> sort()`, fluxString(s.cfg.Bucket))

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, persistenceErr(fmt.Errorf("symbols query: %w", err))
	}
	var out []string
	for result.Next() {
		if v, ok := result.Record().Value().(string); ok {
			out = append(out, v)
		}
	}
	return out, persistenceErr(result.Err())
}

// Read pivots fields into rows for [from, to].
func (s *InfluxStore) Read(ctx context.Context, symbol, source string, interval core.Interval, from, to time.Time) ([]core.Candle, error) {
	query := rangeQuery(s.cfg.Bucket, symbol, source, interval, from, to)
	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, persistenceErr(fmt.Errorf("range query: %w", err))
	}

	var out []core.Candle
	for result.Next() {
		rec := result.Record()
		c := core.Candle{
			Symbol:    symbol,
			Source:    source,
			Interval:  interval,
			Timestamp: rec.Time().UTC(),
		}
		c.Open, _ = rec.ValueByKey("open").(float64)
		c.High, _ = rec.ValueByKey("high").(float64)
		c.Low, _ = rec.ValueByKey("low").(float64)
		c.Close, _ = rec.ValueByKey("close").(float64)
		c.Volume, _ = rec.ValueByKey("volume").(float64)
		c.TradeCount, _ = rec.ValueByKey("trades").(int64)
		out = append(out, c)
	}
	if result.Err() != nil {
		return nil, persistenceErr(result.Err())
	}
	return out, nil
}

// Write sends all candles as points in one blocking batch.
func (s *InfluxStore) Write(ctx context.Context, candles []core.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	points := make([]*write.Point, 0, len(candles))
	for _, c := range candles {
		points = append(points, candlePoint(c))
	}
	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return 0, persistenceErr(fmt.Errorf("writing points: %w", err))
	}
	s.logger.Debug("candles written", zap.String("bucket", s.cfg.Bucket), zap.Int("count", len(points)))
	return len(points), nil
}

// Close releases the client.
func (s *InfluxStore) Close() error {
	s.client.Close()
	return nil
}

func (s *InfluxStore) queryCount(ctx context.Context, query string) (int64, error) {
	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return 0, persistenceErr(fmt.Errorf("count query: %w", err))
	}
	var count int64
	for result.Next() {
		if v, ok := result.Record().Value().(int64); ok {
			count += v
		}
	}
	return count, persistenceErr(result.Err())
}

func (s *InfluxStore) queryTime(ctx context.Context, query string) (*time.Time, error) {
	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, persistenceErr(fmt.Errorf("bound query: %w", err))
	}
	if result.Next() {
		t := result.Record().Time().UTC()
		return &t, nil
	}
	return nil, persistenceErr(result.Err())
}

// candlePoint maps a candle onto the measurement schema.
func candlePoint(c core.Candle) *write.Point {
	return influxdb2.NewPoint(
		measurement,
		map[string]string{
			"symbol":   c.Symbol,
			"source":   c.Source,
			"interval": string(c.Interval),
		},
		map[string]interface{}{
			"open":   c.Open,
			"high":   c.High,
			"low":    c.Low,
			"close":  c.Close,
			"volume": c.Volume,
			"trades": c.TradeCount,
		},
		truncate(c.Timestamp),
	)
}

func seriesFilter(bucket, symbol, source string, interval core.Interval) string {
	return fmt.Sprintf(`from(bucket: %s)
  |> range(start: 0)
  |> filter(fn: (r) => r._measurement == %s and r._field == "close")
  |> filter(fn: (r) => r.symbol == %s and r.source == %s and r.interval == %s)`,
		fluxString(bucket), fluxString(measurement),
		fluxString(symbol), fluxString(source), fluxString(string(interval)))
}

// rangeQuery reads [from, to]; Flux stop is exclusive so it is pushed one tick past to.
func rangeQuery(bucket, symbol, source string, interval core.Interval, from, to time.Time) string {
	return fmt.Sprintf(`from(bucket: %s)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == %s)
  |> filter(fn: (r) => r.symbol == %s and r.source == %s and r.interval == %s)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> sort(columns: ["_time"], desc: false)`,
		fluxString(bucket),
		truncate(from).Format(time.RFC3339), truncate(to).Add(core.Tick).Format(time.RFC3339),
		fluxString(measurement),
		fluxString(symbol), fluxString(source), fluxString(string(interval)))
}

// fluxString quotes a value as a Flux string literal.
func fluxString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "${", `\${`)
	return `"` + r.Replace(s) + `"`
}
