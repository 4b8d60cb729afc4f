// Package config loads quarry's YAML configuration through viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/quarry/internal/core"
	"github.com/newthinker/quarry/internal/fetcher"
	"github.com/newthinker/quarry/internal/logger"
	"github.com/newthinker/quarry/internal/storage/archive"
	"github.com/newthinker/quarry/internal/storage/candle"
	"github.com/newthinker/quarry/internal/strategy"
	"github.com/spf13/viper"
)

// Candle store drivers.
const (
	DriverSQLite = "sqlite"
	DriverInflux = "influxdb"
	DriverMemory = "memory"
)

type Config struct {
	Server     ServerConfig              `mapstructure:"server"`
	Storage    StorageConfig             `mapstructure:"storage"`
	Fetchers   map[string]fetcher.Config `mapstructure:"fetchers"`
	MarketData MarketDataConfig          `mapstructure:"marketdata"`
	Backtest   BacktestConfig            `mapstructure:"backtest"`
	Strategies []StrategyConfig          `mapstructure:"strategies"`
	Metrics    MetricsConfig             `mapstructure:"metrics"`
	Log        logger.Config             `mapstructure:"log"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	APIKey      string `mapstructure:"api_key"`
	JobTTLHours int    `mapstructure:"job_ttl_hours"`
	MaxJobs     int    `mapstructure:"max_jobs"`
}

type StorageConfig struct {
	Candles CandleStoreConfig `mapstructure:"candles"`
	Results ResultsConfig     `mapstructure:"results"`
	Archive archive.Config    `mapstructure:"archive"`
}

// CandleStoreConfig selects the candle backend. Path is used by sqlite, Influx by influxdb.
type CandleStoreConfig struct {
	Driver         string              `mapstructure:"driver"`
	Path           string              `mapstructure:"path"`
	Influx         candle.InfluxConfig `mapstructure:"influx"`
	SchemaAttempts int                 `mapstructure:"schema_attempts"`
	SchemaDelay    time.Duration       `mapstructure:"schema_delay"`
}

// ResultsConfig locates the SQLite database holding strategies and result summaries.
type ResultsConfig struct {
	DSN string `mapstructure:"dsn"`
}

type MarketDataConfig struct {
	SettleDelay     time.Duration `mapstructure:"settle_delay"`
	WarmConcurrency int           `mapstructure:"warm_concurrency"`
}

type BacktestConfig struct {
	DefaultCapital float64       `mapstructure:"default_capital"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// StrategyConfig seeds one strategy. Either Preset (with Params) or Rules must be set.
// Symbol, Source and Interval are applied on top of either.
type StrategyConfig struct {
	ID          string                  `mapstructure:"id"`
	Name        string                  `mapstructure:"name"`
	Description string                  `mapstructure:"description"`
	Preset      string                  `mapstructure:"preset"`
	Params      map[string]float64      `mapstructure:"params"`
	Rules       *strategy.Configuration `mapstructure:"rules"`
	Symbol      string                  `mapstructure:"symbol"`
	Source      string                  `mapstructure:"source"`
	Interval    string                  `mapstructure:"interval"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file on top of Defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("reading config: %w", err))
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unmarshaling config: %w", err))
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			JobTTLHours: 1,
			MaxJobs:     100,
		},
		Storage: StorageConfig{
			Candles: CandleStoreConfig{
				Driver:         DriverSQLite,
				Path:           "data/candles.db",
				SchemaAttempts: 5,
				SchemaDelay:    2 * time.Second,
			},
			Results: ResultsConfig{
				DSN: "data/quarry.db",
			},
			Archive: archive.Config{
				Backend: archive.BackendLocalFS,
				Path:    "data/archive",
			},
		},
		Fetchers: map[string]fetcher.Config{
			"binance": {Enabled: true},
			"yahoo":   {Enabled: true},
		},
		MarketData: MarketDataConfig{
			SettleDelay:     500 * time.Millisecond,
			WarmConcurrency: 4,
		},
		Backtest: BacktestConfig{
			DefaultCapital: 10000,
			Timeout:        5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: logger.Config{
			Level: "info",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	switch c.Storage.Candles.Driver {
	case DriverSQLite:
		if c.Storage.Candles.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage.candles.path required for sqlite"))
		}
	case DriverInflux:
		in := c.Storage.Candles.Influx
		if in.URL == "" || in.Bucket == "" || in.Org == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage.candles.influx url, org and bucket required for influxdb"))
		}
	case DriverMemory:
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown candle store driver %q", c.Storage.Candles.Driver))
	}

	if c.Storage.Results.DSN == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("storage.results.dsn required"))
	}

	switch c.Storage.Archive.Backend {
	case archive.BackendLocalFS, archive.BackendS3:
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown archive backend %q", c.Storage.Archive.Backend))
	}

	for name, fc := range c.Fetchers {
		if fc.RatePerSec < 0 || fc.PageLimit < 0 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("fetcher %s: rate_per_sec and page_limit cannot be negative", name))
		}
	}

	if c.MarketData.SettleDelay < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("marketdata.settle_delay cannot be negative, got %s", c.MarketData.SettleDelay))
	}
	if c.MarketData.WarmConcurrency < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("marketdata.warm_concurrency must be at least 1, got %d", c.MarketData.WarmConcurrency))
	}
	if c.Backtest.DefaultCapital <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("backtest.default_capital must be positive, got %v", c.Backtest.DefaultCapital))
	}
	if c.Backtest.Timeout <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("backtest.timeout must be positive, got %s", c.Backtest.Timeout))
	}

	seen := make(map[string]bool)
	for i, s := range c.Strategies {
		if s.Preset == "" && s.Rules == nil {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("strategies[%d]: preset or rules required", i))
		}
		if s.Preset == "" && s.ID == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("strategies[%d]: id required for rule-defined strategies", i))
		}
		if s.Interval != "" {
			if _, err := core.ParseInterval(s.Interval); err != nil {
				return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("strategies[%d]: %w", i, err))
			}
		}
		if s.ID != "" {
			if seen[s.ID] {
				return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("duplicate strategy id %q", s.ID))
			}
			seen[s.ID] = true
		}
	}

	return nil
}
