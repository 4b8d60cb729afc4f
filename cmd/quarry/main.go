package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/quarry/internal/app"
	"github.com/newthinker/quarry/internal/config"
	"github.com/newthinker/quarry/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "quarry",
	Short: "quarry - cache-first candle store and strategy backtester",
	Long: `quarry keeps OHLCV candles from external sources in a local store, fetching
only the ranges it is missing, and replays rule-based strategies over them.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads --config, falling back to defaults when it is unset.
func loadConfig(log *zap.Logger) (*config.Config, error) {
	if cfgFile == "" {
		log.Warn("no config file specified, using defaults")
		return config.Defaults(), nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// bootstrap loads configuration and builds the logger and the app.
func bootstrap(ctx context.Context) (*app.App, *config.Config, *zap.Logger, error) {
	log := logger.Must(logger.Config{Development: debug})
	cfg, err := loadConfig(log)
	if err != nil {
		return nil, nil, log, err
	}
	if !debug {
		l, err := logger.New(cfg.Log)
		if err != nil {
			return nil, nil, log, err
		}
		log = l
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, log, fmt.Errorf("initializing: %w", err)
	}
	return a, cfg, log, nil
}

// parseDay accepts YYYY-MM-DD or RFC 3339.
func parseDay(flag, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s date %q (expected YYYY-MM-DD): %w", flag, s, err)
	}
	return t, nil
}
