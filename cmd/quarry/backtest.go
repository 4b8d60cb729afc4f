package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/newthinker/quarry/internal/backtest"
	"github.com/newthinker/quarry/internal/core"
	"github.com/spf13/cobra"
)

var (
	backtestSymbol   string
	backtestSource   string
	backtestInterval string
	backtestFrom     string
	backtestTo       string
	backtestCapital  float64
	backtestJSON     bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest [strategy-id]",
	Short: "Run a backtest of a stored strategy",
	Long:  "Replay a strategy over cached candles, fetching missing ranges, and show performance statistics",
	Args:  cobra.ExactArgs(1),
	RunE:  runBacktest,
}

func init() {
	addRangeFlags(backtestCmd, &backtestSymbol, &backtestSource, &backtestInterval, &backtestFrom, &backtestTo)
	backtestCmd.Flags().Float64Var(&backtestCapital, "capital", 0, "Initial capital (default from config)")
	backtestCmd.Flags().BoolVar(&backtestJSON, "json", false, "Print the full result as JSON")

	rootCmd.AddCommand(backtestCmd)
}

// addRangeFlags registers the flags shared by backtest and verify.
func addRangeFlags(cmd *cobra.Command, symbol, source, interval, from, to *string) {
	cmd.Flags().StringVar(symbol, "symbol", "", "Symbol override")
	cmd.Flags().StringVar(source, "source", "", "Data source override")
	cmd.Flags().StringVar(interval, "interval", "", "Interval override")
	cmd.Flags().StringVar(from, "from", "", "Start date YYYY-MM-DD (required)")
	cmd.Flags().StringVar(to, "to", "", "End date YYYY-MM-DD (required)")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
}

func buildRequest(strategyID, symbol, source, interval, from, to string, capital float64) (backtest.Request, error) {
	fromDate, err := parseDay("from", from)
	if err != nil {
		return backtest.Request{}, err
	}
	toDate, err := parseDay("to", to)
	if err != nil {
		return backtest.Request{}, err
	}
	var iv core.Interval
	if interval != "" {
		if iv, err = core.ParseInterval(interval); err != nil {
			return backtest.Request{}, err
		}
	}
	return backtest.Request{
		StrategyID:     strategyID,
		StartDate:      fromDate,
		EndDate:        toDate,
		InitialCapital: capital,
		Symbol:         symbol,
		Source:         source,
		Interval:       iv,
	}, nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, cfg, log, err := bootstrap(ctx)
	defer log.Sync()
	if err != nil {
		return err
	}
	defer a.Close()

	capital := backtestCapital
	if capital <= 0 {
		capital = cfg.Backtest.DefaultCapital
	}
	req, err := buildRequest(args[0], backtestSymbol, backtestSource, backtestInterval, backtestFrom, backtestTo, capital)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Backtest.Timeout)
	defer cancel()
	res, err := a.Backtests.Run(ctx, req)
	if err != nil {
		return err
	}

	if backtestJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResult(res)
	return nil
}

func printResult(res *backtest.Result) {
	fmt.Println("=== quarry backtest ===")
	fmt.Printf("Result:   %s\n", res.ID)
	fmt.Printf("Strategy: %s (%s)\n", res.StrategyName, res.StrategyID)
	fmt.Printf("Series:   %s %s from %s\n", res.Symbol, res.Interval, res.Source)
	fmt.Printf("Period:   %s to %s\n", res.StartDate.Format(time.DateOnly), res.EndDate.Format(time.DateOnly))
	fmt.Printf("Candles:  %d (%d cached, %d fetched)\n", res.CandleCount, res.CachedCount, res.FetchedCount)
	fmt.Println()

	s := res.Stats
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Initial capital\t%.2f\n", res.InitialCapital)
	fmt.Fprintf(w, "Final capital\t%.2f\n", res.FinalCapital)
	fmt.Fprintf(w, "Total return\t%.2f%%\n", s.TotalReturnPct)
	fmt.Fprintf(w, "Trades\t%d (%d won, %d lost)\n", s.TotalTrades, s.WinningTrades, s.LosingTrades)
	fmt.Fprintf(w, "Win rate\t%.2f%%\n", s.WinRate)
	fmt.Fprintf(w, "Profit factor\t%.2f\n", s.ProfitFactor)
	fmt.Fprintf(w, "Avg win / loss\t%.2f%% / %.2f%%\n", s.AvgWinPct, s.AvgLossPct)
	fmt.Fprintf(w, "Max drawdown\t%.2f%%\n", s.MaxDrawdownPct)
	fmt.Fprintf(w, "Sharpe ratio\t%.2f\n", s.SharpeRatio)
	fmt.Fprintf(w, "Avg hold\t%s\n", s.AvgHoldDuration)
	w.Flush()

	if len(res.Warnings) > 0 {
		fmt.Println()
		fmt.Println("Warnings:")
		for _, warning := range res.Warnings {
			fmt.Printf("  - %s\n", warning)
		}
	}
}
