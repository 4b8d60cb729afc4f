package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	verifySymbol   string
	verifySource   string
	verifyInterval string
	verifyFrom     string
	verifyTo       string
)

var verifyCmd = &cobra.Command{
	Use:   "verify [strategy-id]",
	Short: "Check how a backtest's data would be served, without fetching",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func init() {
	addRangeFlags(verifyCmd, &verifySymbol, &verifySource, &verifyInterval, &verifyFrom, &verifyTo)
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, _, log, err := bootstrap(ctx)
	defer log.Sync()
	if err != nil {
		return err
	}
	defer a.Close()

	req, err := buildRequest(args[0], verifySymbol, verifySource, verifyInterval, verifyFrom, verifyTo, 1)
	if err != nil {
		return err
	}
	v, err := a.Backtests.Verify(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("Status:   %s\n", v.Status)
	fmt.Printf("Message:  %s\n", v.Message)
	fmt.Printf("Stored:   %d candles", v.Coverage.Count)
	if !v.Coverage.Empty() {
		fmt.Printf(" (%s to %s)", v.Coverage.Earliest.Format(dayTime), v.Coverage.Latest.Format(dayTime))
	}
	fmt.Println()
	fmt.Printf("Expected: %d candles\n", v.ExpectedCandles)
	for _, g := range v.Gaps {
		fmt.Printf("  gap %s to %s\n", g.From.Format(dayTime), g.To.Format(dayTime))
	}
	return nil
}
