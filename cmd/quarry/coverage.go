package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

const dayTime = "2006-01-02 15:04"

var coverageCmd = &cobra.Command{
	Use:   "coverage [symbol]",
	Short: "List stored candle coverage, for one symbol or all",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCoverage,
}

func init() {
	rootCmd.AddCommand(coverageCmd)
}

func runCoverage(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, _, log, err := bootstrap(ctx)
	defer log.Sync()
	if err != nil {
		return err
	}
	defer a.Close()

	symbol := ""
	if len(args) == 1 {
		symbol = args[0]
	}
	list, err := a.MarketData.Summaries(ctx, symbol)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("no candles stored")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tSOURCE\tINTERVAL\tEARLIEST\tLATEST\tCOUNT")
	for _, c := range list {
		earliest, latest := "-", "-"
		if !c.Empty() {
			earliest, latest = c.Earliest.Format(dayTime), c.Latest.Format(dayTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", c.Symbol, c.Source, c.Interval, earliest, latest, c.Count)
	}
	return w.Flush()
}
