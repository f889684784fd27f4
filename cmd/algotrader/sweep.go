package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"algotrader/internal/backtest"
)

func sweepCmd() *cobra.Command {
	var (
		flags runFlags
		strat string
		grid  []string
		top   int
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one strategy over a grid of parameter values",
		Long: `Run one strategy once per combination of the --grid values and print the
runs ranked by Sharpe ratio. --param values apply to every run; grid values
override them. Combinations the strategy rejects are skipped.

Example:
  algotrader sweep --strategy sma_crossover --symbol AAPL \
    --grid short_period=5:15:5 --grid long_period=20,30,50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strat == "" {
				return errors.New("--strategy is required")
			}
			if len(grid) == 0 {
				return errors.New("at least one --grid is required")
			}
			g, err := backtest.ParseGrid(grid)
			if err != nil {
				return err
			}
			req, err := flags.request(nil)
			if err != nil {
				return err
			}
			req.Strategy = strat

			_, runner, closeFn, err := flags.setup()
			if err != nil {
				return err
			}
			defer closeFn()

			results, err := runner.Sweep(cmd.Context(), req, g)
			if err != nil {
				return err
			}
			if top > 0 && len(results) > top {
				results = results[:top]
			}
			out := cmd.OutOrStdout()
			if flags.asJSON {
				return writeJSON(out, results)
			}
			printSweep(out, results)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&strat, "strategy", "", "Strategy name (see 'algotrader strategies')")
	cmd.Flags().StringArrayVarP(&grid, "grid", "g", nil, "Parameter grid key=a,b,c or key=start:end:step (repeatable)")
	cmd.Flags().IntVar(&top, "top", 0, "Only print the best N runs")
	return cmd
}

func printSweep(w io.Writer, results []backtest.SweepResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PARAMETERS\tRETURN\tMAX DD\tSHARPE\tTRADES\tWIN RATE\tFINAL")
	for _, sr := range results {
		r := sr.Result
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f\t%d\t%s\t%s\n",
			formatParams(sr.Params), pct(r.TotalReturn), pct(r.MaxDrawdown),
			r.SharpeRatio, r.TotalTrades, pct(r.WinRate), r.FinalCapital.StringFixed(2))
	}
	tw.Flush()
}

func formatParams(p map[string]any) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return strings.Join(parts, " ")
}
