package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"algotrader/internal/backtest"
	"algotrader/internal/config"
	"algotrader/internal/domain"
	"algotrader/internal/strategy"
)

// runFlags are shared by run and compare.
type runFlags struct {
	symbol  string
	start   string
	end     string
	capital string
	params  []string
	source  string
	save    bool
	useRisk bool
	asJSON  bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.symbol, "symbol", "s", "", "Symbol to backtest")
	cmd.Flags().StringVar(&f.start, "start", "", "Start date YYYY-MM-DD (default: one year before --end)")
	cmd.Flags().StringVar(&f.end, "end", "", "End date YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&f.capital, "capital", "", "Initial capital (default from config)")
	cmd.Flags().StringArrayVarP(&f.params, "param", "p", nil, "Strategy parameter key=value (repeatable)")
	cmd.Flags().StringVar(&f.source, "source", "parquet", "Data source: parquet or alpaca")
	cmd.Flags().BoolVar(&f.save, "save", false, "Save results to the SQLite result store")
	cmd.Flags().BoolVar(&f.useRisk, "risk", false, "Size orders with the risk manager instead of fixed fraction")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print full results as JSON")
}

// request builds a runner request; the strategy name is filled by the caller.
func (f *runFlags) request(base strategy.Params) (backtest.Request, error) {
	if f.symbol == "" {
		return backtest.Request{}, errors.New("--symbol is required")
	}
	end := time.Now().UTC().Truncate(24 * time.Hour)
	if f.end != "" {
		t, err := time.Parse(time.DateOnly, f.end)
		if err != nil {
			return backtest.Request{}, fmt.Errorf("invalid --end: %w", err)
		}
		end = t
	}
	start := end.AddDate(-1, 0, 0)
	if f.start != "" {
		t, err := time.Parse(time.DateOnly, f.start)
		if err != nil {
			return backtest.Request{}, fmt.Errorf("invalid --start: %w", err)
		}
		start = t
	}

	capital := decimal.Zero
	if f.capital != "" {
		c, err := decimal.NewFromString(f.capital)
		if err != nil {
			return backtest.Request{}, fmt.Errorf("invalid --capital: %w", err)
		}
		capital = c
	}

	params, err := strategy.ParseParams(f.params)
	if err != nil {
		return backtest.Request{}, err
	}
	merged := base.Clone()
	for k, v := range params {
		merged[k] = v
	}

	return backtest.Request{
		Symbol:         strings.ToUpper(f.symbol),
		Start:          start,
		End:            end,
		InitialCapital: capital,
		Params:         merged,
	}, nil
}

func (f *runFlags) setup() (*config.Config, *backtest.Runner, func() error, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := newLogger(cfg)
	provider, err := newProvider(cfg, f.source)
	if err != nil {
		return nil, nil, nil, err
	}
	runner, closeFn, err := newRunner(cfg, provider, logger, f.save, f.useRisk)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, runner, closeFn, nil
}

func runCmd() *cobra.Command {
	var (
		flags  runFlags
		strat  string
		preset string
		trades bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one strategy over a symbol and date range",
		Long: `Run one strategy and print its performance summary.

Example:
  algotrader run --strategy sma_crossover --symbol AAPL --start 2023-01-01 --end 2023-12-31
  algotrader run --strategy rsi --symbol MSFT -p oversold=25 -p overbought=75 --save
  algotrader run --preset fast_sma --end 2024-06-30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, runner, closeFn, err := flags.setup()
			if err != nil {
				return err
			}
			defer closeFn()

			var base strategy.Params
			if preset != "" {
				p, ok := cfg.Preset(preset)
				if !ok {
					return fmt.Errorf("unknown preset %q", preset)
				}
				if strat == "" {
					strat = p.Name
				}
				if flags.symbol == "" {
					flags.symbol = p.Symbol
				}
				base = p.Parameters
			}
			if strat == "" {
				return errors.New("--strategy or --preset is required")
			}

			req, err := flags.request(base)
			if err != nil {
				return err
			}
			req.Strategy = strat

			res, err := runner.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if flags.asJSON {
				return writeJSON(out, res)
			}
			printSummary(out, res)
			if trades {
				printTrades(out, res.Trades)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&strat, "strategy", "", "Strategy name (see 'algotrader strategies')")
	cmd.Flags().StringVar(&preset, "preset", "", "Named strategy preset from the config file")
	cmd.Flags().BoolVar(&trades, "trades", false, "Also print the trade log")
	return cmd
}

func compareCmd() *cobra.Command {
	var (
		flags runFlags
		names []string
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Run several strategies over the same symbol and compare them",
		Long: `Run several strategies in parallel, each on its own simulated portfolio,
and print one row per strategy. A strategy whose run fails is left out.

Example:
  algotrader compare --symbol AAPL --strategies sma_crossover,rsi,macd --start 2023-01-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, runner, closeFn, err := flags.setup()
			if err != nil {
				return err
			}
			defer closeFn()

			if len(names) == 0 {
				names = runner.Strategies()
			}
			req, err := flags.request(nil)
			if err != nil {
				return err
			}

			results, err := runner.Compare(cmd.Context(), names, req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if flags.asJSON {
				return writeJSON(out, results)
			}
			printComparison(out, results)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringSliceVar(&names, "strategies", nil, "Comma-separated strategy names (default: all)")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func pct(f float64) string { return fmt.Sprintf("%.2f%%", f*100) }

func printSummary(w io.Writer, r *domain.BacktestResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if r.ID != "" {
		fmt.Fprintf(tw, "ID\t%s\n", r.ID)
	}
	fmt.Fprintf(tw, "Strategy\t%s\n", r.StrategyName)
	fmt.Fprintf(tw, "Symbol\t%s\n", r.Symbol)
	fmt.Fprintf(tw, "Period\t%s .. %s\n", r.StartDate.Format(time.DateOnly), r.EndDate.Format(time.DateOnly))
	fmt.Fprintf(tw, "Initial capital\t%s\n", r.InitialCapital.StringFixed(2))
	fmt.Fprintf(tw, "Final capital\t%s\n", r.FinalCapital.StringFixed(2))
	fmt.Fprintf(tw, "Total return\t%s\n", pct(r.TotalReturn))
	fmt.Fprintf(tw, "Annualized return\t%s\n", pct(r.AnnualizedReturn))
	fmt.Fprintf(tw, "Max drawdown\t%s\n", pct(r.MaxDrawdown))
	fmt.Fprintf(tw, "Sharpe ratio\t%.3f\n", r.SharpeRatio)
	fmt.Fprintf(tw, "Trades\t%d\n", r.TotalTrades)
	fmt.Fprintf(tw, "Win rate\t%s\n", pct(r.WinRate))
	if n := len(r.Rejections); n > 0 {
		fmt.Fprintf(tw, "Rejected signals\t%d\n", n)
	}
	tw.Flush()
}

func printTrades(w io.Writer, trades []domain.Trade) {
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tSIDE\tQTY\tPRICE\tCOMMISSION\tPNL")
	for _, t := range trades {
		pnl := ""
		if t.PnL != nil {
			pnl = t.PnL.StringFixed(2)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Timestamp.Format(time.DateOnly), t.Side, t.Quantity, t.Price.StringFixed(4), t.Commission.StringFixed(4), pnl)
	}
	tw.Flush()
}

func printComparison(w io.Writer, results map[string]*domain.BacktestResult) {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tRETURN\tANNUALIZED\tMAX DD\tSHARPE\tTRADES\tWIN RATE\tFINAL")
	for _, name := range names {
		r := results[name]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.3f\t%d\t%s\t%s\n",
			name, pct(r.TotalReturn), pct(r.AnnualizedReturn), pct(r.MaxDrawdown),
			r.SharpeRatio, r.TotalTrades, pct(r.WinRate), r.FinalCapital.StringFixed(2))
	}
	tw.Flush()
}
