// algotrader - backtest trading strategies over daily bars
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"algotrader/internal/strategy/builtins"
	algotrader "algotrader/pkg/algotrader"
)

var (
	version  = "0.1.0"
	cfgPath  string
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "algotrader",
		Short: "Backtest trading strategies over historical daily bars",
		Long: `algotrader runs indicator-driven trading strategies (SMA crossover, RSI,
MACD, multi-indicator voting) over historical daily bars with simulated
commission and slippage, and reports return, drawdown and Sharpe ratio.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Config file (defaults to $ALGOTRADER_CONFIG or config/algotrader.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(strategiesCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(compareCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(statusCmd())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "algotrader version %s\n", version)
		},
	}
}

func strategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List the available strategies",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range builtins.NewRegistry().List() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}

func statusCmd() *cobra.Command {
	var (
		httpURL  string
		grpcAddr string
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check a running algotrader-server over HTTP and gRPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			out := cmd.OutOrStdout()

			health, err := algotrader.NewClient(httpURL).Health(ctx)
			if err != nil {
				return fmt.Errorf("http %s: %w", httpURL, err)
			}
			fmt.Fprintf(out, "http  %-22s %s\n", httpURL, health.Status)

			status, err := algotrader.CheckGRPCHealth(ctx, grpcAddr, algotrader.ServiceName)
			if err != nil {
				return fmt.Errorf("grpc %s: %w", grpcAddr, err)
			}
			fmt.Fprintf(out, "grpc  %-22s %s\n", grpcAddr, status)
			return nil
		},
	}
	cmd.Flags().StringVar(&httpURL, "server", "http://localhost:8080", "HTTP base URL of the server")
	cmd.Flags().StringVar(&grpcAddr, "grpc", "localhost:9090", "gRPC address of the server")
	return cmd
}
