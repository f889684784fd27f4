package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"algotrader/internal/api"
	"algotrader/internal/backtest"
	"algotrader/internal/config"
	"algotrader/internal/marketdata"
	"algotrader/internal/risk"
	"algotrader/internal/store"
	"algotrader/internal/strategy/builtins"
	"algotrader/internal/util"
)

func main() {
	source := flag.String("source", "parquet", "historical data source: parquet or alpaca")
	flag.Parse()

	cfgPath := config.Path()
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLoggerTo(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	var provider marketdata.Provider
	switch *source {
	case "parquet":
		provider = marketdata.NewStoreProvider(store.NewParquetStore(cfg.Storage.DataDir), cfg.Storage.Market)
	case "alpaca":
		if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
			log.Fatal("alpaca source needs api_key and api_secret")
		}
		provider = marketdata.NewAlpacaProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret,
			cfg.Alpaca.DataURL, cfg.Alpaca.Feed, cfg.Alpaca.RateLimitPerMin)
	default:
		log.Fatalf("unknown source %q", *source)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		log.Fatalf("creating %s: %v", filepath.Dir(cfg.Storage.SQLitePath), err)
	}
	results, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening result store: %v", err)
	}
	defer results.Close()

	opts := []backtest.RunnerOption{
		backtest.WithRunnerLogger(logger),
		backtest.WithResultStore(results),
	}
	if cfg.Risk.Enabled {
		riskCfg := cfg.Risk.Config
		opts = append(opts, backtest.WithSizerFactory(func() backtest.Sizer {
			return risk.NewManager(riskCfg, logger).Sizer()
		}))
	}
	runner := backtest.NewRunner(provider, builtins.NewRegistry(), cfg.BacktestConfig(time.Time{}, time.Time{}), opts...)

	srv := api.NewServer(cfg, runner, results, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting algotrader-server",
		"config", cfgPath,
		"source", *source,
		"http_port", cfg.Server.Port,
		"grpc_port", cfg.Server.GRPCPort,
		"risk", cfg.Risk.Enabled,
	)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("algotrader-server stopped")
}
