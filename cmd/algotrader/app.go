package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"algotrader/internal/backtest"
	"algotrader/internal/config"
	"algotrader/internal/marketdata"
	"algotrader/internal/risk"
	"algotrader/internal/store"
	"algotrader/internal/strategy/builtins"
	"algotrader/internal/util"
)

// loadConfig reads the config file named by --config, $ALGOTRADER_CONFIG or
// the default path. A missing default file is not an error.
func loadConfig() (*config.Config, error) {
	path := cfgPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newLogger logs to stderr so stdout carries only command output.
func newLogger(cfg *config.Config) *slog.Logger {
	logger := util.NewLoggerTo(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)
	return logger
}

func newProvider(cfg *config.Config, source string) (marketdata.Provider, error) {
	switch source {
	case "parquet", "":
		return marketdata.NewStoreProvider(store.NewParquetStore(cfg.Storage.DataDir), cfg.Storage.Market), nil
	case "alpaca":
		if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
			return nil, errors.New("alpaca source needs api_key and api_secret (or APCA_API_KEY_ID / APCA_API_SECRET_KEY)")
		}
		return marketdata.NewAlpacaProvider(
			cfg.Alpaca.APIKey,
			cfg.Alpaca.APISecret,
			cfg.Alpaca.DataURL,
			cfg.Alpaca.Feed,
			cfg.Alpaca.RateLimitPerMin,
		), nil
	default:
		return nil, fmt.Errorf("unknown data source %q (want parquet or alpaca)", source)
	}
}

// openResults opens the SQLite result store, creating its directory.
func openResults(cfg *config.Config) (*store.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	return store.NewSQLiteStore(cfg.Storage.SQLitePath)
}

// newRunner wires a Runner over provider. The returned close func releases
// the result store, if one was opened.
func newRunner(cfg *config.Config, provider marketdata.Provider, logger *slog.Logger, save, useRisk bool) (*backtest.Runner, func() error, error) {
	closeFn := func() error { return nil }
	opts := []backtest.RunnerOption{backtest.WithRunnerLogger(logger)}

	if save {
		results, err := openResults(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("opening result store: %w", err)
		}
		opts = append(opts, backtest.WithResultStore(results))
		closeFn = results.Close
	}
	if useRisk || cfg.Risk.Enabled {
		riskCfg := cfg.Risk.Config
		opts = append(opts, backtest.WithSizerFactory(func() backtest.Sizer {
			return risk.NewManager(riskCfg, logger).Sizer()
		}))
		logger.Info("risk sizing enabled", "model", riskCfg.Model)
	}

	defaults := cfg.BacktestConfig(time.Time{}, time.Time{})
	return backtest.NewRunner(provider, builtins.NewRegistry(), defaults, opts...), closeFn, nil
}
