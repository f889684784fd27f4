// Package config loads the YAML configuration shared by the CLI and the API
// server and converts it into the explicit values the engine consumes.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"algotrader/internal/backtest"
	"algotrader/internal/broker"
	"algotrader/internal/risk"
	"algotrader/internal/strategy"
)

// DefaultPath is used when ALGOTRADER_CONFIG is unset.
const DefaultPath = "config/algotrader.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for algotrader.
type Config struct {
	Storage    Storage                    `yaml:"storage"`
	Server     Server                     `yaml:"server"`
	Alpaca     Alpaca                     `yaml:"alpaca"`
	Logging    Logging                    `yaml:"logging"`
	Backtest   Backtest                   `yaml:"backtest"`
	Risk       Risk                       `yaml:"risk"`
	Strategies map[string]strategy.Config `yaml:"strategies"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	Market     string `yaml:"market"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	DataURL         string `yaml:"data_url"`
	Feed            string `yaml:"feed"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Backtest holds the default run parameters. Commission and slippage are
// pointers so an explicit zero in the file is kept.
type Backtest struct {
	InitialCapital  float64  `yaml:"initial_capital"`
	Commission      *float64 `yaml:"commission"`
	Slippage        *float64 `yaml:"slippage"`
	MaxPositionSize float64  `yaml:"max_position_size"`
}

// Risk configures the optional risk manager. When Enabled is false the
// engine sizes orders with its inline fixed fraction.
type Risk struct {
	Enabled     bool `yaml:"enabled"`
	risk.Config `yaml:",inline"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the configuration file path from ALGOTRADER_CONFIG, or
// DefaultPath.
func Path() string {
	if v := os.Getenv("ALGOTRADER_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Default returns a Config with every default applied and env overrides on
// top.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, fills defaults and then applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if _, err := risk.ParseModel(string(cfg.Risk.Model)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/algotrader.db"
	}
	if cfg.Storage.Market == "" {
		cfg.Storage.Market = "us"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 9090
	}
	if cfg.Alpaca.Feed == "" {
		cfg.Alpaca.Feed = "iex"
	}
	if cfg.Alpaca.RateLimitPerMin == 0 {
		cfg.Alpaca.RateLimitPerMin = 200
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	bt := &cfg.Backtest
	if bt.InitialCapital == 0 {
		bt.InitialCapital = backtest.DefaultInitialCapital.InexactFloat64()
	}
	if bt.Commission == nil {
		v := broker.DefaultCommission.InexactFloat64()
		bt.Commission = &v
	}
	if bt.Slippage == nil {
		v := broker.DefaultSlippage.InexactFloat64()
		bt.Slippage = &v
	}
	if bt.MaxPositionSize == 0 {
		bt.MaxPositionSize = backtest.DefaultMaxPositionSize
	}

	cfg.Risk.Config = cfg.Risk.Config.WithDefaults()
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Canonical SDK names win over the ALPACA_* ones.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

// BacktestConfig builds the engine configuration for [start, end].
func (c *Config) BacktestConfig(start, end time.Time) backtest.Config {
	bc := backtest.DefaultConfig(start, end)
	bt := c.Backtest
	if bt.InitialCapital > 0 {
		bc.InitialCapital = decimal.NewFromFloat(bt.InitialCapital)
	}
	if bt.Commission != nil {
		bc.Commission = decimal.NewFromFloat(*bt.Commission)
	}
	if bt.Slippage != nil {
		bc.Slippage = decimal.NewFromFloat(*bt.Slippage)
	}
	if bt.MaxPositionSize > 0 {
		bc.MaxPositionSize = bt.MaxPositionSize
	}
	return bc
}

// Preset returns the named strategy preset. The preset's Name field holds the
// strategy kind; when empty, the preset name itself is used.
func (c *Config) Preset(name string) (strategy.Config, bool) {
	p, ok := c.Strategies[name]
	if !ok {
		return strategy.Config{}, false
	}
	if p.Name == "" {
		p.Name = name
	}
	p.Parameters = p.Parameters.Clone()
	return p, true
}
