package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"algotrader/internal/risk"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "algotrader.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATA_DIR", "SQLITE_PATH", "ALPACA_API_KEY", "ALPACA_API_SECRET",
		"ALPACA_DATA_URL", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/algotrader/data"
  sqlite_path: "/tmp/algotrader/results.db"
server:
  host: "0.0.0.0"
  port: 8081
  grpc_port: 9091
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  feed: "sip"
logging:
  level: "debug"
  format: "text"
backtest:
  initial_capital: 50000
  commission: 0
  slippage: 0.001
  max_position_size: 0.25
risk:
  enabled: true
  model: kelly_criterion
  stop_loss: 0.08
strategies:
  fast_sma:
    name: sma_crossover
    symbol: AAPL
    parameters:
      short_period: 3
      long_period: 10
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/algotrader/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/algotrader/data")
	}
	if cfg.Storage.Market != "us" {
		t.Errorf("Storage.Market = %q, want %q", cfg.Storage.Market, "us")
	}

	// -- Server --
	if cfg.Server.Port != 8081 || cfg.Server.GRPCPort != 9091 {
		t.Errorf("Server ports = %d/%d, want 8081/9091", cfg.Server.Port, cfg.Server.GRPCPort)
	}

	// -- Alpaca --
	if cfg.Alpaca.APIKey != "test-key" || cfg.Alpaca.Feed != "sip" {
		t.Errorf("Alpaca = %+v, want key test-key feed sip", cfg.Alpaca)
	}
	if cfg.Alpaca.RateLimitPerMin != 200 {
		t.Errorf("Alpaca.RateLimitPerMin = %d, want 200", cfg.Alpaca.RateLimitPerMin)
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want debug/text", cfg.Logging)
	}

	// -- Backtest --
	if *cfg.Backtest.Commission != 0 {
		t.Errorf("Backtest.Commission = %v, want explicit 0 kept", *cfg.Backtest.Commission)
	}

	// -- Risk --
	if !cfg.Risk.Enabled {
		t.Error("Risk.Enabled = false, want true")
	}
	if cfg.Risk.Model != risk.ModelKellyCriterion {
		t.Errorf("Risk.Model = %q, want %q", cfg.Risk.Model, risk.ModelKellyCriterion)
	}
	if cfg.Risk.StopLoss != 0.08 {
		t.Errorf("Risk.StopLoss = %v, want 0.08", cfg.Risk.StopLoss)
	}
	if cfg.Risk.TakeProfit != 0.1 {
		t.Errorf("Risk.TakeProfit = %v, want default 0.1", cfg.Risk.TakeProfit)
	}

	// -- Strategies --
	p, ok := cfg.Preset("fast_sma")
	if !ok {
		t.Fatal("Preset(fast_sma) not found")
	}
	if p.Name != "sma_crossover" || p.Symbol != "AAPL" {
		t.Errorf("preset = %+v, want sma_crossover on AAPL", p)
	}
	if got := p.Parameters.Int("short_period", 0); got != 3 {
		t.Errorf("short_period = %d, want 3", got)
	}
	if _, ok := cfg.Preset("missing"); ok {
		t.Error("Preset(missing) found, want false")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != 8080 || cfg.Server.GRPCPort != 9090 {
		t.Errorf("Server ports = %d/%d, want 8080/9090", cfg.Server.Port, cfg.Server.GRPCPort)
	}
	if cfg.Backtest.InitialCapital != 100000 {
		t.Errorf("InitialCapital = %v, want 100000", cfg.Backtest.InitialCapital)
	}
	if *cfg.Backtest.Commission != 0.001 || *cfg.Backtest.Slippage != 0.0005 {
		t.Errorf("costs = %v/%v, want 0.001/0.0005", *cfg.Backtest.Commission, *cfg.Backtest.Slippage)
	}
	if cfg.Backtest.MaxPositionSize != 0.1 {
		t.Errorf("MaxPositionSize = %v, want 0.1", cfg.Backtest.MaxPositionSize)
	}
	if cfg.Risk.Enabled {
		t.Error("Risk.Enabled = true, want false by default")
	}
	if cfg.Risk.Model != risk.ModelFixedPercentage {
		t.Errorf("Risk.Model = %q, want %q", cfg.Risk.Model, risk.ModelFixedPercentage)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("APCA_API_SECRET_KEY", "sdk-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	if cfg.Alpaca.APISecret != "sdk-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (APCA override)", cfg.Alpaca.APISecret, "sdk-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load(missing) succeeded, want error")
	}
	if _, err := Load(writeConfig(t, "risk:\n  model: martingale\n")); err == nil {
		t.Error("Load with unknown risk model succeeded, want error")
	}

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault(missing) returned error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("LoadOrDefault Server.Port = %d, want 8080", cfg.Server.Port)
	}
}

func TestPath(t *testing.T) {
	t.Setenv("ALGOTRADER_CONFIG", "")
	if got := Path(); got != DefaultPath {
		t.Errorf("Path() = %q, want %q", got, DefaultPath)
	}
	t.Setenv("ALGOTRADER_CONFIG", "/etc/algotrader.yaml")
	if got := Path(); got != "/etc/algotrader.yaml" {
		t.Errorf("Path() = %q, want /etc/algotrader.yaml", got)
	}
}

func TestBacktestConfig(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "backtest:\n  initial_capital: 25000\n  commission: 0\n"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)

	bc := cfg.BacktestConfig(start, end)
	if !bc.InitialCapital.Equal(decimal.NewFromInt(25000)) {
		t.Errorf("InitialCapital = %v, want 25000", bc.InitialCapital)
	}
	if !bc.Commission.IsZero() {
		t.Errorf("Commission = %v, want 0", bc.Commission)
	}
	if !bc.Slippage.Equal(decimal.RequireFromString("0.0005")) {
		t.Errorf("Slippage = %v, want 0.0005", bc.Slippage)
	}
	if !bc.StartDate.Equal(start) || !bc.EndDate.Equal(end) {
		t.Errorf("dates = %v..%v, want %v..%v", bc.StartDate, bc.EndDate, start, end)
	}
	if err := bc.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}
