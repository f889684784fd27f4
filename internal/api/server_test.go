package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"algotrader/internal/backtest"
	"algotrader/internal/config"
	"algotrader/internal/domain"
	"algotrader/internal/marketdata"
	"algotrader/internal/store"
	"algotrader/internal/strategy/builtins"
	"algotrader/internal/util"
	algotrader "algotrader/pkg/algotrader"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testBars(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		p := decimal.NewFromFloat(100 + 10*math.Sin(float64(i)/5)).Round(2)
		bars[i] = domain.Bar{
			Symbol:    "AAPL",
			Timestamp: day0.AddDate(0, 0, i),
			Open:      p, High: p, Low: p, Close: p,
			Volume: 1000,
		}
	}
	return bars
}

func newTestServer(t *testing.T, withStore bool) *Server {
	t.Helper()
	var results store.ResultStore
	opts := []backtest.RunnerOption{backtest.WithRunnerLogger(util.DiscardLogger())}
	if withStore {
		s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "results.db"))
		if err != nil {
			t.Fatalf("NewSQLiteStore: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		results = s
		opts = append(opts, backtest.WithResultStore(s))
	}
	provider := marketdata.NewMemoryProvider(testBars(120)...)
	runner := backtest.NewRunner(provider, builtins.NewRegistry(), backtest.Config{}, opts...)

	cfg := &config.Config{Server: config.Server{Host: "127.0.0.1", Port: 0, GRPCPort: 0}}
	return NewServer(cfg, runner, results, util.DiscardLogger())
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func smaRequest() algotrader.BacktestRequest {
	return algotrader.BacktestRequest{
		Strategy:   "sma_crossover",
		Symbol:     "aapl",
		StartDate:  "2024-01-01",
		EndDate:    "2024-04-29",
		Parameters: map[string]any{"short_period": 3, "long_period": 8},
	}
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, false).Handler()
	rec := do(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got algotrader.HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil || got.Status != "ok" {
		t.Errorf("body = %+v (%v), want status ok", got, err)
	}
}

func TestStrategies(t *testing.T) {
	h := newTestServer(t, false).Handler()
	rec := do(t, h, http.MethodGet, "/api/v1/strategies", nil)
	var got algotrader.StrategiesResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	want := []string{"macd", "multi_indicator", "rsi", "sma_crossover"}
	if len(got.Strategies) != len(want) {
		t.Fatalf("strategies = %v, want %v", got.Strategies, want)
	}
	for i := range want {
		if got.Strategies[i] != want[i] {
			t.Errorf("strategies[%d] = %q, want %q", i, got.Strategies[i], want[i])
		}
	}
}

func TestRunBacktestAndFetch(t *testing.T) {
	h := newTestServer(t, true).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/backtests", smaRequest())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var res algotrader.BacktestResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if res.ID == "" || res.Symbol != "AAPL" || res.StrategyName != "sma_crossover" {
		t.Fatalf("result header = %q %s/%s", res.ID, res.StrategyName, res.Symbol)
	}
	if len(res.PortfolioValues) != 120 {
		t.Errorf("got %d snapshots, want 120", len(res.PortfolioValues))
	}

	rec = do(t, h, http.MethodGet, "/api/v1/backtests/"+res.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET by id status = %d, body %s", rec.Code, rec.Body.String())
	}
	var stored algotrader.BacktestResult
	if err := json.NewDecoder(rec.Body).Decode(&stored); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if !stored.FinalCapital.Equal(res.FinalCapital) || len(stored.Trades) != len(res.Trades) {
		t.Errorf("stored result differs: final %s vs %s, trades %d vs %d",
			stored.FinalCapital, res.FinalCapital, len(stored.Trades), len(res.Trades))
	}

	rec = do(t, h, http.MethodGet, "/api/v1/backtests?limit=5", nil)
	var list algotrader.ListResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(list.Backtests) != 1 || list.Backtests[0].ID != res.ID {
		t.Errorf("list = %+v, want one entry %s", list.Backtests, res.ID)
	}
}

func TestRunBacktestErrors(t *testing.T) {
	h := newTestServer(t, false).Handler()

	unknown := smaRequest()
	unknown.Strategy = "momentum"
	noData := smaRequest()
	noData.Symbol = "MSFT"
	badDate := smaRequest()
	badDate.StartDate = "01/02/2024"
	reversed := smaRequest()
	reversed.StartDate, reversed.EndDate = reversed.EndDate, reversed.StartDate

	tests := []struct {
		name string
		body any
		want int
	}{
		{"unknown strategy", unknown, http.StatusBadRequest},
		{"no data", noData, http.StatusNotFound},
		{"bad date", badDate, http.StatusBadRequest},
		{"end before start", reversed, http.StatusBadRequest},
		{"missing symbol", algotrader.BacktestRequest{Strategy: "rsi", StartDate: "2024-01-01", EndDate: "2024-02-01"}, http.StatusBadRequest},
		{"not json", "nope", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/backtests", tc.body)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tc.want, rec.Body.String())
			}
			var e algotrader.ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&e); err != nil || e.Error == "" {
				t.Errorf("error body = %+v (%v), want message", e, err)
			}
		})
	}
}

func TestSweep(t *testing.T) {
	h := newTestServer(t, false).Handler()

	body := algotrader.SweepRequest{
		Grid:            map[string][]float64{"short_period": {3, 5}, "long_period": {8, 12}},
		BacktestRequest: smaRequest(),
	}
	rec := do(t, h, http.MethodPost, "/api/v1/backtests/sweep", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got algotrader.SweepResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(got.Results) != 4 {
		t.Fatalf("got %d runs, want 4", len(got.Results))
	}
	for i := 1; i < len(got.Results); i++ {
		if got.Results[i-1].Result.SharpeRatio < got.Results[i].Result.SharpeRatio {
			t.Errorf("runs not ordered by sharpe at %d", i)
		}
	}

	body.Grid = nil
	if rec := do(t, h, http.MethodPost, "/api/v1/backtests/sweep", body); rec.Code != http.StatusBadRequest {
		t.Errorf("empty grid status = %d, want 400", rec.Code)
	}
	body.Grid = map[string][]float64{"short_period": {3}}
	body.Strategy = "momentum"
	if rec := do(t, h, http.MethodPost, "/api/v1/backtests/sweep", body); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown strategy status = %d, want 400", rec.Code)
	}
}

func TestCompare(t *testing.T) {
	h := newTestServer(t, false).Handler()

	body := algotrader.CompareRequest{
		Strategies:      []string{"sma_crossover", "rsi", "macd"},
		BacktestRequest: smaRequest(),
	}
	rec := do(t, h, http.MethodPost, "/api/v1/backtests/compare", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got algotrader.CompareResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(got.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(got.Results))
	}
	for name, res := range got.Results {
		if res.StrategyName != name {
			t.Errorf("results[%s].StrategyName = %s", name, res.StrategyName)
		}
	}

	body.Strategies = []string{"rsi", "momentum"}
	if rec := do(t, h, http.MethodPost, "/api/v1/backtests/compare", body); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown strategy status = %d, want 400", rec.Code)
	}
	body.Strategies = nil
	if rec := do(t, h, http.MethodPost, "/api/v1/backtests/compare", body); rec.Code != http.StatusBadRequest {
		t.Errorf("empty strategies status = %d, want 400", rec.Code)
	}
}

func TestResultsWithoutStore(t *testing.T) {
	h := newTestServer(t, false).Handler()
	for _, path := range []string{"/api/v1/backtests", "/api/v1/backtests/abc"} {
		if rec := do(t, h, http.MethodGet, path, nil); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s status = %d, want 503", path, rec.Code)
		}
	}
}

func TestGetBacktestNotFound(t *testing.T) {
	h := newTestServer(t, true).Handler()
	if rec := do(t, h, http.MethodGet, "/api/v1/backtests/missing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/backtests?limit=x", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
}

func TestServeAndShutdown(t *testing.T) {
	s := newTestServer(t, false)
	httpLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	grpcLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, httpLn, grpcLn) }()

	checkCtx, checkCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer checkCancel()

	status, err := algotrader.CheckGRPCHealth(checkCtx, grpcLn.Addr().String(), algotrader.ServiceName)
	if err != nil {
		t.Fatalf("CheckGRPCHealth: %v", err)
	}
	if status != "SERVING" {
		t.Errorf("grpc health = %s, want SERVING", status)
	}

	health, err := algotrader.NewClient("http://" + httpLn.Addr().String()).Health(checkCtx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("http health = %q, want ok", health.Status)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v, want nil", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
