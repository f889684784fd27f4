package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"algotrader/internal/domain"
	"algotrader/internal/indicator"
	"algotrader/internal/marketdata"
	"algotrader/internal/strategy"
	"algotrader/internal/strategy/builtins"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seriesBars(closes ...float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		p := decimal.NewFromFloat(c).Round(2)
		bars[i] = domain.Bar{
			Symbol:    "AAPL",
			Timestamp: start.AddDate(0, 0, i),
			Open:      p, High: p, Low: p, Close: p,
			Volume: 1000,
		}
	}
	return bars
}

func wave(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 10*math.Sin(float64(i)/5)
	}
	return out
}

// scripted emits planned signals at fixed bar indices of the run.
type scripted struct {
	plan    map[int]domain.Signal
	lastLen int
	t       *testing.T
}

func (s *scripted) Name() string                          { return "scripted" }
func (s *scripted) Kind() strategy.Kind                   { return strategy.KindSMACrossover }
func (s *scripted) Symbol() string                        { return "AAPL" }
func (s *scripted) Init(context.Context, time.Time) error { return nil }
func (s *scripted) RequiredIndicators() []string          { return nil }
func (s *scripted) Calculator() *indicator.Calculator     { return indicator.NewCalculator(nil) }
func (s *scripted) GenerateSignals(_ context.Context, bars []domain.Bar) ([]domain.Signal, error) {
	if len(bars) != s.lastLen+1 {
		s.t.Errorf("strategy saw prefix of %d bars after %d", len(bars), s.lastLen)
	}
	s.lastLen = len(bars)
	i := len(bars) - 1
	sig, ok := s.plan[i]
	if !ok {
		return nil, nil
	}
	sig.Symbol = "AAPL"
	sig.Timestamp = bars[i].Timestamp
	if sig.Price.IsZero() {
		sig.Price = bars[i].Close
	}
	return []domain.Signal{sig}, nil
}

func buyQty(q int64) domain.Signal {
	return domain.Signal{Type: domain.SignalTypeBuy, Quantity: decimal.NewFromInt(q)}
}

func sellQty(q int64) domain.Signal {
	return domain.Signal{Type: domain.SignalTypeSell, Quantity: decimal.NewFromInt(q)}
}

func newEngine(t *testing.T, bars []domain.Bar, opts ...Option) *Engine {
	t.Helper()
	cfg := DefaultConfig(start, start.AddDate(0, 0, len(bars)))
	e, err := NewEngine(cfg, marketdata.NewMemoryProvider(bars...), opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestRunEmptySeriesFails(t *testing.T) {
	e := newEngine(t, nil)
	res, err := e.Run(context.Background(), &scripted{t: t})
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("Run error = %v, want ErrDataUnavailable", err)
	}
	if res != nil {
		t.Errorf("Run returned a result on failure: %+v", res)
	}
	if e.State() != StateFailed {
		t.Errorf("State = %s, want failed", e.State())
	}
}

func TestRunTwiceIsInvalid(t *testing.T) {
	e := newEngine(t, seriesBars(100, 101))
	if _, err := e.Run(context.Background(), &scripted{t: t}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if e.State() != StateCompleted {
		t.Errorf("State = %s, want completed", e.State())
	}
	if _, err := e.Run(context.Background(), &scripted{t: t}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Run error = %v, want ErrInvalidState", err)
	}
}

func TestRunScriptedBuyCosts(t *testing.T) {
	e := newEngine(t, seriesBars(100, 100))
	res, err := e.Run(context.Background(), &scripted{t: t, plan: map[int]domain.Signal{0: buyQty(10)}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(res.Trades))
	}
	tr := res.Trades[0]
	if !tr.Price.Equal(d("100.05")) || !tr.Commission.Equal(d("1.0005")) {
		t.Errorf("trade = %s + %s commission, want 100.05 + 1.0005", tr.Price, tr.Commission)
	}
	if got := res.PortfolioValues[0].Cash; !got.Equal(d("98998.4995")) {
		t.Errorf("cash after buy = %s, want 98998.4995", got)
	}
	// Marked at the close of 100: the position is worth 1000.
	if got := res.PortfolioValues[0].TotalValue; !got.Equal(d("99998.4995")) {
		t.Errorf("total value = %s, want 99998.4995", got)
	}
}

func TestRunSellClampedAndClosed(t *testing.T) {
	e := newEngine(t, seriesBars(100, 110, 110, 110))
	res, err := e.Run(context.Background(), &scripted{t: t, plan: map[int]domain.Signal{
		0: buyQty(10),
		1: sellQty(6),
		2: sellQty(6),
		3: sellQty(6),
	}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 3 {
		t.Fatalf("got %d trades, want 3", len(res.Trades))
	}
	if !res.Trades[2].Quantity.Equal(d("4")) {
		t.Errorf("second sell quantity = %s, want 4", res.Trades[2].Quantity)
	}
	if n := len(res.PortfolioValues[2].Positions); n != 0 {
		t.Errorf("positions after closing sell = %d, want 0", n)
	}
	// The fourth sell has nothing to sell.
	if len(res.Rejections) != 1 || res.Rejections[0].Type != domain.SignalTypeSell {
		t.Errorf("Rejections = %+v, want one sell rejection", res.Rejections)
	}
	if res.WinRate != 1 {
		t.Errorf("WinRate = %v, want 1", res.WinRate)
	}
	if res.TotalTrades != 3 {
		t.Errorf("TotalTrades = %d, want 3", res.TotalTrades)
	}
}

func TestRunInsufficientFundsContinues(t *testing.T) {
	e := newEngine(t, seriesBars(100, 100, 100))
	res, err := e.Run(context.Background(), &scripted{t: t, plan: map[int]domain.Signal{
		0: buyQty(100000),
		1: buyQty(1),
	}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rejections) != 1 || res.Rejections[0].Type != domain.SignalTypeBuy {
		t.Errorf("Rejections = %+v, want one buy rejection", res.Rejections)
	}
	if len(res.Trades) != 1 {
		t.Errorf("got %d trades, want 1", len(res.Trades))
	}
	if len(res.PortfolioValues) != 3 {
		t.Errorf("got %d snapshots, want 3", len(res.PortfolioValues))
	}
}

func TestRunDefaultSizing(t *testing.T) {
	e := newEngine(t, seriesBars(100))
	res, err := e.Run(context.Background(), &scripted{t: t, plan: map[int]domain.Signal{
		0: {Type: domain.SignalTypeBuy},
	}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// floor(100000 * 0.1 / 100) = 100 shares.
	if len(res.Trades) != 1 || !res.Trades[0].Quantity.Equal(d("100")) {
		t.Errorf("Trades = %+v, want 100 shares", res.Trades)
	}
}

func TestRunCustomSizer(t *testing.T) {
	sizer := SizerFunc(func(domain.Signal, Portfolio) decimal.Decimal { return decimal.NewFromInt(5) })
	e := newEngine(t, seriesBars(100), WithSizer(sizer))
	res, err := e.Run(context.Background(), &scripted{t: t, plan: map[int]domain.Signal{
		0: {Type: domain.SignalTypeBuy},
	}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 || !res.Trades[0].Quantity.Equal(d("5")) {
		t.Errorf("Trades = %+v, want 5 shares", res.Trades)
	}
}

func TestRunIgnoresNonActionable(t *testing.T) {
	e := newEngine(t, seriesBars(100, 101))
	res, err := e.Run(context.Background(), &scripted{t: t, plan: map[int]domain.Signal{
		0: {Type: domain.SignalTypeHold, Quantity: decimal.NewFromInt(1)},
		1: {Type: domain.SignalTypeNoSignal, Quantity: decimal.NewFromInt(1)},
	}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 0 || len(res.Rejections) != 0 {
		t.Errorf("non-actionable signals produced %d trades, %d rejections", len(res.Trades), len(res.Rejections))
	}
	if !res.FinalCapital.Equal(res.InitialCapital) || res.TotalReturn != 0 {
		t.Errorf("idle run changed capital: %s", res.FinalCapital)
	}
}

func runBuiltin(t *testing.T, name string, bars []domain.Bar) *domain.BacktestResult {
	t.Helper()
	provider := marketdata.NewMemoryProvider(bars...)
	strat, err := builtins.NewRegistry().New(strategy.Config{
		Name:       name,
		Symbol:     "AAPL",
		Parameters: strategy.Params{"short_period": 3, "long_period": 8},
	}, strategy.Deps{Provider: provider})
	if err != nil {
		t.Fatalf("New(%s): %v", name, err)
	}
	e, err := NewEngine(DefaultConfig(start, bars[len(bars)-1].Timestamp), provider)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	res, err := e.Run(context.Background(), strat)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func TestConservationAtEveryStep(t *testing.T) {
	bars := seriesBars(wave(150)...)
	res := runBuiltin(t, "sma_crossover", bars)
	if len(res.Trades) == 0 {
		t.Fatal("wave series produced no trades")
	}
	for i, snap := range res.PortfolioValues {
		sum := snap.Cash
		for sym, pos := range snap.Positions {
			if !pos.Quantity.IsPositive() {
				t.Errorf("step %d: %s quantity %s is not positive", i, sym, pos.Quantity)
			}
			if want := pos.Quantity.Mul(bars[i].Close); !pos.MarketValue.Equal(want) {
				t.Errorf("step %d: market value %s, want %s", i, pos.MarketValue, want)
			}
			sum = sum.Add(pos.MarketValue)
		}
		if !sum.Equal(snap.TotalValue) {
			t.Errorf("step %d: cash + positions = %s, total = %s", i, sum, snap.TotalValue)
		}
	}
}

func TestDrawdownCoversEveryPrefix(t *testing.T) {
	res := runBuiltin(t, "sma_crossover", seriesBars(wave(150)...))
	initial := res.InitialCapital.InexactFloat64()
	values := make([]float64, len(res.PortfolioValues))
	for i, s := range res.PortfolioValues {
		values[i] = s.TotalValue.InexactFloat64()
	}
	if full := maxDrawdown(initial, values); full != res.MaxDrawdown {
		t.Fatalf("MaxDrawdown = %v, recomputed %v", res.MaxDrawdown, full)
	}
	for k := 1; k <= len(values); k++ {
		if p := maxDrawdown(initial, values[:k]); p > res.MaxDrawdown {
			t.Errorf("prefix %d drawdown %v exceeds full %v", k, p, res.MaxDrawdown)
		}
	}
}

func TestRunIsDeterministic(t *testing.T) {
	bars := seriesBars(wave(150)...)
	for _, name := range []string{"sma_crossover", "rsi", "macd", "multi_indicator"} {
		a, _ := json.Marshal(runBuiltin(t, name, bars))
		b, _ := json.Marshal(runBuiltin(t, name, bars))
		if string(a) != string(b) {
			t.Errorf("%s: repeated runs differ", name)
		}
	}
}

func TestRunCancelledKeepsPartialHistory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	strat := &cancelAfter{scripted: scripted{t: t}, n: 3, cancel: cancel}
	e := newEngine(t, seriesBars(100, 101, 102, 103, 104))

	if _, err := e.Run(ctx, strat); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if got := len(e.History()); got != 3 {
		t.Errorf("History has %d snapshots, want 3", got)
	}
	if e.State() != StateFailed {
		t.Errorf("State = %s, want failed", e.State())
	}
}

type cancelAfter struct {
	scripted
	n      int
	cancel context.CancelFunc
}

func (c *cancelAfter) GenerateSignals(ctx context.Context, bars []domain.Bar) ([]domain.Signal, error) {
	if len(bars) == c.n {
		c.cancel()
	}
	return c.scripted.GenerateSignals(ctx, bars)
}

func TestConfigValidate(t *testing.T) {
	bad := []Config{
		{},
		{StartDate: start, EndDate: start.AddDate(0, 0, -1), InitialCapital: d("1"), MaxPositionSize: 0.1},
		{StartDate: start, EndDate: start, InitialCapital: d("-5"), MaxPositionSize: 0.1},
		{StartDate: start, EndDate: start, InitialCapital: d("1"), MaxPositionSize: 1.5},
		{StartDate: start, EndDate: start, InitialCapital: d("1"), MaxPositionSize: 0.1, Slippage: d("1")},
	}
	for i, c := range bad {
		if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("config %d: Validate() = %v, want ErrInvalidConfig", i, err)
		}
	}
	if err := DefaultConfig(start, start).Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}
