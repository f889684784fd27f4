// Package backtest replays historical bars through a strategy against a
// simulated portfolio and reports performance statistics.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"algotrader/internal/broker"
	"algotrader/internal/domain"
	"algotrader/internal/marketdata"
	"algotrader/internal/strategy"
)

var (
	// ErrDataUnavailable is returned when the provider has no bars for the
	// requested symbol and range. No result is produced.
	ErrDataUnavailable = errors.New("backtest: no historical data available")

	// ErrInvalidState is returned when Run is called on an engine that has
	// already run.
	ErrInvalidState = errors.New("backtest: invalid engine state")
)

// State is the lifecycle of an Engine.
type State int

const (
	StateUninitialized State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithSizer replaces the default fixed-fraction position sizing.
func WithSizer(s Sizer) Option {
	return func(e *Engine) {
		if s != nil {
			e.sizer = s
		}
	}
}

// Engine runs a single backtest. It owns its portfolio exclusively and must
// not be reused; create one Engine per run.
type Engine struct {
	cfg      Config
	provider marketdata.Provider
	logger   *slog.Logger
	sizer    Sizer

	mu         sync.Mutex
	state      State
	sim        *broker.Simulator
	history    []domain.PortfolioSnapshot
	rejections []domain.Rejection
}

// NewEngine validates cfg and creates an Engine reading bars from provider.
func NewEngine(cfg Config, provider marketdata.Provider, opts ...Option) (*Engine, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, errors.New("backtest: nil data provider")
	}
	e := &Engine{
		cfg:      cfg,
		provider: provider,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sizer == nil {
		e.sizer = FixedFraction(cfg.MaxPositionSize)
	}
	e.sim = broker.NewSimulator(cfg.InitialCapital, cfg.brokerConfig(), e.logger)
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// History returns the portfolio snapshots recorded so far. After a cancelled
// run it holds every fully processed step.
func (e *Engine) History() []domain.PortfolioSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.PortfolioSnapshot, len(e.history))
	copy(out, e.history)
	return out
}

// Trades returns the trade log recorded so far.
func (e *Engine) Trades() []domain.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sim.Trades()
}

// Rejections returns the signals that could not be executed.
func (e *Engine) Rejections() []domain.Rejection {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Rejection, len(e.rejections))
	copy(out, e.rejections)
	return out
}

// Run loads bars for the strategy's symbol, initializes the strategy with
// warm-up history before the start date and processes every bar in order:
// mark to market, generate signals, execute, record a snapshot.
func (e *Engine) Run(ctx context.Context, strat strategy.Strategy) (*domain.BacktestResult, error) {
	e.mu.Lock()
	if e.state != StateUninitialized {
		st := e.state
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: run called in state %s", ErrInvalidState, st)
	}
	e.state = StateRunning
	e.mu.Unlock()

	result, err := e.run(ctx, strat)
	if err != nil {
		e.setState(StateFailed)
		e.logger.Error("backtest failed", "strategy", strat.Name(), "symbol", strat.Symbol(), "error", err)
		return nil, err
	}
	e.setState(StateCompleted)
	return result, nil
}

func (e *Engine) run(ctx context.Context, strat strategy.Strategy) (*domain.BacktestResult, error) {
	symbol := strings.ToUpper(strat.Symbol())
	e.logger.Info("backtest started",
		"strategy", strat.Name(),
		"symbol", symbol,
		"start", e.cfg.StartDate.Format(time.DateOnly),
		"end", e.cfg.EndDate.Format(time.DateOnly),
	)

	bars, err := e.provider.HistoricalBars(ctx, symbol, e.cfg.StartDate, e.cfg.EndDate)
	if err != nil {
		return nil, fmt.Errorf("loading bars for %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s between %s and %s", ErrDataUnavailable, symbol,
			e.cfg.StartDate.Format(time.DateOnly), e.cfg.EndDate.Format(time.DateOnly))
	}
	bars = append([]domain.Bar(nil), bars...)
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	if err := strat.Init(ctx, e.cfg.StartDate); err != nil {
		return nil, fmt.Errorf("initializing %s: %w", strat.Name(), err)
	}

	for i, bar := range bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.step(ctx, strat, symbol, bars[:i+1], bar)
	}

	return e.result(strat.Name(), symbol), nil
}

func (e *Engine) step(ctx context.Context, strat strategy.Strategy, symbol string, prefix []domain.Bar, bar domain.Bar) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sim.MarkToMarket(symbol, bar.Close)

	signals, err := strat.GenerateSignals(ctx, prefix)
	if err != nil {
		e.logger.Warn("signal generation failed", "strategy", strat.Name(), "timestamp", bar.Timestamp, "error", err)
		signals = nil
	}
	for _, sig := range signals {
		e.execute(sig, symbol, bar.Timestamp)
	}

	// Fills change cash and holdings; revalue so the snapshot satisfies
	// total = cash + positions at the bar close.
	e.sim.MarkToMarket(symbol, bar.Close)
	e.history = append(e.history, e.sim.Snapshot(bar.Timestamp))
}

func (e *Engine) execute(sig domain.Signal, symbol string, ts time.Time) {
	if !sig.Type.Actionable() {
		return
	}
	if sig.Symbol == "" {
		sig.Symbol = symbol
	}

	qty := sig.Quantity
	if !qty.IsPositive() {
		qty = e.sizer.Size(sig, e.sim)
	}
	if !qty.IsPositive() {
		e.logger.Debug("signal skipped: zero quantity", "symbol", sig.Symbol, "type", sig.Type)
		return
	}

	side := domain.OrderSideBuy
	if sig.Type == domain.SignalTypeSell {
		side = domain.OrderSideSell
	}
	_, err := e.sim.Execute(broker.Order{
		Symbol:    sig.Symbol,
		Side:      side,
		Quantity:  qty,
		Price:     sig.Price,
		Timestamp: ts,
	})
	if err != nil {
		e.rejections = append(e.rejections, domain.Rejection{
			Timestamp: ts,
			Symbol:    strings.ToUpper(sig.Symbol),
			Type:      sig.Type,
			Reason:    err.Error(),
		})
	}
}

func (e *Engine) result(name, symbol string) *domain.BacktestResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	initial := e.cfg.InitialCapital.InexactFloat64()
	values := make([]float64, len(e.history))
	for i, s := range e.history {
		values[i] = s.TotalValue.InexactFloat64()
	}

	final := e.cfg.InitialCapital
	if n := len(e.history); n > 0 {
		final = e.history[n-1].TotalValue
	}
	tr := totalReturn(initial, final.InexactFloat64())
	trades := e.sim.Trades()

	r := &domain.BacktestResult{
		StrategyName:     name,
		Symbol:           symbol,
		StartDate:        e.cfg.StartDate,
		EndDate:          e.cfg.EndDate,
		InitialCapital:   e.cfg.InitialCapital,
		FinalCapital:     final,
		TotalReturn:      tr,
		AnnualizedReturn: annualizedReturn(tr, e.cfg.StartDate, e.cfg.EndDate),
		MaxDrawdown:      maxDrawdown(initial, values),
		SharpeRatio:      sharpeRatio(dailyReturns(initial, values)),
		TotalTrades:      len(trades),
		WinRate:          winRate(trades),
		Trades:           trades,
		PortfolioValues:  append([]domain.PortfolioSnapshot(nil), e.history...),
		Rejections:       append([]domain.Rejection(nil), e.rejections...),
	}
	e.logger.Info("backtest completed",
		"strategy", name,
		"symbol", symbol,
		"bars", len(e.history),
		"trades", r.TotalTrades,
		"rejections", len(r.Rejections),
		"final_capital", final.StringFixed(2),
		"total_return", tr,
	)
	return r
}
