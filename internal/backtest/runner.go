package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"algotrader/internal/domain"
	"algotrader/internal/marketdata"
	"algotrader/internal/store"
	"algotrader/internal/strategy"
)

// Request names one backtest: a strategy over a symbol and date range.
// Zero InitialCapital uses the runner default.
type Request struct {
	Strategy       string
	Symbol         string
	Start          time.Time
	End            time.Time
	InitialCapital decimal.Decimal
	Params         strategy.Params
}

// Runner builds strategies by name and runs each on a fresh Engine.
type Runner struct {
	provider marketdata.Provider
	registry *strategy.Registry
	defaults Config
	logger   *slog.Logger
	sizers   func() Sizer
	results  store.ResultStore
	parallel int
	newID    func() string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the logger passed to engines and strategies.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSizerFactory sets a constructor for the position sizer. It is called
// once per run so stateful sizers are never shared between engines.
func WithSizerFactory(f func() Sizer) RunnerOption {
	return func(r *Runner) { r.sizers = f }
}

// WithResultStore persists every completed result.
func WithResultStore(s store.ResultStore) RunnerOption {
	return func(r *Runner) { r.results = s }
}

// WithParallelism bounds concurrent runs in Compare.
func WithParallelism(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.parallel = n
		}
	}
}

// NewRunner creates a Runner. defaults supplies capital, costs and sizing;
// its dates are ignored.
func NewRunner(provider marketdata.Provider, registry *strategy.Registry, defaults Config, opts ...RunnerOption) *Runner {
	r := &Runner{
		provider: provider,
		registry: registry,
		defaults: defaults.WithDefaults(),
		logger:   slog.Default(),
		parallel: 4,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Strategies lists the registered strategy names.
func (r *Runner) Strategies() []string { return r.registry.List() }

// RunStrategy runs one named strategy.
func (r *Runner) RunStrategy(ctx context.Context, name, symbol string, start, end time.Time, capital decimal.Decimal, params strategy.Params) (*domain.BacktestResult, error) {
	return r.Run(ctx, Request{
		Strategy:       name,
		Symbol:         symbol,
		Start:          start,
		End:            end,
		InitialCapital: capital,
		Params:         params,
	})
}

// Run executes req on a new Engine and stores the result when a ResultStore
// is configured. The result ID is a new UUID.
func (r *Runner) Run(ctx context.Context, req Request) (*domain.BacktestResult, error) {
	strat, err := r.registry.New(strategy.Config{
		Name:       req.Strategy,
		Symbol:     strings.ToUpper(req.Symbol),
		Parameters: req.Params.Clone(),
	}, strategy.Deps{Provider: r.provider, Logger: r.logger})
	if err != nil {
		return nil, err
	}

	cfg := r.defaults
	cfg.StartDate, cfg.EndDate = req.Start, req.End
	if req.InitialCapital.IsPositive() {
		cfg.InitialCapital = req.InitialCapital
	}

	opts := []Option{WithLogger(r.logger)}
	if r.sizers != nil {
		opts = append(opts, WithSizer(r.sizers()))
	}
	eng, err := NewEngine(cfg, r.provider, opts...)
	if err != nil {
		return nil, err
	}

	result, err := eng.Run(ctx, strat)
	if err != nil {
		return nil, err
	}
	result.ID = r.newID()

	if r.results != nil {
		if err := r.results.SaveResult(ctx, result); err != nil {
			return nil, fmt.Errorf("saving result %s: %w", result.ID, err)
		}
	}
	return result, nil
}

// Compare runs every named strategy over the same request in parallel, each
// on its own engine. Unknown names fail before any run starts; a strategy
// whose run fails is logged and left out of the map.
func (r *Runner) Compare(ctx context.Context, names []string, req Request) (map[string]*domain.BacktestResult, error) {
	for _, name := range names {
		if _, err := strategy.ParseKind(name); err != nil {
			return nil, err
		}
		if !r.registry.Has(name) {
			return nil, fmt.Errorf("%w: %q is not registered", strategy.ErrUnknownStrategy, name)
		}
	}

	results := make([]*domain.BacktestResult, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)

	for i, name := range names {
		g.Go(func() error {
			one := req
			one.Strategy = name
			res, err := r.Run(gctx, one)
			if err != nil {
				r.logger.Error("comparison run failed", "strategy", name, "symbol", req.Symbol, "error", err)
				return nil
			}
			r.logger.Info("comparison run completed", "strategy", name, "total_return", res.TotalReturn)
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]*domain.BacktestResult, len(names))
	for i, name := range names {
		if results[i] != nil {
			out[name] = results[i]
		}
	}
	return out, nil
}
