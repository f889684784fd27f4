package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"algotrader/internal/domain"
	"algotrader/internal/indicator"
	"algotrader/internal/marketdata"
)

// LookbackParam overrides the warm-up window, in calendar days.
const LookbackParam = "lookback_days"

// Base carries the state shared by the built-in strategies: configuration,
// warm-up bars and the calculator of the latest evaluation. Built-ins embed
// it and implement RequiredIndicators and GenerateSignals on top.
type Base struct {
	cfg      Config
	kind     Kind
	provider marketdata.Provider
	logger   *slog.Logger
	lookback time.Duration

	seed []domain.Bar
	calc *indicator.Calculator
}

// NewBase creates a Base. defaultLookback applies unless the configuration
// sets lookback_days.
func NewBase(kind Kind, cfg Config, deps Deps, defaultLookback time.Duration) Base {
	if cfg.Parameters == nil {
		cfg.Parameters = Params{}
	}
	lookback := defaultLookback
	if days := cfg.Parameters.Int(LookbackParam, 0); days > 0 {
		lookback = time.Duration(days) * 24 * time.Hour
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return Base{
		cfg:      cfg,
		kind:     kind,
		provider: deps.Provider,
		logger:   logger,
		lookback: lookback,
		calc:     indicator.NewCalculator(nil),
	}
}

// Name returns the configured strategy name.
func (b *Base) Name() string { return b.cfg.Name }

// Kind returns the strategy variant.
func (b *Base) Kind() Kind { return b.kind }

// Symbol returns the traded symbol.
func (b *Base) Symbol() string { return b.cfg.Symbol }

// Params returns the strategy parameters.
func (b *Base) Params() Params { return b.cfg.Parameters }

// Lookback returns the warm-up window.
func (b *Base) Lookback() time.Duration { return b.lookback }

// Calculator returns the most recent calculator snapshot.
func (b *Base) Calculator() *indicator.Calculator { return b.calc }

// Init pulls bars in [asOf-lookback, asOf) from the provider. Only bars
// strictly before asOf are kept so evaluation never sees the run window early.
func (b *Base) Init(ctx context.Context, asOf time.Time) error {
	b.seed = nil
	if b.provider != nil && b.lookback > 0 {
		bars, err := b.provider.HistoricalBars(ctx, b.cfg.Symbol, asOf.Add(-b.lookback), asOf)
		if err != nil {
			return fmt.Errorf("loading warm-up bars for %s: %w", b.cfg.Symbol, err)
		}
		for _, bar := range bars {
			if bar.Timestamp.Before(asOf) {
				b.seed = append(b.seed, bar)
			}
		}
	}
	b.calc = indicator.NewCalculator(b.seed)
	b.logger.Info("strategy initialized",
		"strategy", b.cfg.Name,
		"symbol", b.cfg.Symbol,
		"warmup_bars", len(b.seed),
	)
	return nil
}

// Evaluate builds the calculator for one step over the warm-up bars that
// precede bars[0] followed by bars, and records it as the latest snapshot.
func (b *Base) Evaluate(bars []domain.Bar) *indicator.Calculator {
	if len(bars) == 0 {
		b.calc = indicator.NewCalculator(b.seed)
		return b.calc
	}
	first := bars[0].Timestamp
	window := make([]domain.Bar, 0, len(b.seed)+len(bars))
	for _, s := range b.seed {
		if s.Timestamp.Before(first) {
			window = append(window, s)
		}
	}
	window = append(window, bars...)
	b.calc = indicator.NewCalculator(window)
	return b.calc
}

// NewSignal builds a signal priced at the bar close.
func (b *Base) NewSignal(bar domain.Bar, typ domain.SignalType, confidence float64, meta map[string]any) domain.Signal {
	symbol := b.cfg.Symbol
	if symbol == "" {
		symbol = bar.Symbol
	}
	return domain.Signal{
		Symbol:     symbol,
		Type:       typ,
		Timestamp:  bar.Timestamp,
		Price:      bar.Close,
		Confidence: confidence,
		Metadata:   meta,
	}
}
