package builtins

import (
	"context"
	"fmt"

	"algotrader/internal/domain"
	"algotrader/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. It generates
// a buy signal when the short-period SMA crosses above the long-period SMA,
// and a sell signal when it crosses below.
type SMACross struct {
	strategy.Base
	shortPeriod int
	longPeriod  int
}

// NewSMACross builds an SMACross from cfg. Parameters: short_period
// (default 5), long_period (default 20).
func NewSMACross(cfg strategy.Config, deps strategy.Deps) (strategy.Strategy, error) {
	short := cfg.Parameters.Int("short_period", 5)
	long := cfg.Parameters.Int("long_period", 20)
	if short >= long {
		return nil, fmt.Errorf("sma_crossover: short_period %d must be less than long_period %d", short, long)
	}
	return &SMACross{
		Base:        strategy.NewBase(strategy.KindSMACrossover, cfg, deps, twoYears),
		shortPeriod: short,
		longPeriod:  long,
	}, nil
}

// RequiredIndicators returns ["SMA"].
func (s *SMACross) RequiredIndicators() []string { return []string{"SMA"} }

// GenerateSignals detects a crossover between the last two SMA samples.
func (s *SMACross) GenerateSignals(_ context.Context, bars []domain.Bar) ([]domain.Signal, error) {
	if len(bars) == 0 {
		return nil, nil
	}
	calc := s.Evaluate(bars)
	shortSMA := calc.SMA(s.shortPeriod)
	longSMA := calc.SMA(s.longPeriod)
	if shortSMA.Len() < 2 || longSMA.Len() < 2 {
		return nil, nil
	}

	curShort, _ := shortSMA.Latest()
	curLong, _ := longSMA.Latest()
	prevShort, _ := shortSMA.Back(1)
	prevLong, _ := longSMA.Back(1)

	up, down := crossed(prevShort, prevLong, curShort, curLong)
	var typ domain.SignalType
	switch {
	case up:
		typ = domain.SignalTypeBuy
	case down:
		typ = domain.SignalTypeSell
	default:
		return nil, nil
	}

	return []domain.Signal{s.NewSignal(bars[len(bars)-1], typ, 0.7, map[string]any{
		"short_sma": curShort,
		"long_sma":  curLong,
		"strategy":  "SMA Crossover",
	})}, nil
}
