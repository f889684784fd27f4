package builtins

import (
	"context"
	"fmt"
	"math"

	"algotrader/internal/domain"
	"algotrader/internal/indicator"
	"algotrader/internal/strategy"
)

var _ strategy.Strategy = (*RSI)(nil)

// RSI buys when the relative strength index is at or below the oversold
// level and sells when it is at or above the overbought level.
type RSI struct {
	strategy.Base
	period     int
	oversold   float64
	overbought float64
}

// NewRSI builds an RSI strategy. Parameters: rsi_period (14), oversold (30),
// overbought (70).
func NewRSI(cfg strategy.Config, deps strategy.Deps) (strategy.Strategy, error) {
	s := &RSI{
		Base:       strategy.NewBase(strategy.KindRSI, cfg, deps, oneYear),
		period:     cfg.Parameters.Int("rsi_period", indicator.DefaultRSIPeriod),
		oversold:   cfg.Parameters.Float("oversold", 30),
		overbought: cfg.Parameters.Float("overbought", 70),
	}
	if s.oversold >= s.overbought {
		return nil, fmt.Errorf("rsi: oversold %.2f must be below overbought %.2f", s.oversold, s.overbought)
	}
	return s, nil
}

// RequiredIndicators returns ["RSI"].
func (s *RSI) RequiredIndicators() []string { return []string{"RSI"} }

// GenerateSignals compares the latest RSI against the thresholds. Confidence
// grows with the distance from the neutral 50 level.
func (s *RSI) GenerateSignals(_ context.Context, bars []domain.Bar) ([]domain.Signal, error) {
	if len(bars) == 0 {
		return nil, nil
	}
	rsi, ok := s.Evaluate(bars).RSI(s.period).Latest()
	if !ok {
		return nil, nil
	}

	var typ domain.SignalType
	switch {
	case rsi <= s.oversold:
		typ = domain.SignalTypeBuy
	case rsi >= s.overbought:
		typ = domain.SignalTypeSell
	default:
		return nil, nil
	}

	confidence := math.Min(math.Abs(50-rsi)/50, 1)
	return []domain.Signal{s.NewSignal(bars[len(bars)-1], typ, confidence, map[string]any{
		"rsi":        rsi,
		"rsi_period": s.period,
		"oversold":   s.oversold,
		"overbought": s.overbought,
		"strategy":   "RSI",
	})}, nil
}
