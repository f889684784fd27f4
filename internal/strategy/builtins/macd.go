package builtins

import (
	"context"
	"fmt"

	"algotrader/internal/domain"
	"algotrader/internal/indicator"
	"algotrader/internal/strategy"
)

var _ strategy.Strategy = (*MACD)(nil)

// MACD trades crossovers of the MACD line over its signal line.
type MACD struct {
	strategy.Base
	fast, slow, signal int
}

// NewMACD builds a MACD strategy. Parameters: fast_period (12),
// slow_period (26), signal_period (9).
func NewMACD(cfg strategy.Config, deps strategy.Deps) (strategy.Strategy, error) {
	s := &MACD{
		Base:   strategy.NewBase(strategy.KindMACD, cfg, deps, oneYear),
		fast:   cfg.Parameters.Int("fast_period", indicator.DefaultMACDFast),
		slow:   cfg.Parameters.Int("slow_period", indicator.DefaultMACDSlow),
		signal: cfg.Parameters.Int("signal_period", indicator.DefaultMACDSignal),
	}
	if s.fast >= s.slow {
		return nil, fmt.Errorf("macd: fast_period %d must be less than slow_period %d", s.fast, s.slow)
	}
	return s, nil
}

// RequiredIndicators returns ["MACD"].
func (s *MACD) RequiredIndicators() []string { return []string{"MACD"} }

// GenerateSignals emits BUY when the MACD line crosses above the signal line
// and SELL on the downward cross.
func (s *MACD) GenerateSignals(_ context.Context, bars []domain.Bar) ([]domain.Signal, error) {
	if len(bars) == 0 {
		return nil, nil
	}
	m := s.Evaluate(bars).MACD(s.fast, s.slow, s.signal)
	if m.MACD.Len() < 2 || m.Signal.Len() < 2 {
		return nil, nil
	}

	curMACD, _ := m.MACD.Latest()
	curSig, _ := m.Signal.Latest()
	prevMACD, _ := m.MACD.Back(1)
	prevSig, _ := m.Signal.Back(1)

	up, down := crossed(prevMACD, prevSig, curMACD, curSig)
	var typ domain.SignalType
	switch {
	case up:
		typ = domain.SignalTypeBuy
	case down:
		typ = domain.SignalTypeSell
	default:
		return nil, nil
	}

	hist, _ := m.Histogram.Latest()
	return []domain.Signal{s.NewSignal(bars[len(bars)-1], typ, 0.8, map[string]any{
		"macd":      curMACD,
		"signal":    curSig,
		"histogram": hist,
		"strategy":  "MACD Crossover",
	})}, nil
}
