package builtins

import (
	"context"

	"algotrader/internal/domain"
	"algotrader/internal/indicator"
	"algotrader/internal/strategy"
)

var _ strategy.Strategy = (*MultiIndicator)(nil)

const (
	multiSMAPeriod     = 20
	multiRSIOversold   = 30
	multiRSIOverbought = 70
	multiTrendWeight   = 0.5
	multiVoteQuorum    = 0.6
	multiTotalWeights  = 3 + multiTrendWeight
)

// MultiIndicator combines four weighted votes: RSI thresholds, MACD versus
// its signal line, price against the Bollinger bands and price against
// SMA(20). The trend vote carries half weight.
type MultiIndicator struct {
	strategy.Base
}

// NewMultiIndicator builds a MultiIndicator strategy. Only lookback_days is
// configurable.
func NewMultiIndicator(cfg strategy.Config, deps strategy.Deps) (strategy.Strategy, error) {
	return &MultiIndicator{Base: strategy.NewBase(strategy.KindMultiIndicator, cfg, deps, twoYears)}, nil
}

// RequiredIndicators returns ["SMA", "RSI", "MACD", "BollingerBands"].
func (s *MultiIndicator) RequiredIndicators() []string {
	return []string{"SMA", "RSI", "MACD", "BollingerBands"}
}

// GenerateSignals tallies the votes and emits a signal when either side
// reaches the 60% quorum. Every indicator must have a value.
func (s *MultiIndicator) GenerateSignals(_ context.Context, bars []domain.Bar) ([]domain.Signal, error) {
	if len(bars) == 0 {
		return nil, nil
	}
	calc := s.Evaluate(bars)

	sma, okSMA := calc.SMA(multiSMAPeriod).Latest()
	rsi, okRSI := calc.RSI(indicator.DefaultRSIPeriod).Latest()
	m := calc.MACD(indicator.DefaultMACDFast, indicator.DefaultMACDSlow, indicator.DefaultMACDSignal)
	macd, okMACD := m.MACD.Latest()
	sig, okSig := m.Signal.Latest()
	bb := calc.BollingerBands(indicator.DefaultBollingerPeriod, indicator.DefaultBollingerK)
	upper, okUpper := bb.Upper.Latest()
	lower, okLower := bb.Lower.Latest()
	if !(okSMA && okRSI && okMACD && okSig && okUpper && okLower) {
		return nil, nil
	}

	bar := bars[len(bars)-1]
	price := bar.Close.InexactFloat64()
	buy, sell := vote(price, rsi, macd, sig, upper, lower, sma)
	typ, confidence := decide(buy, sell)
	if !typ.Actionable() {
		return nil, nil
	}

	return []domain.Signal{s.NewSignal(bar, typ, confidence, map[string]any{
		"rsi":          rsi,
		"macd":         macd,
		"signal_line":  sig,
		"sma_20":       sma,
		"bb_upper":     upper,
		"bb_lower":     lower,
		"buy_signals":  buy,
		"sell_signals": sell,
		"strategy":     "Multi-Indicator",
	})}, nil
}

// vote returns the weighted buy and sell tallies for one bar.
func vote(price, rsi, macd, signal, upper, lower, sma float64) (buy, sell float64) {
	switch {
	case rsi <= multiRSIOversold:
		buy++
	case rsi >= multiRSIOverbought:
		sell++
	}
	if macd > signal {
		buy++
	} else {
		sell++
	}
	switch {
	case price <= lower:
		buy++
	case price >= upper:
		sell++
	}
	if price > sma {
		buy += multiTrendWeight
	} else {
		sell += multiTrendWeight
	}
	return buy, sell
}

// decide turns tallies into a signal type and its confidence.
func decide(buy, sell float64) (domain.SignalType, float64) {
	buyRatio := buy / multiTotalWeights
	sellRatio := sell / multiTotalWeights
	switch {
	case buyRatio >= multiVoteQuorum:
		return domain.SignalTypeBuy, buyRatio
	case sellRatio >= multiVoteQuorum:
		return domain.SignalTypeSell, sellRatio
	default:
		return domain.SignalTypeNoSignal, 0
	}
}
