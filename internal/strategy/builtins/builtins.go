// Package builtins provides the strategy variants that ship with algotrader:
// moving-average crossover, RSI threshold, MACD crossover and multi-indicator
// voting.
package builtins

import (
	"time"

	"algotrader/internal/strategy"
)

const (
	oneYear  = 365 * 24 * time.Hour
	twoYears = 2 * oneYear
)

// Register adds every built-in strategy to r.
func Register(r *strategy.Registry) {
	r.Register(strategy.KindSMACrossover, NewSMACross)
	r.Register(strategy.KindRSI, NewRSI)
	r.Register(strategy.KindMACD, NewMACD)
	r.Register(strategy.KindMultiIndicator, NewMultiIndicator)
}

// NewRegistry returns a registry populated with the built-in strategies.
func NewRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}

// crossed classifies the transition of a over b between the previous and the
// current sample.
func crossed(prevA, prevB, curA, curB float64) (up, down bool) {
	up = prevA <= prevB && curA > curB
	down = prevA >= prevB && curA < curB
	return up, down
}
