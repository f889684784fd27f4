package risk

import (
	"sort"

	"github.com/shopspring/decimal"

	"algotrader/internal/domain"
)

// CashKey is the allocation key for uninvested cash.
const CashKey = "CASH"

// DefaultRebalanceThreshold is the allocation drift that triggers a trade.
const DefaultRebalanceThreshold = 0.01

// RebalanceTrade is one order proposed by the Rebalancer.
type RebalanceTrade struct {
	Symbol   string           `json:"symbol"`
	Side     domain.OrderSide `json:"side"`
	Quantity decimal.Decimal  `json:"quantity"`
}

// Rebalancer proposes trades that move held positions toward target
// weights. Symbols that are not held are never bought.
type Rebalancer struct {
	Targets   map[string]float64
	Threshold float64
}

// NewRebalancer creates a Rebalancer with the default threshold.
func NewRebalancer(targets map[string]float64) *Rebalancer {
	return &Rebalancer{Targets: targets, Threshold: DefaultRebalanceThreshold}
}

// Allocations returns the current weight of each position and of cash.
func Allocations(p Portfolio) map[string]float64 {
	out := make(map[string]float64)
	total := p.TotalValue()
	if !total.IsPositive() {
		return out
	}
	for _, pos := range p.Positions() {
		out[pos.Symbol] = pos.MarketValue.Div(total).InexactFloat64()
	}
	out[CashKey] = p.Cash().Div(total).InexactFloat64()
	return out
}

// Trades returns the proposed trades ordered by symbol.
func (r *Rebalancer) Trades(p Portfolio) []RebalanceTrade {
	total := p.TotalValue()
	if !total.IsPositive() {
		return nil
	}
	current := Allocations(p)
	held := make(map[string]domain.Position)
	for _, pos := range p.Positions() {
		held[pos.Symbol] = pos
	}

	symbols := make([]string, 0, len(r.Targets))
	for sym := range r.Targets {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var trades []RebalanceTrade
	for _, sym := range symbols {
		diff := r.Targets[sym] - current[sym]
		if diff <= r.Threshold && diff >= -r.Threshold {
			continue
		}
		pos, ok := held[sym]
		if !ok || !pos.CurrentPrice.IsPositive() {
			continue
		}
		value := total.Mul(decimal.NewFromFloat(diff))
		qty := value.Abs().Div(pos.CurrentPrice)
		side := domain.OrderSideBuy
		if diff < 0 {
			side = domain.OrderSideSell
			qty = decimal.Min(qty, pos.Quantity)
		}
		trades = append(trades, RebalanceTrade{Symbol: sym, Side: side, Quantity: qty})
	}
	return trades
}
