package risk

import (
	"github.com/shopspring/decimal"

	"algotrader/internal/backtest"
	"algotrader/internal/domain"
)

// Sizer adapts the manager to the backtest engine. Buys are sized by
// PositionSize with no volatility input and rounded down to whole shares;
// sells close the whole holding.
func (m *Manager) Sizer() backtest.Sizer {
	return backtest.SizerFunc(func(sig domain.Signal, p backtest.Portfolio) decimal.Decimal {
		if sig.Type == domain.SignalTypeSell {
			pos, ok := p.Position(sig.Symbol)
			if !ok {
				return decimal.Zero
			}
			return pos.Quantity
		}
		return m.PositionSize(p, sig, 0).Floor()
	})
}
