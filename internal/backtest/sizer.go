package backtest

import (
	"github.com/shopspring/decimal"

	"algotrader/internal/domain"
)

// Portfolio is the read-only view of the simulated portfolio handed to a
// Sizer.
type Portfolio interface {
	Cash() decimal.Decimal
	TotalValue() decimal.Decimal
	Position(symbol string) (domain.Position, bool)
	Positions() []domain.Position
}

// Sizer decides how many shares an actionable signal trades. A non-positive
// result skips the signal.
type Sizer interface {
	Size(sig domain.Signal, p Portfolio) decimal.Decimal
}

// SizerFunc adapts a function to the Sizer interface.
type SizerFunc func(sig domain.Signal, p Portfolio) decimal.Decimal

// Size calls f.
func (f SizerFunc) Size(sig domain.Signal, p Portfolio) decimal.Decimal { return f(sig, p) }

// FixedFraction sizes every order at fraction of total portfolio value,
// rounded down to whole shares.
func FixedFraction(fraction float64) Sizer {
	frac := decimal.NewFromFloat(fraction)
	return SizerFunc(func(sig domain.Signal, p Portfolio) decimal.Decimal {
		if !sig.Price.IsPositive() {
			return decimal.Zero
		}
		return p.TotalValue().Mul(frac).Div(sig.Price).Floor()
	})
}
