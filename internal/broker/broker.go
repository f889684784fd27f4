// Package broker simulates order execution against an in-memory portfolio
// for backtesting. Fills apply slippage and commission; positions are long
// only.
package broker

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"algotrader/internal/domain"
)

var (
	// ErrInsufficientFunds is returned when a buy costs more than the
	// available cash.
	ErrInsufficientFunds = errors.New("broker: insufficient funds")

	// ErrNoOpenPosition is returned when a sell targets a symbol with no
	// holding.
	ErrNoOpenPosition = errors.New("broker: no open position")

	// ErrInvalidQuantity is returned for orders with a non-positive quantity
	// or price.
	ErrInvalidQuantity = errors.New("broker: invalid order quantity")
)

// Default execution costs.
var (
	DefaultCommission = decimal.RequireFromString("0.001")
	DefaultSlippage   = decimal.RequireFromString("0.0005")
)

// Config holds the execution cost model. Rates are fractions: 0.001 is 0.1%.
type Config struct {
	Commission decimal.Decimal
	Slippage   decimal.Decimal
}

// DefaultConfig returns the default commission and slippage.
func DefaultConfig() Config {
	return Config{Commission: DefaultCommission, Slippage: DefaultSlippage}
}

// Order is a request to trade Quantity shares at the reference Price. The
// fill price is derived from Price by applying slippage.
type Order struct {
	Symbol    string
	Side      domain.OrderSide
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Timestamp time.Time
}
