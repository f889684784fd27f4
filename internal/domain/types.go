// Package domain defines the value types shared by the indicator library,
// strategies, the broker simulator and the backtest engine.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is a single OHLCV observation for one symbol. Bars are immutable once
// produced; a series is ordered by strictly increasing Timestamp.
type Bar struct {
	Symbol    string          `json:"symbol"`
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
}

// SignalType is the decision emitted by a strategy for one evaluation step.
type SignalType string

const (
	SignalTypeBuy      SignalType = "BUY"
	SignalTypeSell     SignalType = "SELL"
	SignalTypeHold     SignalType = "HOLD"
	SignalTypeNoSignal SignalType = "NO_SIGNAL"
)

// Actionable reports whether the signal type results in an order.
func (t SignalType) Actionable() bool {
	return t == SignalTypeBuy || t == SignalTypeSell
}

// Signal is a trading decision produced by a strategy. Quantity is optional;
// when zero the engine sizes the order itself.
type Signal struct {
	Symbol     string          `json:"symbol"`
	Type       SignalType      `json:"signal_type"`
	Timestamp  time.Time       `json:"timestamp"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity,omitempty"`
	Confidence float64         `json:"confidence"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}

// OrderSide is the direction of a fill.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Position is an open long holding. EntryPrice is the volume-weighted average
// cost of all fills that built the position.
type Position struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	EntryDate     time.Time       `json:"entry_date"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
}

// Trade is an executed fill. PnL is set only on closing sells.
type Trade struct {
	Symbol     string           `json:"symbol"`
	Side       OrderSide        `json:"side"`
	Quantity   decimal.Decimal  `json:"quantity"`
	Price      decimal.Decimal  `json:"price"`
	Timestamp  time.Time        `json:"timestamp"`
	Commission decimal.Decimal  `json:"commission"`
	PnL        *decimal.Decimal `json:"pnl,omitempty"`
}

// PositionSnapshot is the per-position part of a PortfolioSnapshot.
type PositionSnapshot struct {
	Quantity      decimal.Decimal `json:"quantity"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// PortfolioSnapshot records the portfolio state at the close of one step.
type PortfolioSnapshot struct {
	Timestamp  time.Time                   `json:"timestamp"`
	TotalValue decimal.Decimal             `json:"total_value"`
	Cash       decimal.Decimal             `json:"cash"`
	Positions  map[string]PositionSnapshot `json:"positions"`
}

// BacktestResult is the terminal report of one backtest run. Returns and
// drawdown are fractions, not percentages.
type BacktestResult struct {
	ID               string              `json:"id,omitempty"`
	StrategyName     string              `json:"strategy_name"`
	Symbol           string              `json:"symbol"`
	StartDate        time.Time           `json:"start_date"`
	EndDate          time.Time           `json:"end_date"`
	InitialCapital   decimal.Decimal     `json:"initial_capital"`
	FinalCapital     decimal.Decimal     `json:"final_capital"`
	TotalReturn      float64             `json:"total_return"`
	AnnualizedReturn float64             `json:"annualized_return"`
	MaxDrawdown      float64             `json:"max_drawdown"`
	SharpeRatio      float64             `json:"sharpe_ratio"`
	TotalTrades      int                 `json:"total_trades"`
	WinRate          float64             `json:"win_rate"`
	Trades           []Trade             `json:"trades"`
	PortfolioValues  []PortfolioSnapshot `json:"portfolio_values"`
	Rejections       []Rejection         `json:"rejections,omitempty"`
}

// Rejection records a signal that could not be executed.
type Rejection struct {
	Timestamp time.Time  `json:"timestamp"`
	Symbol    string     `json:"symbol"`
	Type      SignalType `json:"signal_type"`
	Reason    string     `json:"reason"`
}
