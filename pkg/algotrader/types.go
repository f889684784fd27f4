package algotrader

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the format of start_date and end_date in requests.
const DateLayout = time.DateOnly

// BacktestRequest is the body of POST /api/v1/backtests. InitialCapital may
// be zero to use the server default.
type BacktestRequest struct {
	Strategy       string          `json:"strategy"`
	Symbol         string          `json:"symbol"`
	StartDate      string          `json:"start_date"`
	EndDate        string          `json:"end_date"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	Parameters     map[string]any  `json:"parameters,omitempty"`
}

// CompareRequest is the body of POST /api/v1/backtests/compare. The Strategy
// field of the embedded request is ignored.
type CompareRequest struct {
	Strategies []string `json:"strategies"`
	BacktestRequest
}

// CompareResponse maps strategy name to its result. Strategies whose run
// failed are absent.
type CompareResponse struct {
	Results map[string]*BacktestResult `json:"results"`
}

// SweepRequest runs one strategy once per combination of Grid values.
// Grid values override Parameters.
type SweepRequest struct {
	Grid map[string][]float64 `json:"grid"`
	BacktestRequest
}

// SweepRun is one parameter combination of a sweep.
type SweepRun struct {
	Parameters map[string]any  `json:"parameters"`
	Result     *BacktestResult `json:"result"`
}

// SweepResponse holds sweep runs ordered best Sharpe ratio first.
// Combinations that failed are absent.
type SweepResponse struct {
	Results []SweepRun `json:"results"`
}

// StrategiesResponse lists the strategy names the server can run.
type StrategiesResponse struct {
	Strategies []string `json:"strategies"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Trade is one executed fill.
type Trade struct {
	Symbol     string           `json:"symbol"`
	Side       string           `json:"side"`
	Quantity   decimal.Decimal  `json:"quantity"`
	Price      decimal.Decimal  `json:"price"`
	Timestamp  time.Time        `json:"timestamp"`
	Commission decimal.Decimal  `json:"commission"`
	PnL        *decimal.Decimal `json:"pnl,omitempty"`
}

// PositionSnapshot is one holding inside a PortfolioSnapshot.
type PositionSnapshot struct {
	Quantity      decimal.Decimal `json:"quantity"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// PortfolioSnapshot is the portfolio state after one bar.
type PortfolioSnapshot struct {
	Timestamp  time.Time                   `json:"timestamp"`
	TotalValue decimal.Decimal             `json:"total_value"`
	Cash       decimal.Decimal             `json:"cash"`
	Positions  map[string]PositionSnapshot `json:"positions"`
}

// Rejection records a signal the simulator could not fill.
type Rejection struct {
	Timestamp  time.Time `json:"timestamp"`
	Symbol     string    `json:"symbol"`
	SignalType string    `json:"signal_type"`
	Reason     string    `json:"reason"`
}

// BacktestResult is the full report of one run. Returns and drawdown are
// fractions.
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

// ResultSummary is one row of GET /api/v1/backtests.
type ResultSummary struct {
	ID           string    `json:"id"`
	StrategyName string    `json:"strategy_name"`
	Symbol       string    `json:"symbol"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	TotalReturn  float64   `json:"total_return"`
	SharpeRatio  float64   `json:"sharpe_ratio"`
	MaxDrawdown  float64   `json:"max_drawdown"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListResponse is returned by GET /api/v1/backtests.
type ListResponse struct {
	Backtests []ResultSummary `json:"backtests"`
}
