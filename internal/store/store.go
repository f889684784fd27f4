// Package store defines storage interfaces for persisting historical bars and
// backtest results.
package store

import (
	"context"
	"errors"
	"time"

	"algotrader/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// ResultSummary is the headline view of a stored backtest run.
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

// ResultStore persists and retrieves backtest results.
type ResultStore interface {
	// SaveResult inserts a result keyed by its ID.
	SaveResult(ctx context.Context, result *domain.BacktestResult) error

	// GetResult retrieves a full result, including trades and portfolio history.
	GetResult(ctx context.Context, id string) (*domain.BacktestResult, error)

	// ListResults returns the most recent result summaries, up to limit.
	ListResults(ctx context.Context, limit int) ([]ResultSummary, error)
}
