package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"algotrader/internal/domain"
	"algotrader/internal/store"
)

// Compile-time interface check.
var _ Provider = (*StoreProvider)(nil)

// currentPriceWindow bounds how far back CurrentPrice searches for a bar.
const currentPriceWindow = 30 * 24 * time.Hour

// StoreProvider serves bars previously persisted in a BarStore for one market.
type StoreProvider struct {
	store  store.BarStore
	market string
	now    func() time.Time
}

// NewStoreProvider creates a provider reading from s under the given market
// directory (e.g. "us").
func NewStoreProvider(s store.BarStore, market string) *StoreProvider {
	return &StoreProvider{store: s, market: market, now: time.Now}
}

// HistoricalBars reads bars for symbol within [start, end].
func (p *StoreProvider) HistoricalBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	bars, err := p.store.ReadBars(ctx, symbol, p.market, start, end)
	if err != nil {
		return nil, fmt.Errorf("reading %s bars: %w", symbol, err)
	}
	return bars, nil
}

// CurrentPrice returns the close of the most recent stored bar.
func (p *StoreProvider) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	end := p.now()
	bars, err := p.HistoricalBars(ctx, symbol, end.Add(-currentPriceWindow), end)
	if err != nil {
		return decimal.Zero, err
	}
	if len(bars) == 0 {
		return decimal.Zero, ErrNoData
	}
	return bars[len(bars)-1].Close, nil
}
