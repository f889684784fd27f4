// Package marketdata defines the historical data provider contract consumed by
// strategies and the backtest engine, with in-memory, store-backed and Alpaca
// implementations.
package marketdata

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"algotrader/internal/domain"
)

// ErrNoData is returned by CurrentPrice when a provider has no bars for the
// requested symbol.
var ErrNoData = errors.New("marketdata: no data for symbol")

// Provider supplies historical bars and current prices for a symbol. Results
// of HistoricalBars are ordered by timestamp and may be empty.
type Provider interface {
	// HistoricalBars returns bars for symbol within [start, end].
	HistoricalBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// CurrentPrice returns the latest known price for symbol.
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Compile-time interface check.
var _ Provider = (*MemoryProvider)(nil)

// MemoryProvider serves bars held in memory. It is safe for concurrent use.
type MemoryProvider struct {
	mu   sync.RWMutex
	bars map[string][]domain.Bar
}

// NewMemoryProvider creates a MemoryProvider seeded with the given bars.
func NewMemoryProvider(bars ...domain.Bar) *MemoryProvider {
	p := &MemoryProvider{bars: make(map[string][]domain.Bar)}
	p.Add(bars...)
	return p
}

// Add inserts bars, keeping each symbol's series sorted by timestamp.
func (p *MemoryProvider) Add(bars ...domain.Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	touched := make(map[string]bool)
	for _, b := range bars {
		sym := strings.ToUpper(b.Symbol)
		p.bars[sym] = append(p.bars[sym], b)
		touched[sym] = true
	}
	for sym := range touched {
		series := p.bars[sym]
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].Timestamp.Before(series[j].Timestamp)
		})
	}
}

// HistoricalBars returns a copy of the bars for symbol within [start, end].
func (p *MemoryProvider) HistoricalBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []domain.Bar
	for _, b := range p.bars[strings.ToUpper(symbol)] {
		if b.Timestamp.Before(start) || b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// CurrentPrice returns the close of the latest bar for symbol.
func (p *MemoryProvider) CurrentPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	series := p.bars[strings.ToUpper(symbol)]
	if len(series) == 0 {
		return decimal.Zero, ErrNoData
	}
	return series[len(series)-1].Close, nil
}
