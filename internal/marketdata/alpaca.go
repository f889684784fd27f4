package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"algotrader/internal/domain"
	"algotrader/internal/util"
)

// Compile-time interface check.
var _ Provider = (*AlpacaProvider)(nil)

const (
	alpacaMaxAttempts = 3
	alpacaBaseDelay   = 500 * time.Millisecond
)

// AlpacaProvider fetches daily bars from the Alpaca market-data API. Requests
// are rate limited and retried with exponential backoff.
type AlpacaProvider struct {
	client  *alpacamd.Client
	feed    string
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewAlpacaProvider creates an AlpacaProvider with the given credentials.
// dataURL may be empty to use the SDK default. feed is "iex" or "sip".
func NewAlpacaProvider(apiKey, apiSecret, dataURL, feed string, ratePerMin int) *AlpacaProvider {
	opts := alpacamd.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if feed == "" {
		feed = "iex"
	}
	if ratePerMin <= 0 {
		ratePerMin = 200
	}
	return &AlpacaProvider{
		client:  alpacamd.NewClient(opts),
		feed:    feed,
		limiter: util.NewRateLimiter(ratePerMin),
		log:     slog.Default().With("provider", "alpaca"),
	}
}

// HistoricalBars fetches daily bars for symbol within [start, end].
func (p *AlpacaProvider) HistoricalBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	var raw []alpacamd.Bar
	err := util.Retry(ctx, alpacaMaxAttempts, alpacaBaseDelay, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		raw, err = p.client.GetBars(symbol, alpacamd.GetBarsRequest{
			TimeFrame: alpacamd.OneDay,
			Start:     start,
			End:       end,
			Feed:      p.feed,
		})
		if err != nil {
			p.log.Warn("fetching bars", "symbol", symbol, "error", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, domain.Bar{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: ab.Timestamp,
			Open:      decimal.NewFromFloat(ab.Open),
			High:      decimal.NewFromFloat(ab.High),
			Low:       decimal.NewFromFloat(ab.Low),
			Close:     decimal.NewFromFloat(ab.Close),
			Volume:    int64(ab.Volume),
		})
	}
	return bars, nil
}

// CurrentPrice returns the price of the latest trade for symbol.
func (p *AlpacaProvider) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var price float64
	err := util.Retry(ctx, alpacaMaxAttempts, alpacaBaseDelay, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		trade, err := p.client.GetLatestTrade(symbol, alpacamd.GetLatestTradeRequest{Feed: p.feed})
		if err != nil {
			return err
		}
		if trade == nil {
			return ErrNoData
		}
		price = trade.Price
		return nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("GetLatestTrade %s: %w", symbol, err)
	}
	return decimal.NewFromFloat(price), nil
}
