package marketdata

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"algotrader/internal/domain"
	"algotrader/internal/store"
)

func bar(symbol string, day int, close int64) domain.Bar {
	p := decimal.NewFromInt(close)
	return domain.Bar{
		Symbol:    symbol,
		Timestamp: time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Open:      p, High: p, Low: p, Close: p,
		Volume: 100,
	}
}

func TestMemoryProviderHistoricalBars(t *testing.T) {
	p := NewMemoryProvider(bar("AAPL", 3, 12), bar("AAPL", 1, 10), bar("AAPL", 2, 11), bar("MSFT", 1, 400))
	ctx := context.Background()

	got, err := p.HistoricalBars(ctx, "aapl", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("HistoricalBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("HistoricalBars returned %d bars, want 2", len(got))
	}
	if !got[0].Close.Equal(decimal.NewFromInt(11)) || !got[1].Close.Equal(decimal.NewFromInt(12)) {
		t.Errorf("bars out of order: %v, %v", got[0].Close, got[1].Close)
	}

	empty, err := p.HistoricalBars(ctx, "GOOGL", time.Time{}, time.Now())
	if err != nil || len(empty) != 0 {
		t.Errorf("HistoricalBars(GOOGL) = (%v, %v), want empty and nil error", empty, err)
	}
}

func TestMemoryProviderCurrentPrice(t *testing.T) {
	p := NewMemoryProvider(bar("AAPL", 1, 10), bar("AAPL", 2, 11))
	ctx := context.Background()

	price, err := p.CurrentPrice(ctx, "AAPL")
	if err != nil {
		t.Fatalf("CurrentPrice: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(11)) {
		t.Errorf("CurrentPrice = %v, want 11", price)
	}
	if _, err := p.CurrentPrice(ctx, "NONE"); !errors.Is(err, ErrNoData) {
		t.Errorf("CurrentPrice(NONE) error = %v, want ErrNoData", err)
	}
}

func TestStoreProviderReadsParquet(t *testing.T) {
	ps := store.NewParquetStore(t.TempDir())
	ctx := context.Background()
	if err := ps.WriteBarsForMarket([]domain.Bar{bar("AAPL", 2, 185), bar("AAPL", 3, 186)}, "us"); err != nil {
		t.Fatalf("WriteBarsForMarket: %v", err)
	}

	p := NewStoreProvider(ps, "us")
	p.now = func() time.Time { return time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC) }

	bars, err := p.HistoricalBars(ctx, "AAPL", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("HistoricalBars: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("HistoricalBars returned %d bars, want 2", len(bars))
	}

	price, err := p.CurrentPrice(ctx, "AAPL")
	if err != nil {
		t.Fatalf("CurrentPrice: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(186)) {
		t.Errorf("CurrentPrice = %v, want 186", price)
	}
}

func TestReadCSV(t *testing.T) {
	in := `Date,Open,High,Low,Close,Volume
2024-01-03,186.5,187,185,186.25,1200
2024-01-02,185,186,184,185.5,1000.0
`
	bars, err := ReadCSV(strings.NewReader(in), "aapl")
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("ReadCSV returned %d bars, want 2", len(bars))
	}
	first := bars[0]
	if first.Symbol != "AAPL" || !first.Timestamp.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first bar = %s %v, want AAPL 2024-01-02", first.Symbol, first.Timestamp)
	}
	if !first.Close.Equal(decimal.RequireFromString("185.5")) || first.Volume != 1000 {
		t.Errorf("first bar close/volume = %v/%d, want 185.5/1000", first.Close, first.Volume)
	}
}

func TestReadCSVSymbolColumn(t *testing.T) {
	in := "symbol,timestamp,open,high,low,close,volume\nmsft,2024-01-02T00:00:00Z,400,401,399,400.5,10\n"
	bars, err := ReadCSV(strings.NewReader(in), "")
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(bars) != 1 || bars[0].Symbol != "MSFT" {
		t.Errorf("bars = %+v, want one MSFT bar", bars)
	}
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name, in, symbol string
	}{
		{"no date column", "open,high,low,close,volume\n1,1,1,1,1\n", "X"},
		{"no close column", "date,open,high,low,volume\n2024-01-02,1,1,1,1\n", "X"},
		{"no symbol", "date,open,high,low,close,volume\n2024-01-02,1,1,1,1,1\n", ""},
		{"bad price", "date,open,high,low,close,volume\n2024-01-02,1,x,1,1,1\n", "X"},
		{"bad date", "date,open,high,low,close,volume\n01/02/2024,1,1,1,1,1\n", "X"},
		{"negative volume", "date,open,high,low,close,volume\n2024-01-02,1,1,1,1,-5\n", "X"},
	}
	for _, tc := range tests {
		if _, err := ReadCSV(strings.NewReader(tc.in), tc.symbol); err == nil {
			t.Errorf("%s: ReadCSV succeeded, want error", tc.name)
		}
	}
}
