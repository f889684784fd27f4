package indicator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"algotrader/internal/domain"
)

func makeBars(closes ...float64) []domain.Bar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		p := decimal.NewFromFloat(c)
		bars[i] = domain.Bar{
			Symbol:    "TEST",
			Timestamp: start.AddDate(0, 0, i),
			Open:      p,
			High:      p.Add(decimal.NewFromInt(1)),
			Low:       p.Sub(decimal.NewFromInt(1)),
			Close:     p,
			Volume:    int64(1000 + i),
		}
	}
	return bars
}

func TestCalculatorSortsBars(t *testing.T) {
	bars := makeBars(10, 11, 12)
	shuffled := []domain.Bar{bars[2], bars[0], bars[1]}

	c := NewCalculator(shuffled)
	closes := c.Closes()
	if closes[0] != 10 || closes[1] != 11 || closes[2] != 12 {
		t.Errorf("Closes() = %v, want [10 11 12]", closes)
	}
	// The caller's slice must not be reordered.
	if !shuffled[0].Close.Equal(decimal.NewFromInt(12)) {
		t.Error("NewCalculator reordered the input slice")
	}
}

func TestCalculatorSMAAlignment(t *testing.T) {
	bars := makeBars(10, 11, 12, 13, 14, 15)
	c := NewCalculator(bars)

	s := c.SMA(3)
	if s.Len() != 4 {
		t.Fatalf("SMA(3).Len() = %d, want 4", s.Len())
	}
	if len(s.Timestamps) != s.Len() {
		t.Fatalf("len(Timestamps) = %d, want %d", len(s.Timestamps), s.Len())
	}
	if !s.Timestamps[0].Equal(bars[2].Timestamp) {
		t.Errorf("first SMA timestamp = %v, want %v", s.Timestamps[0], bars[2].Timestamp)
	}
	latest, ok := s.Latest()
	if !ok || latest != 14 {
		t.Errorf("Latest() = (%v, %v), want (14, true)", latest, ok)
	}
	prev, ok := s.Back(1)
	if !ok || prev != 13 {
		t.Errorf("Back(1) = (%v, %v), want (13, true)", prev, ok)
	}
	if _, ok := s.Back(4); ok {
		t.Error("Back(4) on a 4-element series should not be available")
	}
}

func TestCalculatorLagPerIndicator(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100 + float64(i%7)
	}
	c := NewCalculator(makeBars(closes...))
	n := c.Len()

	cases := []struct {
		name string
		got  int
		want int
	}{
		{"SMA(20)", c.SMA(20).Len(), n - 19},
		{"EMA(10)", c.EMA(10).Len(), n - 9},
		{"RSI(14)", c.RSI(14).Len(), n - 14},
		{"MACD line", c.MACD(12, 26, 9).MACD.Len(), n - 25},
		{"MACD signal", c.MACD(12, 26, 9).Signal.Len(), n - 25 - 8},
		{"Bollinger", c.BollingerBands(20, 2).Middle.Len(), n - 19},
		{"Stochastic K", c.Stochastic(14, 3).K.Len(), n - 13},
		{"Stochastic D", c.Stochastic(14, 3).D.Len(), n - 13 - 2},
		{"ATR(14)", c.ATR(14).Len(), n - 14},
		{"OBV", c.OBV().Len(), n},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s: len = %d, want %d", tc.name, tc.got, tc.want)
		}
	}
}

func TestCalculatorInsufficientHistory(t *testing.T) {
	c := NewCalculator(makeBars(1, 2, 3))
	if _, ok := c.RSI(14).Latest(); ok {
		t.Error("RSI(14) over 3 bars should have no latest value")
	}
	if s := c.MACD(12, 26, 9); s.MACD.Len() != 0 || s.Signal.Timestamps != nil {
		t.Error("MACD over 3 bars should be empty")
	}
}

func TestCalculatorEmpty(t *testing.T) {
	c := NewCalculator(nil)
	if _, ok := c.LatestBar(); ok {
		t.Error("LatestBar on empty calculator should return ok=false")
	}
	if c.OBV().Len() != 0 {
		t.Error("OBV on empty calculator should be empty")
	}
}
