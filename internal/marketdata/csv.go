package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"algotrader/internal/domain"
)

var csvRequired = []string{"open", "high", "low", "close", "volume"}

// ReadCSV parses daily bars from CSV with a header row. Column names are
// matched case-insensitively: a date column ("date" or "timestamp"), open,
// high, low, close, volume and an optional symbol column. When the file has
// no symbol column, every bar gets symbol. The result is sorted by timestamp.
func ReadCSV(r io.Reader, symbol string) ([]domain.Bar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}

	dateIdx, ok := cols["date"]
	if !ok {
		if dateIdx, ok = cols["timestamp"]; !ok {
			return nil, errors.New("CSV has no date or timestamp column")
		}
	}
	for _, name := range csvRequired {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("CSV has no %s column", name)
		}
	}
	symIdx, hasSym := cols["symbol"]
	if !hasSym && symbol == "" {
		return nil, errors.New("CSV has no symbol column and no symbol was given")
	}

	var bars []domain.Bar
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		b := domain.Bar{Symbol: strings.ToUpper(symbol)}
		if hasSym && strings.TrimSpace(rec[symIdx]) != "" {
			b.Symbol = strings.ToUpper(strings.TrimSpace(rec[symIdx]))
		}
		if b.Timestamp, err = parseCSVTime(rec[dateIdx]); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		prices := []*decimal.Decimal{&b.Open, &b.High, &b.Low, &b.Close}
		for i, name := range csvRequired[:4] {
			v, err := decimal.NewFromString(strings.TrimSpace(rec[cols[name]]))
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid %s %q", line, name, rec[cols[name]])
			}
			*prices[i] = v
		}
		if b.Volume, err = parseVolume(rec[cols["volume"]]); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, b)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

func parseCSVTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.DateOnly, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func parseVolume(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= 0 {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid volume %q", s)
	}
	return int64(math.Round(f)), nil
}
