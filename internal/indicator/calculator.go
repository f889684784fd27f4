package indicator

import (
	"sort"
	"time"

	"algotrader/internal/domain"
)

// Series is an indicator's history aligned to the bar timestamps it was
// computed from. Values[i] belongs to Timestamps[i].
type Series struct {
	Name       string
	Values     []float64
	Timestamps []time.Time
}

// Len returns the number of available values.
func (s Series) Len() int { return len(s.Values) }

// Latest returns the most recent value. ok is false when the series is empty.
func (s Series) Latest() (v float64, ok bool) {
	return s.Back(0)
}

// Back returns the value n steps before the latest. Back(0) is the latest,
// Back(1) the one preceding it.
func (s Series) Back(n int) (v float64, ok bool) {
	i := len(s.Values) - 1 - n
	if n < 0 || i < 0 {
		return 0, false
	}
	return s.Values[i], true
}

// MACDSeries groups the MACD line, signal line and histogram.
type MACDSeries struct {
	MACD      Series
	Signal    Series
	Histogram Series
}

// BandSeries groups the Bollinger bands.
type BandSeries struct {
	Upper  Series
	Middle Series
	Lower  Series
}

// StochasticSeries groups %K and %D.
type StochasticSeries struct {
	K Series
	D Series
}

// Calculator is an immutable snapshot over one symbol's bar series. The
// derived price arrays are computed once at construction; every query is
// answered relative to exactly the bars the calculator was built from.
type Calculator struct {
	bars       []domain.Bar
	closes     []float64
	highs      []float64
	lows       []float64
	volumes    []int64
	timestamps []time.Time
}

// NewCalculator copies bars, stable-sorts them by timestamp and derives the
// float price arrays used by the indicator functions.
func NewCalculator(bars []domain.Bar) *Calculator {
	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	c := &Calculator{
		bars:       sorted,
		closes:     make([]float64, len(sorted)),
		highs:      make([]float64, len(sorted)),
		lows:       make([]float64, len(sorted)),
		volumes:    make([]int64, len(sorted)),
		timestamps: make([]time.Time, len(sorted)),
	}
	for i, b := range sorted {
		c.closes[i] = b.Close.InexactFloat64()
		c.highs[i] = b.High.InexactFloat64()
		c.lows[i] = b.Low.InexactFloat64()
		c.volumes[i] = b.Volume
		c.timestamps[i] = b.Timestamp
	}
	return c
}

// Len returns the number of bars in the snapshot.
func (c *Calculator) Len() int { return len(c.bars) }

// Bars returns the sorted bars backing the snapshot.
func (c *Calculator) Bars() []domain.Bar { return c.bars }

// Closes returns the derived close prices.
func (c *Calculator) Closes() []float64 { return c.closes }

// LatestBar returns the most recent bar.
func (c *Calculator) LatestBar() (domain.Bar, bool) {
	if len(c.bars) == 0 {
		return domain.Bar{}, false
	}
	return c.bars[len(c.bars)-1], true
}

// SMA returns the simple moving average series.
func (c *Calculator) SMA(period int) Series {
	return c.series("SMA", SMA(c.closes, period))
}

// EMA returns the exponential moving average series.
func (c *Calculator) EMA(period int) Series {
	return c.series("EMA", EMA(c.closes, period))
}

// RSI returns the relative strength index series.
func (c *Calculator) RSI(period int) Series {
	return c.series("RSI", RSI(c.closes, period))
}

// MACD returns the MACD line, signal line and histogram.
func (c *Calculator) MACD(fast, slow, signal int) MACDSeries {
	v := MACD(c.closes, fast, slow, signal)
	return MACDSeries{
		MACD:      c.series("MACD", v.MACD),
		Signal:    c.series("MACDSignal", v.Signal),
		Histogram: c.series("MACDHistogram", v.Histogram),
	}
}

// BollingerBands returns the upper, middle and lower bands.
func (c *Calculator) BollingerBands(period int, k float64) BandSeries {
	v := BollingerBands(c.closes, period, k)
	return BandSeries{
		Upper:  c.series("BollingerUpper", v.Upper),
		Middle: c.series("BollingerMiddle", v.Middle),
		Lower:  c.series("BollingerLower", v.Lower),
	}
}

// Stochastic returns %K and %D.
func (c *Calculator) Stochastic(kPeriod, dPeriod int) StochasticSeries {
	v := Stochastic(c.highs, c.lows, c.closes, kPeriod, dPeriod)
	return StochasticSeries{
		K: c.series("StochasticK", v.K),
		D: c.series("StochasticD", v.D),
	}
}

// ATR returns the average true range series.
func (c *Calculator) ATR(period int) Series {
	return c.series("ATR", ATR(c.highs, c.lows, c.closes, period))
}

// OBV returns the on-balance volume series.
func (c *Calculator) OBV() Series {
	return c.series("OBV", OBV(c.closes, c.volumes))
}

// series aligns values to the trailing timestamps of the snapshot. Every
// indicator's lag is exactly len(bars)-len(values).
func (c *Calculator) series(name string, values []float64) Series {
	s := Series{Name: name, Values: values}
	if len(values) > 0 {
		s.Timestamps = c.timestamps[len(c.timestamps)-len(values):]
	}
	return s
}
