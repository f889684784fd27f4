// Package indicator implements the technical indicators used by the trading
// strategies. The functions in this file are pure: they take ordered price
// sequences and return the indicator values aligned to a suffix of the input.
// An input shorter than the indicator's window yields an empty result, which
// signals "not enough data yet" rather than an error.
package indicator

import "math"

// Default indicator parameters.
const (
	DefaultRSIPeriod       = 14
	DefaultMACDFast        = 12
	DefaultMACDSlow        = 26
	DefaultMACDSignal      = 9
	DefaultBollingerPeriod = 20
	DefaultBollingerK      = 2.0
	DefaultStochasticK     = 14
	DefaultStochasticD     = 3
	DefaultATRPeriod       = 14
)

// SMA returns the arithmetic mean of each trailing window of period prices.
// The result has len(prices)-period+1 elements.
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}
	out := make([]float64, 0, len(prices)-period+1)
	for i := 0; i+period <= len(prices); i++ {
		out = append(out, mean(prices[i:i+period]))
	}
	return out
}

// EMA returns the exponential moving average seeded with the SMA of the first
// period prices. Subsequent values follow v = price*a + prev*(1-a) with
// a = 2/(period+1).
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}
	alpha := 2.0 / float64(period+1)
	out := make([]float64, 0, len(prices)-period+1)
	out = append(out, mean(prices[:period]))
	for _, p := range prices[period:] {
		prev := out[len(out)-1]
		out = append(out, p*alpha+prev*(1-alpha))
	}
	return out
}

// RSI returns the relative strength index using Wilder smoothing. The first
// value is computed from the first period price changes, so the result has
// len(prices)-period elements.
func RSI(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period+1 {
		return nil
	}
	gains := make([]float64, 0, len(prices)-1)
	losses := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gains = append(gains, math.Max(change, 0))
		losses = append(losses, math.Max(-change, 0))
	}

	avgGain := mean(gains[:period])
	avgLoss := mean(losses[:period])

	out := make([]float64, 0, len(gains)-period+1)
	out = append(out, rsiValue(avgGain, avgLoss))
	p := float64(period)
	for i := period; i < len(gains); i++ {
		avgGain = (avgGain*(p-1) + gains[i]) / p
		avgLoss = (avgLoss*(p-1) + losses[i]) / p
		out = append(out, rsiValue(avgGain, avgLoss))
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

// MACDValues holds the three MACD series. MACD is aligned to the slow EMA;
// Signal and Histogram start signal-1 elements later.
type MACDValues struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes EMA(fast) - EMA(slow), its signal EMA and the histogram.
func MACD(prices []float64, fast, slow, signal int) MACDValues {
	if fast <= 0 || slow < fast || signal <= 0 || len(prices) < slow {
		return MACDValues{}
	}
	fastEMA := EMA(prices, fast)
	slowEMA := EMA(prices, slow)

	offset := slow - fast
	line := make([]float64, len(slowEMA))
	for i := range slowEMA {
		line[i] = fastEMA[i+offset] - slowEMA[i]
	}

	sig := EMA(line, signal)
	hist := make([]float64, len(sig))
	for i := range sig {
		hist[i] = line[i+signal-1] - sig[i]
	}
	return MACDValues{MACD: line, Signal: sig, Histogram: hist}
}

// BandValues holds the Bollinger upper, middle and lower bands.
type BandValues struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// BollingerBands returns SMA(period) ± k standard deviations, using the
// population standard deviation of each window.
func BollingerBands(prices []float64, period int, k float64) BandValues {
	if period <= 0 || len(prices) < period {
		return BandValues{}
	}
	n := len(prices) - period + 1
	bands := BandValues{
		Upper:  make([]float64, 0, n),
		Middle: make([]float64, 0, n),
		Lower:  make([]float64, 0, n),
	}
	for i := 0; i < n; i++ {
		window := prices[i : i+period]
		m := mean(window)
		sd := popStdDev(window, m)
		bands.Upper = append(bands.Upper, m+k*sd)
		bands.Middle = append(bands.Middle, m)
		bands.Lower = append(bands.Lower, m-k*sd)
	}
	return bands
}

// StochasticValues holds %K and %D.
type StochasticValues struct {
	K []float64
	D []float64
}

// Stochastic returns the stochastic oscillator. %K is 50 when the window has
// no range. %D is SMA(%K, dPeriod). Inputs of different lengths yield an
// empty result.
func Stochastic(highs, lows, closes []float64, kPeriod, dPeriod int) StochasticValues {
	if kPeriod <= 0 || len(closes) < kPeriod || len(highs) != len(closes) || len(lows) != len(closes) {
		return StochasticValues{}
	}
	k := make([]float64, 0, len(closes)-kPeriod+1)
	for i := 0; i+kPeriod <= len(closes); i++ {
		hh := maxOf(highs[i : i+kPeriod])
		ll := minOf(lows[i : i+kPeriod])
		c := closes[i+kPeriod-1]
		if hh-ll == 0 {
			k = append(k, 50)
			continue
		}
		k = append(k, 100*(c-ll)/(hh-ll))
	}
	return StochasticValues{K: k, D: SMA(k, dPeriod)}
}

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|) for
// every bar after the first.
func TrueRange(highs, lows, closes []float64) []float64 {
	if len(closes) < 2 || len(highs) != len(closes) || len(lows) != len(closes) {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		tr := math.Max(highs[i]-lows[i], math.Abs(highs[i]-closes[i-1]))
		tr = math.Max(tr, math.Abs(lows[i]-closes[i-1]))
		out = append(out, tr)
	}
	return out
}

// ATR returns the EMA of the true range. The result has len(closes)-period
// elements.
func ATR(highs, lows, closes []float64, period int) []float64 {
	if period <= 0 || len(closes) < period+1 {
		return nil
	}
	return EMA(TrueRange(highs, lows, closes), period)
}

// OBV returns the on-balance volume, seeded at zero for the first bar.
func OBV(closes []float64, volumes []int64) []float64 {
	if len(closes) == 0 || len(volumes) != len(closes) {
		return nil
	}
	out := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + float64(volumes[i])
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - float64(volumes[i])
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func popStdDev(xs []float64, m float64) float64 {
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}
