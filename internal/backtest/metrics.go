package backtest

import (
	"math"
	"time"

	"algotrader/internal/domain"
)

const tradingDaysPerYear = 252

// totalReturn is the fractional change from initial to final value.
func totalReturn(initial, final float64) float64 {
	if initial == 0 {
		return 0
	}
	return (final - initial) / initial
}

// annualizedReturn compounds total over the calendar days between start and
// end. Partial days are dropped.
func annualizedReturn(total float64, start, end time.Time) float64 {
	days := int(end.Sub(start).Hours() / 24)
	if days <= 0 {
		return 0
	}
	if 1+total <= 0 {
		return -1
	}
	return math.Pow(1+total, 365/float64(days)) - 1
}

// dailyReturns computes step-over-step returns, the first against initial.
func dailyReturns(initial float64, values []float64) []float64 {
	returns := make([]float64, 0, len(values))
	prev := initial
	for _, v := range values {
		if prev != 0 {
			returns = append(returns, (v-prev)/prev)
		} else {
			returns = append(returns, 0)
		}
		prev = v
	}
	return returns
}

// maxDrawdown is the largest decline from a running peak, seeded with
// initial.
func maxDrawdown(initial float64, values []float64) float64 {
	peak := initial
	var worst float64
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// sharpeRatio annualizes mean over sample standard deviation of returns,
// assuming a zero risk-free rate.
func sharpeRatio(returns []float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(n)
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / float64(n-1))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}

// winRate is the share of closing trades with positive realized P&L.
func winRate(trades []domain.Trade) float64 {
	var closed, wins int
	for _, t := range trades {
		if t.PnL == nil {
			continue
		}
		closed++
		if t.PnL.IsPositive() {
			wins++
		}
	}
	if closed == 0 {
		return 0
	}
	return float64(wins) / float64(closed)
}
