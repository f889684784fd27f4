// Package risk implements optional position sizing models, stop-loss and
// take-profit checks, portfolio limit checks and target-weight rebalancing.
// The backtest loop does not call it unless a Sizer from Manager is wired in.
package risk

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"algotrader/internal/domain"
)

// Model selects the position sizing rule.
type Model string

const (
	ModelFixedPercentage Model = "fixed_percentage"
	ModelKellyCriterion  Model = "kelly_criterion"
	ModelFixedAmount     Model = "fixed_amount"
)

// ParseModel resolves a sizing model name. The empty string selects
// fixed_percentage.
func ParseModel(s string) (Model, error) {
	switch m := Model(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModelFixedPercentage, nil
	case ModelFixedPercentage, ModelKellyCriterion, ModelFixedAmount:
		return m, nil
	default:
		return "", fmt.Errorf("risk: unknown model %q", s)
	}
}

// Kelly inputs. The win statistics are fixed assumptions, not estimates.
const (
	kellyWinRate      = 0.55
	kellyWinLossRatio = 2.0
	kellyCap          = 0.1
)

// Config holds risk limits. Fractions are of total portfolio value.
type Config struct {
	MaxPortfolioRisk float64 `yaml:"max_portfolio_risk"`
	MaxPositionSize  float64 `yaml:"max_position_size"`
	MaxDailyLoss     float64 `yaml:"max_daily_loss"`
	MaxDrawdown      float64 `yaml:"max_drawdown"`
	Model            Model   `yaml:"model"`
	StopLoss         float64 `yaml:"stop_loss"`
	TakeProfit       float64 `yaml:"take_profit"`
	MaxOpenPositions int     `yaml:"max_open_positions"`
	FixedAmount      float64 `yaml:"fixed_amount"`
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{
		MaxPortfolioRisk: 0.02,
		MaxPositionSize:  0.1,
		MaxDailyLoss:     0.05,
		MaxDrawdown:      0.1,
		Model:            ModelFixedPercentage,
		StopLoss:         0.05,
		TakeProfit:       0.1,
		MaxOpenPositions: 5,
		FixedAmount:      1000,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.MaxPortfolioRisk == 0 {
		c.MaxPortfolioRisk = def.MaxPortfolioRisk
	}
	if c.MaxPositionSize == 0 {
		c.MaxPositionSize = def.MaxPositionSize
	}
	if c.MaxDailyLoss == 0 {
		c.MaxDailyLoss = def.MaxDailyLoss
	}
	if c.MaxDrawdown == 0 {
		c.MaxDrawdown = def.MaxDrawdown
	}
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.StopLoss == 0 {
		c.StopLoss = def.StopLoss
	}
	if c.TakeProfit == 0 {
		c.TakeProfit = def.TakeProfit
	}
	if c.MaxOpenPositions == 0 {
		c.MaxOpenPositions = def.MaxOpenPositions
	}
	if c.FixedAmount == 0 {
		c.FixedAmount = def.FixedAmount
	}
	return c
}

// Portfolio is the view of holdings the manager evaluates.
type Portfolio interface {
	Cash() decimal.Decimal
	TotalValue() decimal.Decimal
	Positions() []domain.Position
}

// Reason explains why a position should be closed.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonStopLoss   Reason = "stop_loss"
	ReasonTakeProfit Reason = "take_profit"
)

// Status is the outcome of CheckPortfolio. Breaches violate hard limits;
// warnings flag concentration.
type Status struct {
	WithinLimits bool     `json:"within_limits"`
	Warnings     []string `json:"warnings"`
	Breaches     []string `json:"breaches"`
}

// Manager applies Config to portfolios. It tracks the value at the start of
// the trading day for the daily loss limit; call ResetDaily at each new day.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	dailyStart *decimal.Decimal
}

// NewManager creates a Manager. Zero config fields take defaults.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cfg: cfg.WithDefaults(), logger: logger}
}

// Config returns the effective limits.
func (m *Manager) Config() Config { return m.cfg }

// PositionSize returns the quantity to buy for sig under the configured
// model, capped at MaxPositionSize of total value. It returns zero when the
// open position limit or the daily loss limit is reached. volatility only
// matters for the Kelly model; zero falls back to fixed percentage.
func (m *Manager) PositionSize(p Portfolio, sig domain.Signal, volatility float64) decimal.Decimal {
	if !sig.Price.IsPositive() {
		return decimal.Zero
	}
	if len(p.Positions()) >= m.cfg.MaxOpenPositions {
		m.logger.Warn("maximum open positions reached", "symbol", sig.Symbol, "limit", m.cfg.MaxOpenPositions)
		return decimal.Zero
	}
	if m.dailyLossReached(p) {
		m.logger.Warn("daily loss limit reached", "symbol", sig.Symbol)
		return decimal.Zero
	}

	total := p.TotalValue()
	var qty decimal.Decimal
	switch m.cfg.Model {
	case ModelKellyCriterion:
		qty = m.kellySize(total, sig.Price, volatility)
	case ModelFixedAmount:
		qty = decimal.NewFromFloat(m.cfg.FixedAmount).Div(sig.Price)
	default:
		qty = m.fixedPercentageSize(total, sig.Price)
	}

	maxQty := total.Mul(decimal.NewFromFloat(m.cfg.MaxPositionSize)).Div(sig.Price)
	return decimal.Min(qty, maxQty)
}

// fixedPercentageSize risks MaxPortfolioRisk of total value against a stop
// placed StopLoss below price.
func (m *Manager) fixedPercentageSize(total, price decimal.Decimal) decimal.Decimal {
	risk := total.Mul(decimal.NewFromFloat(m.cfg.MaxPortfolioRisk))
	stop := price.Mul(decimal.NewFromFloat(m.cfg.StopLoss))
	if stop.IsZero() {
		return decimal.Zero
	}
	return risk.Div(stop)
}

func (m *Manager) kellySize(total, price decimal.Decimal, volatility float64) decimal.Decimal {
	if volatility <= 0 {
		return m.fixedPercentageSize(total, price)
	}
	f := kellyWinRate - (1-kellyWinRate)/kellyWinLossRatio
	f = max(0, min(f, kellyCap))
	return total.Mul(decimal.NewFromFloat(f)).Div(price)
}

// ShouldClose reports whether price has reached the stop-loss or take-profit
// level relative to the position's entry price.
func (m *Manager) ShouldClose(pos domain.Position, price decimal.Decimal) (bool, Reason) {
	one := decimal.NewFromInt(1)
	stop := pos.EntryPrice.Mul(one.Sub(decimal.NewFromFloat(m.cfg.StopLoss)))
	if price.LessThanOrEqual(stop) {
		return true, ReasonStopLoss
	}
	target := pos.EntryPrice.Mul(one.Add(decimal.NewFromFloat(m.cfg.TakeProfit)))
	if price.GreaterThanOrEqual(target) {
		return true, ReasonTakeProfit
	}
	return false, ReasonNone
}

// CheckPortfolio evaluates drawdown, daily loss and concentration limits.
// Drawdown is the aggregate P&L loss of open positions relative to the value
// before that loss.
func (m *Manager) CheckPortfolio(p Portfolio) Status {
	st := Status{WithinLimits: true, Warnings: []string{}, Breaches: []string{}}
	total := p.TotalValue()
	positions := p.Positions()

	var pnl decimal.Decimal
	for _, pos := range positions {
		pnl = pnl.Add(pos.UnrealizedPnL).Add(pos.RealizedPnL)
	}
	if pnl.IsNegative() {
		loss := pnl.Abs()
		if base := total.Add(loss); base.IsPositive() {
			dd := loss.Div(base).InexactFloat64()
			if dd > m.cfg.MaxDrawdown {
				st.Breaches = append(st.Breaches, fmt.Sprintf("drawdown limit breached: %.2f%%", dd*100))
				st.WithinLimits = false
			}
		}
	}

	if m.dailyLossReached(p) {
		st.Breaches = append(st.Breaches, "daily loss limit reached")
		st.WithinLimits = false
	}

	if total.IsPositive() {
		for _, pos := range positions {
			w := pos.MarketValue.Div(total).InexactFloat64()
			if w > m.cfg.MaxPositionSize {
				st.Warnings = append(st.Warnings, fmt.Sprintf("position %s exceeds size limit: %.2f%%", pos.Symbol, w*100))
			}
		}
	}
	return st
}

// dailyLossReached records the first value seen since the last reset as the
// day's starting value and compares the current value against it.
func (m *Manager) dailyLossReached(p Portfolio) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := p.TotalValue()
	if m.dailyStart == nil {
		m.dailyStart = &total
		return false
	}
	if !m.dailyStart.IsPositive() {
		return false
	}
	loss := m.dailyStart.Sub(total).Div(*m.dailyStart).InexactFloat64()
	return loss >= m.cfg.MaxDailyLoss
}

// ResetDaily clears the daily starting value.
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	m.dailyStart = nil
	m.mu.Unlock()
}
