package backtest

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"algotrader/internal/broker"
)

// ErrInvalidConfig wraps every error returned by Config.Validate.
var ErrInvalidConfig = errors.New("backtest: invalid config")

// Defaults for zero-valued Config fields.
var (
	DefaultInitialCapital  = decimal.NewFromInt(100000)
	DefaultMaxPositionSize = 0.1
)

// Config holds the parameters of one backtest run.
type Config struct {
	StartDate       time.Time
	EndDate         time.Time
	InitialCapital  decimal.Decimal
	Commission      decimal.Decimal // fraction of notional per fill
	Slippage        decimal.Decimal // fraction of reference price
	MaxPositionSize float64         // fraction of total value per order
}

// DefaultConfig returns a Config for [start, end] with default capital and
// costs.
func DefaultConfig(start, end time.Time) Config {
	return Config{
		StartDate:       start,
		EndDate:         end,
		InitialCapital:  DefaultInitialCapital,
		Commission:      broker.DefaultCommission,
		Slippage:        broker.DefaultSlippage,
		MaxPositionSize: DefaultMaxPositionSize,
	}
}

// WithDefaults fills zero capital and position size with defaults.
// Commission and slippage may legitimately be zero and are left alone.
func (c Config) WithDefaults() Config {
	if c.InitialCapital.IsZero() {
		c.InitialCapital = DefaultInitialCapital
	}
	if c.MaxPositionSize == 0 {
		c.MaxPositionSize = DefaultMaxPositionSize
	}
	return c
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		errs = append(errs, errors.New("start and end dates are required"))
	} else if c.EndDate.Before(c.StartDate) {
		errs = append(errs, fmt.Errorf("end date %s is before start date %s",
			c.EndDate.Format(time.DateOnly), c.StartDate.Format(time.DateOnly)))
	}
	if !c.InitialCapital.IsPositive() {
		errs = append(errs, fmt.Errorf("initial capital must be positive, got %s", c.InitialCapital))
	}
	if c.Commission.IsNegative() {
		errs = append(errs, fmt.Errorf("commission must not be negative, got %s", c.Commission))
	}
	if c.Slippage.IsNegative() || c.Slippage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("slippage must be in [0, 1), got %s", c.Slippage))
	}
	if c.MaxPositionSize <= 0 || c.MaxPositionSize > 1 {
		errs = append(errs, fmt.Errorf("max position size must be in (0, 1], got %v", c.MaxPositionSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (c Config) brokerConfig() broker.Config {
	return broker.Config{Commission: c.Commission, Slippage: c.Slippage}
}
