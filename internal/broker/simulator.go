package broker

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"algotrader/internal/domain"
)

// Simulator owns one portfolio: cash, open positions and the append-only
// trade log. It is not safe for concurrent use; each backtest run creates
// its own.
type Simulator struct {
	cfg       Config
	logger    *slog.Logger
	cash      decimal.Decimal
	positions map[string]*domain.Position
	trades    []domain.Trade
}

// NewSimulator creates a Simulator holding initialCash and no positions.
func NewSimulator(initialCash decimal.Decimal, cfg Config, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		cfg:       cfg,
		logger:    logger,
		cash:      initialCash,
		positions: make(map[string]*domain.Position),
	}
}

// Cash returns the uninvested cash balance.
func (s *Simulator) Cash() decimal.Decimal { return s.cash }

// TotalValue returns cash plus the market value of every open position at
// its last marked price.
func (s *Simulator) TotalValue() decimal.Decimal {
	total := s.cash
	for _, p := range s.positions {
		total = total.Add(p.Quantity.Mul(p.CurrentPrice))
	}
	return total
}

// Position returns a copy of the open position for symbol.
func (s *Simulator) Position(symbol string) (domain.Position, bool) {
	p, ok := s.positions[strings.ToUpper(symbol)]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// Positions returns copies of all open positions ordered by symbol.
func (s *Simulator) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Trades returns a copy of the trade log.
func (s *Simulator) Trades() []domain.Trade {
	out := make([]domain.Trade, len(s.trades))
	copy(out, s.trades)
	return out
}

// MarkToMarket revalues the position in symbol at price. It is a no-op when
// nothing is held.
func (s *Simulator) MarkToMarket(symbol string, price decimal.Decimal) {
	p, ok := s.positions[strings.ToUpper(symbol)]
	if !ok {
		return
	}
	p.CurrentPrice = price
	p.MarketValue = p.Quantity.Mul(price)
	p.UnrealizedPnL = p.MarketValue.Sub(p.Quantity.Mul(p.EntryPrice))
}

// Snapshot captures the portfolio at ts.
func (s *Simulator) Snapshot(ts time.Time) domain.PortfolioSnapshot {
	snap := domain.PortfolioSnapshot{
		Timestamp:  ts,
		TotalValue: s.TotalValue(),
		Cash:       s.cash,
		Positions:  make(map[string]domain.PositionSnapshot, len(s.positions)),
	}
	for sym, p := range s.positions {
		snap.Positions[sym] = domain.PositionSnapshot{
			Quantity:      p.Quantity,
			MarketValue:   p.Quantity.Mul(p.CurrentPrice),
			UnrealizedPnL: p.UnrealizedPnL,
		}
	}
	return snap
}

// FillPrice applies slippage against the order side: buys pay more, sells
// receive less.
func (s *Simulator) FillPrice(side domain.OrderSide, price decimal.Decimal) decimal.Decimal {
	if side == domain.OrderSideSell {
		return price.Mul(decimal.NewFromInt(1).Sub(s.cfg.Slippage))
	}
	return price.Mul(decimal.NewFromInt(1).Add(s.cfg.Slippage))
}

// Execute fills o immediately. Rejected orders leave the portfolio untouched
// and return ErrInsufficientFunds or ErrNoOpenPosition.
func (s *Simulator) Execute(o Order) (domain.Trade, error) {
	if !o.Quantity.IsPositive() || !o.Price.IsPositive() {
		return domain.Trade{}, fmt.Errorf("%w: %s x %s", ErrInvalidQuantity, o.Quantity, o.Price)
	}
	o.Symbol = strings.ToUpper(o.Symbol)
	switch o.Side {
	case domain.OrderSideBuy:
		return s.buy(o)
	case domain.OrderSideSell:
		return s.sell(o)
	default:
		return domain.Trade{}, fmt.Errorf("broker: unknown order side %q", o.Side)
	}
}

func (s *Simulator) buy(o Order) (domain.Trade, error) {
	price := s.FillPrice(domain.OrderSideBuy, o.Price)
	commission := price.Mul(o.Quantity).Mul(s.cfg.Commission)
	cost := price.Mul(o.Quantity).Add(commission)

	if cost.GreaterThan(s.cash) {
		s.logger.Warn("buy rejected: insufficient cash",
			"symbol", o.Symbol,
			"side", o.Side,
			"cost", cost.String(),
			"cash", s.cash.String(),
		)
		return domain.Trade{}, fmt.Errorf("%w: cost %s exceeds cash %s", ErrInsufficientFunds, cost, s.cash)
	}

	if p, ok := s.positions[o.Symbol]; ok {
		qty := p.Quantity.Add(o.Quantity)
		basis := p.Quantity.Mul(p.EntryPrice).Add(o.Quantity.Mul(price))
		p.EntryPrice = basis.Div(qty)
		p.Quantity = qty
	} else {
		s.positions[o.Symbol] = &domain.Position{
			Symbol:       o.Symbol,
			Quantity:     o.Quantity,
			EntryPrice:   price,
			EntryDate:    o.Timestamp,
			CurrentPrice: price,
			MarketValue:  o.Quantity.Mul(price),
		}
	}
	s.cash = s.cash.Sub(cost)

	t := domain.Trade{
		Symbol:     o.Symbol,
		Side:       domain.OrderSideBuy,
		Quantity:   o.Quantity,
		Price:      price,
		Timestamp:  o.Timestamp,
		Commission: commission,
	}
	s.trades = append(s.trades, t)
	return t, nil
}

func (s *Simulator) sell(o Order) (domain.Trade, error) {
	p, ok := s.positions[o.Symbol]
	if !ok {
		s.logger.Warn("sell rejected: no open position", "symbol", o.Symbol, "side", o.Side)
		return domain.Trade{}, fmt.Errorf("%w: %s", ErrNoOpenPosition, o.Symbol)
	}

	qty := decimal.Min(o.Quantity, p.Quantity)
	price := s.FillPrice(domain.OrderSideSell, o.Price)
	commission := price.Mul(qty).Mul(s.cfg.Commission)
	proceeds := price.Mul(qty).Sub(commission)
	// Commission is deducted from proceeds and charged again against the
	// realized P&L.
	pnl := proceeds.Sub(qty.Mul(p.EntryPrice)).Sub(commission)

	s.cash = s.cash.Add(proceeds)
	p.RealizedPnL = p.RealizedPnL.Add(pnl)
	p.Quantity = p.Quantity.Sub(qty)
	if !p.Quantity.IsPositive() {
		delete(s.positions, o.Symbol)
	} else {
		p.MarketValue = p.Quantity.Mul(p.CurrentPrice)
		p.UnrealizedPnL = p.MarketValue.Sub(p.Quantity.Mul(p.EntryPrice))
	}

	t := domain.Trade{
		Symbol:     o.Symbol,
		Side:       domain.OrderSideSell,
		Quantity:   qty,
		Price:      price,
		Timestamp:  o.Timestamp,
		Commission: commission,
		PnL:        &pnl,
	}
	s.trades = append(s.trades, t)
	return t, nil
}
