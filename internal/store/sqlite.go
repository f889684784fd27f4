package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"algotrader/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS backtests (
	id                TEXT PRIMARY KEY,
	strategy_name     TEXT NOT NULL,
	symbol            TEXT NOT NULL,
	start_date        INTEGER NOT NULL,
	end_date          INTEGER NOT NULL,
	initial_capital   TEXT NOT NULL,
	final_capital     TEXT NOT NULL,
	total_return      REAL NOT NULL,
	annualized_return REAL NOT NULL,
	max_drawdown      REAL NOT NULL,
	sharpe_ratio      REAL NOT NULL,
	total_trades      INTEGER NOT NULL,
	win_rate          REAL NOT NULL,
	rejections        TEXT NOT NULL,
	created_at        INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS backtest_trades (
	backtest_id TEXT NOT NULL REFERENCES backtests(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	quantity    TEXT NOT NULL,
	price       TEXT NOT NULL,
	ts          INTEGER NOT NULL,
	commission  TEXT NOT NULL,
	pnl         TEXT,
	PRIMARY KEY (backtest_id, seq)
);
CREATE TABLE IF NOT EXISTS backtest_equity (
	backtest_id TEXT NOT NULL REFERENCES backtests(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	ts          INTEGER NOT NULL,
	total_value TEXT NOT NULL,
	cash        TEXT NOT NULL,
	positions   TEXT NOT NULL,
	PRIMARY KEY (backtest_id, seq)
);
`

// SQLiteStore implements ResultStore backed by a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveResult inserts the result, its trades and portfolio history in one
// transaction.
func (s *SQLiteStore) SaveResult(ctx context.Context, r *domain.BacktestResult) error {
	if r.ID == "" {
		return errors.New("store: result has no ID")
	}
	rejections, err := json.Marshal(r.Rejections)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO backtests (
		id, strategy_name, symbol, start_date, end_date, initial_capital, final_capital,
		total_return, annualized_return, max_drawdown, sharpe_ratio, total_trades, win_rate,
		rejections, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StrategyName, r.Symbol, r.StartDate.UnixMilli(), r.EndDate.UnixMilli(),
		r.InitialCapital.String(), r.FinalCapital.String(),
		r.TotalReturn, r.AnnualizedReturn, r.MaxDrawdown, r.SharpeRatio, r.TotalTrades, r.WinRate,
		string(rejections), s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting backtest %s: %w", r.ID, err)
	}

	for i, t := range r.Trades {
		var pnl sql.NullString
		if t.PnL != nil {
			pnl = sql.NullString{String: t.PnL.String(), Valid: true}
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO backtest_trades
			(backtest_id, seq, symbol, side, quantity, price, ts, commission, pnl)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, i, t.Symbol, string(t.Side), t.Quantity.String(), t.Price.String(),
			t.Timestamp.UnixMilli(), t.Commission.String(), pnl,
		)
		if err != nil {
			return fmt.Errorf("inserting trade %d: %w", i, err)
		}
	}

	for i, snap := range r.PortfolioValues {
		positions, err := json.Marshal(snap.Positions)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO backtest_equity
			(backtest_id, seq, ts, total_value, cash, positions)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, i, snap.Timestamp.UnixMilli(), snap.TotalValue.String(), snap.Cash.String(), string(positions),
		)
		if err != nil {
			return fmt.Errorf("inserting snapshot %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetResult loads a full result by ID. It returns ErrNotFound for unknown IDs.
func (s *SQLiteStore) GetResult(ctx context.Context, id string) (*domain.BacktestResult, error) {
	r := &domain.BacktestResult{ID: id}
	var (
		start, end, created int64
		initial, final      string
		rejections          string
	)
	err := s.db.QueryRowContext(ctx, `SELECT strategy_name, symbol, start_date, end_date,
		initial_capital, final_capital, total_return, annualized_return, max_drawdown,
		sharpe_ratio, total_trades, win_rate, rejections, created_at
		FROM backtests WHERE id = ?`, id).Scan(
		&r.StrategyName, &r.Symbol, &start, &end, &initial, &final,
		&r.TotalReturn, &r.AnnualizedReturn, &r.MaxDrawdown, &r.SharpeRatio,
		&r.TotalTrades, &r.WinRate, &rejections, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.StartDate = time.UnixMilli(start).UTC()
	r.EndDate = time.UnixMilli(end).UTC()
	if r.InitialCapital, err = decimal.NewFromString(initial); err != nil {
		return nil, err
	}
	if r.FinalCapital, err = decimal.NewFromString(final); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rejections), &r.Rejections); err != nil {
		return nil, fmt.Errorf("decoding rejections: %w", err)
	}

	if r.Trades, err = s.loadTrades(ctx, id); err != nil {
		return nil, err
	}
	if r.PortfolioValues, err = s.loadEquity(ctx, id); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) loadTrades(ctx context.Context, id string) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, side, quantity, price, ts, commission, pnl
		FROM backtest_trades WHERE backtest_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := []domain.Trade{}
	for rows.Next() {
		var (
			t                      domain.Trade
			side, qty, price, comm string
			ts                     int64
			pnl                    sql.NullString
		)
		if err := rows.Scan(&t.Symbol, &side, &qty, &price, &ts, &comm, &pnl); err != nil {
			return nil, err
		}
		t.Side = domain.OrderSide(side)
		t.Timestamp = time.UnixMilli(ts).UTC()
		if t.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, err
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if t.Commission, err = decimal.NewFromString(comm); err != nil {
			return nil, err
		}
		if pnl.Valid {
			v, err := decimal.NewFromString(pnl.String)
			if err != nil {
				return nil, err
			}
			t.PnL = &v
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *SQLiteStore) loadEquity(ctx context.Context, id string) ([]domain.PortfolioSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ts, total_value, cash, positions
		FROM backtest_equity WHERE backtest_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []domain.PortfolioSnapshot{}
	for rows.Next() {
		var (
			snap             domain.PortfolioSnapshot
			ts               int64
			total, cash, pos string
		)
		if err := rows.Scan(&ts, &total, &cash, &pos); err != nil {
			return nil, err
		}
		snap.Timestamp = time.UnixMilli(ts).UTC()
		if snap.TotalValue, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		if snap.Cash, err = decimal.NewFromString(cash); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(pos), &snap.Positions); err != nil {
			return nil, fmt.Errorf("decoding positions: %w", err)
		}
		history = append(history, snap)
	}
	return history, rows.Err()
}

// ListResults returns the most recently created result summaries.
func (s *SQLiteStore) ListResults(ctx context.Context, limit int) ([]ResultSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, strategy_name, symbol, start_date, end_date,
		total_return, sharpe_ratio, max_drawdown, created_at
		FROM backtests ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ResultSummary
	for rows.Next() {
		var (
			rs                  ResultSummary
			start, end, created int64
		)
		if err := rows.Scan(&rs.ID, &rs.StrategyName, &rs.Symbol, &start, &end,
			&rs.TotalReturn, &rs.SharpeRatio, &rs.MaxDrawdown, &created); err != nil {
			return nil, err
		}
		rs.StartDate = time.UnixMilli(start).UTC()
		rs.EndDate = time.UnixMilli(end).UTC()
		rs.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, rs)
	}
	return out, rows.Err()
}
