package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"octo-arb-bot/internal/state"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// the store is shared between the scout and every engine goroutine
	db.SetMaxOpenConns(1)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL,
			spot_exchanges TEXT NOT NULL,
			hedge_exchanges TEXT NOT NULL,
			status TEXT NOT NULL,
			max_size REAL NOT NULL,
			control_size REAL NOT NULL,
			tx_size REAL NOT NULL,
			min_open_profit REAL NOT NULL,
			min_close_profit REAL NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			position_id INTEGER NOT NULL,
			side TEXT NOT NULL,
			spot_exchange TEXT NOT NULL,
			hedge_exchange TEXT NOT NULL,
			spot_cost_price REAL NOT NULL,
			hedge_cost_price REAL NOT NULL,
			spot_price REAL NOT NULL,
			hedge_price REAL NOT NULL,
			spot_quantity REAL NOT NULL,
			hedge_quantity REAL NOT NULL,
			fee REAL NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_position ON transactions (position_id, created_at, id)`,
		`CREATE TABLE IF NOT EXISTS blacklist (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL,
			spot_exchange TEXT NOT NULL,
			hedge_exchange TEXT NOT NULL,
			until INTEGER NOT NULL,
			UNIQUE (ticker, spot_exchange, hedge_exchange)
		)`,
		`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreatePosition(ctx context.Context, pos *state.Position) error {
	if pos.Status == "" {
		pos.Status = state.PositionActive
	}
	if pos.CreatedAt.IsZero() {
		pos.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO positions (ticker, spot_exchanges, hedge_exchanges, status, max_size, control_size, tx_size, min_open_profit, min_close_profit, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pos.Ticker,
		strings.Join(pos.SpotExchanges, ","),
		strings.Join(pos.HedgeExchanges, ","),
		string(pos.Status),
		pos.MaxSize, pos.ControlSize, pos.TxSize,
		pos.MinOpenProfit, pos.MinCloseProfit,
		pos.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return err
	}
	pos.ID, err = res.LastInsertId()
	return err
}

func (s *Store) Position(ctx context.Context, id int64) (state.Position, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, ticker, spot_exchanges, hedge_exchanges, status, max_size, control_size, tx_size, min_open_profit, min_close_profit, created_at
		 FROM positions WHERE id = ?`, id)
	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return state.Position{}, false, nil
		}
		return state.Position{}, false, err
	}
	return pos, true, nil
}

func (s *Store) ActivePositions(ctx context.Context) ([]state.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ticker, spot_exchanges, hedge_exchanges, status, max_size, control_size, tx_size, min_open_profit, min_close_profit, created_at
		 FROM positions WHERE status = ? ORDER BY id`, string(state.PositionActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []state.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePositionStatus(ctx context.Context, id int64, status state.PositionStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE positions SET status = ? WHERE id = ?`, string(status), id)
	return err
}

func (s *Store) AppendTransaction(ctx context.Context, tx *state.Transaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (position_id, side, spot_exchange, hedge_exchange, spot_cost_price, hedge_cost_price, spot_price, hedge_price, spot_quantity, hedge_quantity, fee, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.PositionID, string(tx.Side), tx.SpotExchange, tx.HedgeExchange,
		tx.SpotCostPrice, tx.HedgeCostPrice, tx.SpotPrice, tx.HedgePrice,
		tx.SpotQuantity, tx.HedgeQuantity, tx.Fee, tx.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return err
	}
	tx.ID, err = res.LastInsertId()
	return err
}

func (s *Store) Transactions(ctx context.Context, positionID int64) ([]state.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, position_id, side, spot_exchange, hedge_exchange, spot_cost_price, hedge_cost_price, spot_price, hedge_price, spot_quantity, hedge_quantity, fee, created_at
		 FROM transactions WHERE position_id = ? ORDER BY created_at, id`, positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []state.Transaction
	for rows.Next() {
		var tx state.Transaction
		var side string
		var createdAt int64
		if err := rows.Scan(&tx.ID, &tx.PositionID, &side, &tx.SpotExchange, &tx.HedgeExchange,
			&tx.SpotCostPrice, &tx.HedgeCostPrice, &tx.SpotPrice, &tx.HedgePrice,
			&tx.SpotQuantity, &tx.HedgeQuantity, &tx.Fee, &createdAt); err != nil {
			return nil, err
		}
		tx.Side = state.TxSide(side)
		tx.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *Store) Blacklisted(ctx context.Context, ticker, spotExchange, hedgeExchange string, now time.Time) (bool, error) {
	var until int64
	err := s.db.QueryRowContext(ctx,
		`SELECT until FROM blacklist WHERE ticker = ? AND spot_exchange = ? AND hedge_exchange = ?`,
		ticker, spotExchange, hedgeExchange).Scan(&until)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return now.UnixMilli() < until, nil
}

func (s *Store) AddBlacklist(ctx context.Context, ticker, spotExchange, hedgeExchange string, until time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blacklist (ticker, spot_exchange, hedge_exchange, until) VALUES (?, ?, ?, ?)
		 ON CONFLICT(ticker, spot_exchange, hedge_exchange) DO UPDATE SET until = excluded.until`,
		ticker, spotExchange, hedgeExchange, until.UnixMilli())
	return err
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (state.Position, error) {
	var pos state.Position
	var spotExchanges, hedgeExchanges, status string
	var createdAt int64
	if err := row.Scan(&pos.ID, &pos.Ticker, &spotExchanges, &hedgeExchanges, &status,
		&pos.MaxSize, &pos.ControlSize, &pos.TxSize, &pos.MinOpenProfit, &pos.MinCloseProfit, &createdAt); err != nil {
		return state.Position{}, err
	}
	pos.SpotExchanges = splitList(spotExchanges)
	pos.HedgeExchanges = splitList(hedgeExchanges)
	pos.Status = state.PositionStatus(status)
	pos.CreatedAt = time.UnixMilli(createdAt).UTC()
	return pos, nil
}

func splitList(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}

var _ state.Store = (*Store)(nil)
