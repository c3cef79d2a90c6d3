// Package history mirrors completed trades and scan summaries into
// Postgres for offline analysis. Writes are asynchronous and lossy under
// backpressure; the sqlite store stays the source of truth.
package history

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"octo-arb-bot/internal/config"
)

const (
	writeTimeout = 3 * time.Second
	queueSize    = 256
)

// ClosedTrade is one recorded close tranche.
type ClosedTrade struct {
	Time          time.Time
	Ticker        string
	SpotExchange  string
	HedgeExchange string
	SpotCost      float64
	HedgeCost     float64
	SpotPrice     float64
	HedgePrice    float64
	Quantity      float64
	Fee           float64
	Profit        float64
}

// ScanSummary is one scout cycle.
type ScanSummary struct {
	Time       time.Time
	Candidates int
	Created    int
	Active     int
}

// Writer is nil-safe: a disabled config yields a nil writer whose methods
// all no-op, so callers never branch on enablement.
type Writer struct {
	db        *sql.DB
	log       *zap.Logger
	trades    chan ClosedTrade
	scans     chan ScanSummary
	started   atomic.Bool
	dropTrade atomic.Uint64
	dropScan  atomic.Uint64
}

func New(cfg config.HistoryConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("history dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := &Writer{
		db:     db,
		log:    log,
		trades: make(chan ClosedTrade, queueSize),
		scans:  make(chan ScanSummary, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueTrade(trade ClosedTrade) {
	if w == nil {
		return
	}
	select {
	case w.trades <- trade:
	default:
		if w.dropTrade.Add(1) == 1 && w.log != nil {
			w.log.Warn("history trade queue full")
		}
	}
}

func (w *Writer) EnqueueScan(summary ScanSummary) {
	if w == nil {
		return
	}
	select {
	case w.scans <- summary:
	default:
		if w.dropScan.Add(1) == 1 && w.log != nil {
			w.log.Warn("history scan queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case trade := <-w.trades:
			w.writeTrade(ctx, trade)
		case summary := <-w.scans:
			w.writeScan(ctx, summary)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("history db not initialized")
	}
	if err := w.exec(ctx, `CREATE TABLE IF NOT EXISTS closed_trades (
		ts TIMESTAMPTZ NOT NULL,
		ticker TEXT NOT NULL,
		spot_exchange TEXT NOT NULL,
		hedge_exchange TEXT NOT NULL,
		spot_cost DOUBLE PRECISION NOT NULL,
		hedge_cost DOUBLE PRECISION NOT NULL,
		spot_price DOUBLE PRECISION NOT NULL,
		hedge_price DOUBLE PRECISION NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		fee DOUBLE PRECISION NOT NULL,
		profit DOUBLE PRECISION NOT NULL
	)`); err != nil {
		return err
	}
	return w.exec(ctx, `CREATE TABLE IF NOT EXISTS scan_summaries (
		ts TIMESTAMPTZ NOT NULL,
		candidates INTEGER NOT NULL,
		created INTEGER NOT NULL,
		active INTEGER NOT NULL
	)`)
}

func (w *Writer) writeTrade(ctx context.Context, trade ClosedTrade) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, `INSERT INTO closed_trades (
		ts, ticker, spot_exchange, hedge_exchange, spot_cost, hedge_cost,
		spot_price, hedge_price, quantity, fee, profit
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		trade.Time, trade.Ticker, trade.SpotExchange, trade.HedgeExchange,
		trade.SpotCost, trade.HedgeCost, trade.SpotPrice, trade.HedgePrice,
		trade.Quantity, trade.Fee, trade.Profit,
	)
	if err != nil && w.log != nil {
		w.log.Warn("history trade insert failed", zap.Error(err))
	}
}

func (w *Writer) writeScan(ctx context.Context, summary ScanSummary) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, `INSERT INTO scan_summaries (
		ts, candidates, created, active
	) VALUES ($1,$2,$3,$4)`,
		summary.Time, summary.Candidates, summary.Created, summary.Active,
	)
	if err != nil && w.log != nil {
		w.log.Warn("history scan insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}
