package state

import (
	"context"
	"time"
)

type PositionStatus string

const (
	PositionActive  PositionStatus = "active"
	PositionStopped PositionStatus = "stopped"
)

type TxSide string

const (
	TxOpen  TxSide = "open"
	TxClose TxSide = "close"
)

// Position is one managed ticker. It is created by the scout and owned by a
// single engine instance; status may flip to stopped externally.
type Position struct {
	ID             int64
	Ticker         string
	SpotExchanges  []string
	HedgeExchanges []string
	Status         PositionStatus
	MaxSize        float64
	ControlSize    float64
	TxSize         float64
	MinOpenProfit  float64
	MinCloseProfit float64
	CreatedAt      time.Time
}

// Transaction is one two-legged fill recorded by an engine. Cost prices are
// the FIFO averages at execution time; fill prices are the achieved
// depth-weighted prices.
type Transaction struct {
	ID             int64
	PositionID     int64
	Side           TxSide
	SpotExchange   string
	HedgeExchange  string
	SpotCostPrice  float64
	HedgeCostPrice float64
	SpotPrice      float64
	HedgePrice     float64
	SpotQuantity   float64
	HedgeQuantity  float64
	Fee            float64
	CreatedAt      time.Time
}

// BlacklistEntry suppresses a (ticker, spot, hedge) triple until Until.
type BlacklistEntry struct {
	ID            int64
	Ticker        string
	SpotExchange  string
	HedgeExchange string
	Until         time.Time
}

type PositionStore interface {
	CreatePosition(ctx context.Context, pos *Position) error
	Position(ctx context.Context, id int64) (Position, bool, error)
	ActivePositions(ctx context.Context) ([]Position, error)
	UpdatePositionStatus(ctx context.Context, id int64, status PositionStatus) error
}

type TransactionStore interface {
	AppendTransaction(ctx context.Context, tx *Transaction) error
	Transactions(ctx context.Context, positionID int64) ([]Transaction, error)
}

type BlacklistStore interface {
	// Blacklisted reports whether the triple is suppressed at now.
	Blacklisted(ctx context.Context, ticker, spotExchange, hedgeExchange string, now time.Time) (bool, error)
	AddBlacklist(ctx context.Context, ticker, spotExchange, hedgeExchange string, until time.Time) error
}

type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Store is the full persistence surface the engines and the scout share.
type Store interface {
	PositionStore
	TransactionStore
	BlacklistStore
	KV
	Close() error
}
