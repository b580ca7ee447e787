package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// IsValid reports whether the side is one of the two supported directions.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// TradeStatus represents the lifecycle state of a trade in the ledger.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "OPEN"
	StatusClosed TradeStatus = "CLOSED"
)

// Trade is a single trade recorded in the ledger.
type Trade struct {
	ID          uuid.UUID       `json:"id"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	Quantity    decimal.Decimal `json:"quantity"`
	Status      TradeStatus     `json:"status"`
	ExitPrice   decimal.Decimal `json:"exit_price,omitempty"`
	RealizedPnL decimal.Decimal `json:"realized_pnl,omitempty"`
	OpenedAt    time.Time       `json:"opened_at"`
	ClosedAt    time.Time       `json:"closed_at,omitempty"`
}

// IsWin reports whether a closed trade realized a profit.
func (t Trade) IsWin() bool {
	return t.Status == StatusClosed && t.RealizedPnL.IsPositive()
}

// Ledger is the trade ledger collaborator consumed by the risk engine.
// Implementations must be safe for concurrent use: the control loop reads
// trade data while trade lifecycle events arrive from the trading engine.
type Ledger interface {
	// ListOpenTrades returns all currently open trades.
	ListOpenTrades(ctx context.Context) ([]Trade, error)

	// ListTradesClosedOn returns trades closed on the given calendar day (UTC).
	ListTradesClosedOn(ctx context.Context, day time.Time) ([]Trade, error)

	// ListClosedTrades returns the most recently closed trades, newest first,
	// up to limit entries.
	ListClosedTrades(ctx context.Context, limit int) ([]Trade, error)
}
