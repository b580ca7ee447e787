package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryLedger is an in-memory Ledger implementation. The production system
// keeps trades in a database behind the same contract; this implementation
// backs tests and paper-trading runs where no persistence is configured.
type MemoryLedger struct {
	mu     sync.RWMutex
	trades map[uuid.UUID]Trade
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		trades: make(map[uuid.UUID]Trade),
	}
}

// OpenTrade records a new open trade and returns its assigned ID.
func (l *MemoryLedger) OpenTrade(symbol string, side Side, entryPrice, quantity decimal.Decimal) (Trade, error) {
	if !side.IsValid() {
		return Trade{}, fmt.Errorf("invalid trade side %q", side)
	}

	trade := Trade{
		ID:         uuid.New(),
		Symbol:     symbol,
		Side:       side,
		EntryPrice: entryPrice,
		Quantity:   quantity,
		Status:     StatusOpen,
		OpenedAt:   time.Now().UTC(),
	}

	l.mu.Lock()
	l.trades[trade.ID] = trade
	l.mu.Unlock()

	return trade, nil
}

// CloseTrade marks a trade as closed with the given exit price, computing
// realized P&L from the entry price, quantity and side.
func (l *MemoryLedger) CloseTrade(id uuid.UUID, exitPrice decimal.Decimal, closedAt time.Time) (Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	trade, ok := l.trades[id]
	if !ok {
		return Trade{}, fmt.Errorf("trade %s not found", id)
	}
	if trade.Status == StatusClosed {
		return Trade{}, fmt.Errorf("trade %s already closed", id)
	}

	pnl := exitPrice.Sub(trade.EntryPrice).Mul(trade.Quantity)
	if trade.Side == SideSell {
		pnl = pnl.Neg()
	}

	trade.Status = StatusClosed
	trade.ExitPrice = exitPrice
	trade.RealizedPnL = pnl
	trade.ClosedAt = closedAt.UTC()
	l.trades[id] = trade

	return trade, nil
}

// ListOpenTrades returns all currently open trades.
func (l *MemoryLedger) ListOpenTrades(ctx context.Context) ([]Trade, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var open []Trade
	for _, t := range l.trades {
		if t.Status == StatusOpen {
			open = append(open, t)
		}
	}
	return open, nil
}

// ListTradesClosedOn returns trades closed on the given calendar day (UTC).
func (l *MemoryLedger) ListTradesClosedOn(ctx context.Context, day time.Time) ([]Trade, error) {
	y, m, d := day.UTC().Date()

	l.mu.RLock()
	defer l.mu.RUnlock()

	var closed []Trade
	for _, t := range l.trades {
		if t.Status != StatusClosed {
			continue
		}
		cy, cm, cd := t.ClosedAt.Date()
		if cy == y && cm == m && cd == d {
			closed = append(closed, t)
		}
	}
	return closed, nil
}

// ListClosedTrades returns the most recently closed trades, newest first.
func (l *MemoryLedger) ListClosedTrades(ctx context.Context, limit int) ([]Trade, error) {
	l.mu.RLock()
	var closed []Trade
	for _, t := range l.trades {
		if t.Status == StatusClosed {
			closed = append(closed, t)
		}
	}
	l.mu.RUnlock()

	sort.Slice(closed, func(i, j int) bool {
		return closed[i].ClosedAt.After(closed[j].ClosedAt)
	})

	if limit > 0 && len(closed) > limit {
		closed = closed[:limit]
	}
	return closed, nil
}
