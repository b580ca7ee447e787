package exchange

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable is returned when a price cannot be fetched right now.
// The risk engine treats it as transient: skip the trade this cycle and retry.
var ErrPriceUnavailable = errors.New("price unavailable")

// MarketData is the market-data collaborator consumed by the risk engine.
type MarketData interface {
	// LatestPrice returns the latest traded price for a symbol.
	// Returns an error wrapping ErrPriceUnavailable on transient failures.
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// StopOrderExecutor is the order-execution collaborator. It owns the mapping
// from trade IDs to exchange positions; the risk engine only decides target
// stop prices. A returned error means the stop is NOT live on the exchange
// and the engine must not commit the adjustment.
type StopOrderExecutor interface {
	SubmitStopLoss(ctx context.Context, tradeID string, stopPrice decimal.Decimal) error
}
