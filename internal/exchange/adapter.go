package exchange

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantera/riskguard/internal/errors"
	"github.com/quantera/riskguard/internal/exchange/bybit"
)

// SymbolResolver maps a trade ID to its exchange symbol. The ledger owns that
// mapping; the exchange adapter only needs the lookup.
type SymbolResolver interface {
	SymbolForTrade(ctx context.Context, tradeID string) (string, error)
}

// BybitAdapter adapts the Bybit client to the collaborator interfaces the
// risk engine consumes.
type BybitAdapter struct {
	client   *bybit.Client
	resolver SymbolResolver
}

// NewBybitAdapter creates an adapter around a configured Bybit client.
func NewBybitAdapter(client *bybit.Client, resolver SymbolResolver) *BybitAdapter {
	return &BybitAdapter{
		client:   client,
		resolver: resolver,
	}
}

// LatestPrice implements MarketData. Transient failures are reported as
// ErrPriceUnavailable so the engine skips the trade for this cycle.
func (a *BybitAdapter) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var price decimal.Decimal

	err := a.client.Retry(ctx, func() error {
		var err error
		price, err = a.client.LatestPrice(ctx, symbol)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, symbol, err)
	}

	return price, nil
}

// SubmitStopLoss implements StopOrderExecutor. An error means the stop is not
// live on the exchange and the caller must not commit the adjustment.
func (a *BybitAdapter) SubmitStopLoss(ctx context.Context, tradeID string, stopPrice decimal.Decimal) error {
	symbol, err := a.resolver.SymbolForTrade(ctx, tradeID)
	if err != nil {
		return errors.NewLedgerError("exchange", "resolve_symbol",
			fmt.Errorf("trade %s: %w", tradeID, err))
	}

	positionIdx := a.positionIdxFor(ctx, symbol)
	err = a.client.Retry(ctx, func() error {
		return a.client.SetStopLoss(ctx, symbol, positionIdx, stopPrice)
	})
	if err != nil {
		return errors.NewOrderError("exchange", "submit_stop_loss", err)
	}
	return nil
}

// positionIdxFor looks up the position index for a symbol. One-way mode
// positions report index 0; hedge mode needs the index of the actual leg.
func (a *BybitAdapter) positionIdxFor(ctx context.Context, symbol string) int {
	positions, err := a.client.GetPositions(ctx, symbol)
	if err != nil || len(positions) == 0 {
		return 0
	}
	return positions[0].PositionIdx
}
