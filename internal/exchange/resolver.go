package exchange

import (
	"context"
	"fmt"

	"github.com/quantera/riskguard/internal/ledger"
)

// LedgerResolver resolves trade IDs to symbols by consulting the trade
// ledger's open trades.
type LedgerResolver struct {
	ledger ledger.Ledger
}

// NewLedgerResolver creates a resolver backed by the given ledger.
func NewLedgerResolver(lg ledger.Ledger) *LedgerResolver {
	return &LedgerResolver{ledger: lg}
}

// SymbolForTrade implements SymbolResolver.
func (r *LedgerResolver) SymbolForTrade(ctx context.Context, tradeID string) (string, error) {
	open, err := r.ledger.ListOpenTrades(ctx)
	if err != nil {
		return "", fmt.Errorf("list open trades: %w", err)
	}
	for _, trade := range open {
		if trade.ID.String() == tradeID {
			return trade.Symbol, nil
		}
	}
	return "", fmt.Errorf("no open trade with id %s", tradeID)
}
