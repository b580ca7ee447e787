package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantera/riskguard/internal/exchange"
	"github.com/quantera/riskguard/internal/ledger"
)

// fakeMarket serves fixed prices and can simulate transient outages per
// symbol.
type fakeMarket struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	down   map[string]bool
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		prices: make(map[string]decimal.Decimal),
		down:   make(map[string]bool),
	}
}

func (f *fakeMarket) setPrice(symbol string, price decimal.Decimal) {
	f.mu.Lock()
	f.prices[symbol] = price
	f.mu.Unlock()
}

func (f *fakeMarket) setDown(symbol string, down bool) {
	f.mu.Lock()
	f.down[symbol] = down
	f.mu.Unlock()
}

func (f *fakeMarket) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[symbol] {
		return decimal.Zero, fmt.Errorf("%w: %s", exchange.ErrPriceUnavailable, symbol)
	}
	price, ok := f.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", exchange.ErrPriceUnavailable, symbol)
	}
	return price, nil
}

// fakeExecutor records stop submissions and can be told to fail.
type fakeExecutor struct {
	mu       sync.Mutex
	fail     bool
	submits  []decimal.Decimal
	tradeIDs []string
}

func (f *fakeExecutor) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *fakeExecutor) SubmitStopLoss(ctx context.Context, tradeID string, stopPrice decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("stop submission rejected for trade %s", tradeID)
	}
	f.submits = append(f.submits, stopPrice)
	f.tradeIDs = append(f.tradeIDs, tradeID)
	return nil
}

func (f *fakeExecutor) submitted() []decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]decimal.Decimal, len(f.submits))
	copy(out, f.submits)
	return out
}

// failingLedger simulates a ledger outage on every call.
type failingLedger struct{}

func (failingLedger) ListOpenTrades(ctx context.Context) ([]ledger.Trade, error) {
	return nil, fmt.Errorf("ledger unavailable")
}

func (failingLedger) ListTradesClosedOn(ctx context.Context, day time.Time) ([]ledger.Trade, error) {
	return nil, fmt.Errorf("ledger unavailable")
}

func (failingLedger) ListClosedTrades(ctx context.Context, limit int) ([]ledger.Trade, error) {
	return nil, fmt.Errorf("ledger unavailable")
}

// fakeNotifier records alerts for assertions.
type fakeNotifier struct {
	mu     sync.Mutex
	alerts []string
}

func (f *fakeNotifier) SendAlert(level, message string) error {
	f.mu.Lock()
	f.alerts = append(f.alerts, level+": "+message)
	f.mu.Unlock()
	return nil
}

func (f *fakeNotifier) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.alerts))
	copy(out, f.alerts)
	return out
}
