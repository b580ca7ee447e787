package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantera/riskguard/internal/config"
	"github.com/quantera/riskguard/internal/ledger"
)

func newTestAggregator(t *testing.T) (*RiskMetricsAggregator, *ledger.MemoryLedger, *fakeMarket) {
	t.Helper()
	cfg := config.Load()
	require.NoError(t, cfg.Validate())
	lg := ledger.NewMemoryLedger()
	market := newFakeMarket()
	return NewRiskMetricsAggregator(lg, market, cfg, nil), lg, market
}

// TestRecompute_EmptyLedger tests the all-zero snapshot of a fresh account
func TestRecompute_EmptyLedger(t *testing.T) {
	agg, _, _ := newTestAggregator(t)

	metrics, err := agg.Recompute(context.Background())
	require.NoError(t, err)
	assert.True(t, metrics.TotalExposure.IsZero())
	assert.True(t, metrics.DailyPnL.IsZero())
	assert.Equal(t, 0, metrics.ActiveTrades)
	assert.Equal(t, 0.0, metrics.WinRate)
	assert.Equal(t, 0.0, metrics.ProfitFactor)
	assert.True(t, metrics.Equity.Equal(d("10000")))
}

// TestRecompute_UnrealizedExposure tests unrealized P&L summation across
// open trades, signed by side
func TestRecompute_UnrealizedExposure(t *testing.T) {
	agg, lg, market := newTestAggregator(t)

	_, err := lg.OpenTrade("BTCUSDT", ledger.SideBuy, d("100"), d("1"))
	require.NoError(t, err)
	_, err = lg.OpenTrade("ETHUSDT", ledger.SideSell, d("50"), d("2"))
	require.NoError(t, err)

	market.setPrice("BTCUSDT", d("110")) // +10 unrealized
	market.setPrice("ETHUSDT", d("48"))  // short gains (50-48)*2 = +4

	metrics, err := agg.Recompute(context.Background())
	require.NoError(t, err)
	assert.True(t, metrics.TotalExposure.Equal(d("14")), "got %s", metrics.TotalExposure)
	assert.Equal(t, 2, metrics.ActiveTrades)
	assert.True(t, metrics.Equity.Equal(d("10014")))
}

// TestRecompute_SkipsUnavailablePrice tests that one symbol's outage only
// drops that trade from the cycle
func TestRecompute_SkipsUnavailablePrice(t *testing.T) {
	agg, lg, market := newTestAggregator(t)

	_, err := lg.OpenTrade("BTCUSDT", ledger.SideBuy, d("100"), d("1"))
	require.NoError(t, err)
	_, err = lg.OpenTrade("ETHUSDT", ledger.SideBuy, d("50"), d("1"))
	require.NoError(t, err)

	market.setPrice("BTCUSDT", d("105"))
	market.setDown("ETHUSDT", true)

	metrics, err := agg.Recompute(context.Background())
	require.NoError(t, err)
	assert.True(t, metrics.TotalExposure.Equal(d("5")), "got %s", metrics.TotalExposure)
	assert.Equal(t, 2, metrics.ActiveTrades)
}

// TestRecompute_DailyPnLAndWinRate tests realized daily P&L, win rate and
// profit factor from closed trades
func TestRecompute_DailyPnLAndWinRate(t *testing.T) {
	agg, lg, _ := newTestAggregator(t)
	now := time.Now().UTC()

	win, err := lg.OpenTrade("BTCUSDT", ledger.SideBuy, d("100"), d("1"))
	require.NoError(t, err)
	_, err = lg.CloseTrade(win.ID, d("120"), now) // +20
	require.NoError(t, err)

	loss, err := lg.OpenTrade("ETHUSDT", ledger.SideBuy, d("50"), d("2"))
	require.NoError(t, err)
	_, err = lg.CloseTrade(loss.ID, d("45"), now) // -10
	require.NoError(t, err)

	metrics, err := agg.Recompute(context.Background())
	require.NoError(t, err)
	assert.True(t, metrics.DailyPnL.Equal(d("10")), "got %s", metrics.DailyPnL)
	assert.InDelta(t, 0.5, metrics.WinRate, 1e-9)
	assert.InDelta(t, 2.0, metrics.ProfitFactor, 1e-9)
	assert.True(t, metrics.Equity.Equal(d("10010")))
}

// TestRecompute_ProfitFactorSentinel tests the sentinel when there are gains
// and no losses
func TestRecompute_ProfitFactorSentinel(t *testing.T) {
	agg, lg, _ := newTestAggregator(t)

	trade, err := lg.OpenTrade("BTCUSDT", ledger.SideBuy, d("100"), d("1"))
	require.NoError(t, err)
	_, err = lg.CloseTrade(trade.ID, d("110"), time.Now().UTC())
	require.NoError(t, err)

	metrics, err := agg.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, profitFactorSentinel, metrics.ProfitFactor)
	assert.Equal(t, 1.0, metrics.WinRate)
}

// TestRecompute_DrawdownFromEquityCurve tests peak-to-trough drawdown
// tracking across cycles
func TestRecompute_DrawdownFromEquityCurve(t *testing.T) {
	agg, lg, market := newTestAggregator(t)

	trade, err := lg.OpenTrade("BTCUSDT", ledger.SideBuy, d("100"), d("10"))
	require.NoError(t, err)

	// Rally: equity peaks at 11000
	market.setPrice("BTCUSDT", d("200"))
	metrics, err := agg.Recompute(context.Background())
	require.NoError(t, err)
	assert.True(t, metrics.MaxDrawdown.IsZero())

	// Crash: trade closes at a loss, equity 9500
	_, err = lg.CloseTrade(trade.ID, d("50"), time.Now().UTC())
	require.NoError(t, err)
	metrics, err = agg.Recompute(context.Background())
	require.NoError(t, err)

	// (11000 - 9500) / 11000
	expected := d("1500").Div(d("11000"))
	assert.True(t, metrics.MaxDrawdown.Equal(expected), "got %s, want %s", metrics.MaxDrawdown, expected)
}

// TestRiskScore_Saturation tests the weighted blend at full saturation
func TestRiskScore_Saturation(t *testing.T) {
	agg, lg, market := newTestAggregator(t)

	// Five open losing trades saturate concurrency
	for i := 0; i < 5; i++ {
		_, err := lg.OpenTrade("BTCUSDT", ledger.SideBuy, d("100"), d("1"))
		require.NoError(t, err)
	}
	market.setPrice("BTCUSDT", d("100"))

	// One big realized loss saturates daily loss (limit = 5% of 10000)
	trade, err := lg.OpenTrade("ETHUSDT", ledger.SideBuy, d("1000"), d("1"))
	require.NoError(t, err)
	_, err = lg.CloseTrade(trade.ID, d("200"), time.Now().UTC()) // -800
	require.NoError(t, err)
	market.setPrice("ETHUSDT", d("200"))

	metrics, err := agg.Recompute(context.Background())
	require.NoError(t, err)

	// concurrency 5/5 = 1, loss 800/460 clamped to 1, win rate 0 -> inverse 1
	assert.InDelta(t, 1.0, metrics.RiskScore, 1e-9)
}

// TestSnapshot_NeverNil tests that readers always get a snapshot before the
// first recompute
func TestSnapshot_NeverNil(t *testing.T) {
	agg, _, _ := newTestAggregator(t)
	snap := agg.Snapshot()
	assert.True(t, snap.Equity.Equal(d("10000")))
}
