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

func newTestManager(t *testing.T) (*Manager, *ledger.MemoryLedger, *fakeMarket, *fakeExecutor) {
	t.Helper()
	cfg := config.Load()
	cfg.CheckInterval = 10 * time.Millisecond
	require.NoError(t, cfg.Validate())

	lg := ledger.NewMemoryLedger()
	market := newFakeMarket()
	executor := &fakeExecutor{}
	manager := NewManager(cfg, ManagerDeps{
		Ledger:   lg,
		Market:   market,
		Executor: executor,
	})
	return manager, lg, market, executor
}

// TestUpdatePositionPrice_CommitsOnSuccess tests the full adjust-submit-
// commit path
func TestUpdatePositionPrice_CommitsOnSuccess(t *testing.T) {
	manager, _, _, executor := newTestManager(t)

	require.NoError(t, manager.InitializeTrailingStop("t1", d("100"), ledger.SideBuy))

	adj, err := manager.UpdatePositionPrice(context.Background(), "t1", d("101.5"))
	require.NoError(t, err)
	require.NotNil(t, adj)
	assert.True(t, adj.NewStop.Equal(d("100")))

	submits := executor.submitted()
	require.Len(t, submits, 1)
	assert.True(t, submits[0].Equal(d("100")))

	state, ok := manager.GetTrailingStopInfo("t1")
	require.True(t, ok)
	assert.True(t, state.CurrentStop.Equal(d("100")))
	assert.False(t, state.StopPending)
	assert.True(t, state.BreakevenTriggered)

	history := manager.AdjustmentHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "t1", history[0].TradeID)
}

// TestUpdatePositionPrice_RollsBackOnFailure tests that a failed submission
// leaves the confirmed stop untouched and the target pending
func TestUpdatePositionPrice_RollsBackOnFailure(t *testing.T) {
	manager, _, _, executor := newTestManager(t)
	executor.setFail(true)

	require.NoError(t, manager.InitializeTrailingStop("t1", d("100"), ledger.SideBuy))

	adj, err := manager.UpdatePositionPrice(context.Background(), "t1", d("101.5"))
	require.NoError(t, err)
	assert.Nil(t, adj, "a rolled back adjustment must not be reported as applied")

	state, ok := manager.GetTrailingStopInfo("t1")
	require.True(t, ok)
	assert.True(t, state.CurrentStop.Equal(d("98")))
	assert.True(t, state.StopPending)
	assert.True(t, state.PendingStop.Equal(d("100")))
	assert.Empty(t, manager.AdjustmentHistory())
}

// TestUpdatePositionPrice_UnknownTrade tests that updates for untracked
// trades are ignored without error
func TestUpdatePositionPrice_UnknownTrade(t *testing.T) {
	manager, _, _, _ := newTestManager(t)

	adj, err := manager.UpdatePositionPrice(context.Background(), "ghost", d("100"))
	assert.NoError(t, err)
	assert.Nil(t, adj)
}

// TestRun_SweepRetriesPendingStop tests that the control loop re-submits an
// uncommitted stop target once the exchange recovers
func TestRun_SweepRetriesPendingStop(t *testing.T) {
	manager, lg, market, executor := newTestManager(t)

	trade, err := lg.OpenTrade("BTCUSDT", ledger.SideBuy, d("100"), d("1"))
	require.NoError(t, err)
	id := trade.ID.String()
	market.setPrice("BTCUSDT", d("101.5"))

	// First submission fails, leaving the breakeven target pending
	executor.setFail(true)
	require.NoError(t, manager.InitializeTrailingStop(id, d("100"), ledger.SideBuy))
	_, err = manager.UpdatePositionPrice(context.Background(), id, d("101.5"))
	require.NoError(t, err)
	state, _ := manager.GetTrailingStopInfo(id)
	require.True(t, state.StopPending)

	// Exchange recovers; run the loop until the sweep commits the target
	executor.setFail(false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- manager.Run(ctx) }()

	require.Eventually(t, func() bool {
		state, ok := manager.GetTrailingStopInfo(id)
		return ok && !state.StopPending && state.CurrentStop.Equal(d("100"))
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

// TestRun_ReloadsOpenTrades tests that startup re-arms trailing stops for
// every open trade in the ledger
func TestRun_ReloadsOpenTrades(t *testing.T) {
	manager, lg, market, _ := newTestManager(t)

	a, err := lg.OpenTrade("BTCUSDT", ledger.SideBuy, d("100"), d("1"))
	require.NoError(t, err)
	b, err := lg.OpenTrade("ETHUSDT", ledger.SideSell, d("50"), d("2"))
	require.NoError(t, err)
	market.setPrice("BTCUSDT", d("100"))
	market.setPrice("ETHUSDT", d("50"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- manager.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, okA := manager.GetTrailingStopInfo(a.ID.String())
		_, okB := manager.GetTrailingStopInfo(b.ID.String())
		return okA && okB
	}, 2*time.Second, 10*time.Millisecond)

	// Closing a trade prunes its state on the next sweep
	_, err = lg.CloseTrade(b.ID, d("49"), time.Now().UTC())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := manager.GetTrailingStopInfo(b.ID.String())
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

// TestCheckRiskLimits_UsesLatestSnapshot tests Scenario E end to end: a big
// daily loss flows from the ledger through the aggregator into a rejection
func TestCheckRiskLimits_UsesLatestSnapshot(t *testing.T) {
	manager, lg, _, _ := newTestManager(t)

	// Realize a loss worth 6% of the account
	trade, err := lg.OpenTrade("BTCUSDT", ledger.SideBuy, d("1000"), d("1"))
	require.NoError(t, err)
	_, err = lg.CloseTrade(trade.ID, d("400"), time.Now().UTC())
	require.NoError(t, err)

	_, err = manager.aggregator.Recompute(context.Background())
	require.NoError(t, err)

	metrics := manager.GetRiskMetrics()
	assert.True(t, metrics.DailyPnL.Equal(d("-600")))

	allowed, reasons := manager.CheckRiskLimits(ProposedTrade{
		Symbol:     "ETHUSDT",
		Side:       ledger.SideBuy,
		EntryPrice: d("50"),
		Quantity:   d("1"),
	})
	assert.False(t, allowed)
	joined := ""
	for _, r := range reasons {
		joined += r + "\n"
	}
	assert.Contains(t, joined, "daily loss limit exceeded")
}

// TestTripEmergencyStop_BlocksAdmission tests the emergency stop flag end to
// end through the gate
func TestTripEmergencyStop_BlocksAdmission(t *testing.T) {
	manager, _, _, _ := newTestManager(t)

	assert.False(t, manager.EmergencyStopActive())
	manager.TripEmergencyStop("test condition")
	assert.True(t, manager.EmergencyStopActive())

	allowed, reasons := manager.CheckRiskLimits(ProposedTrade{
		Symbol:     "BTCUSDT",
		Side:       ledger.SideBuy,
		EntryPrice: d("100"),
		Quantity:   d("0.1"),
	})
	assert.False(t, allowed)
	assert.Contains(t, reasons, "emergency stop active")

	manager.ReleaseEmergencyStop()
	assert.False(t, manager.EmergencyStopActive())
}

// TestRunCycle_DailyLossBreachTripsEmergencyStop tests that a cycle whose
// metrics breach the daily loss limit trips the emergency stop automatically
func TestRunCycle_DailyLossBreachTripsEmergencyStop(t *testing.T) {
	manager, lg, _, _ := newTestManager(t)

	// A 600 loss closed today against 10000 starting equity breaches the
	// 5% daily loss limit
	trade, err := lg.OpenTrade("BTCUSDT", ledger.SideBuy, d("100"), d("10"))
	require.NoError(t, err)
	_, err = lg.CloseTrade(trade.ID, d("40"), time.Now().UTC())
	require.NoError(t, err)

	require.False(t, manager.EmergencyStopActive())
	manager.runCycle(context.Background())
	assert.True(t, manager.EmergencyStopActive(), "daily loss breach must trip the emergency stop")
}

// TestRunCycle_BreachIgnoredWithoutAutoStop tests that the same breach only
// reports when automatic mitigation is disabled
func TestRunCycle_BreachIgnoredWithoutAutoStop(t *testing.T) {
	cfg := config.Load()
	cfg.AutoEmergencyStop = false
	require.NoError(t, cfg.Validate())

	lg := ledger.NewMemoryLedger()
	manager := NewManager(cfg, ManagerDeps{
		Ledger:   lg,
		Market:   newFakeMarket(),
		Executor: &fakeExecutor{},
	})

	trade, err := lg.OpenTrade("BTCUSDT", ledger.SideBuy, d("100"), d("10"))
	require.NoError(t, err)
	_, err = lg.CloseTrade(trade.ID, d("40"), time.Now().UTC())
	require.NoError(t, err)

	manager.runCycle(context.Background())
	assert.False(t, manager.EmergencyStopActive())
}

// TestRunCycle_LedgerOutageTripsEmergencyStop tests that sustained ledger
// failures open the circuit and escalate to an emergency stop
func TestRunCycle_LedgerOutageTripsEmergencyStop(t *testing.T) {
	cfg := config.Load()
	require.NoError(t, cfg.Validate())

	notifier := &fakeNotifier{}
	manager := NewManager(cfg, ManagerDeps{
		Ledger:   failingLedger{},
		Market:   newFakeMarket(),
		Executor: &fakeExecutor{},
		Notifier: notifier,
	})

	// Each cycle fails the ledger breaker twice (metrics and sweep), so the
	// circuit opens within the failure threshold of five
	for i := 0; i < 5; i++ {
		manager.runCycle(context.Background())
	}

	assert.True(t, manager.EmergencyStopActive(), "open ledger circuit must trip the emergency stop")
	alerts := notifier.sent()
	require.NotEmpty(t, alerts)
	assert.Contains(t, alerts[0], "critical")
}

// TestCalculateOptimalPositionSize_Facade tests sizing through the manager
// facade
func TestCalculateOptimalPositionSize_Facade(t *testing.T) {
	manager, _, _, _ := newTestManager(t)

	qty := manager.CalculateOptimalPositionSize("BTCUSDT", d("100"), d("10000"))
	assert.False(t, qty.IsZero())
}
