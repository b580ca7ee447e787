package risk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantera/riskguard/internal/config"
	"github.com/quantera/riskguard/internal/exchange"
	"github.com/quantera/riskguard/internal/ledger"
	"github.com/quantera/riskguard/internal/logger"
	"github.com/quantera/riskguard/internal/monitoring"
	"github.com/quantera/riskguard/internal/notifications"
	"github.com/quantera/riskguard/internal/safety"
)

// adjustmentHistoryCap bounds the in-memory adjustment history exposed to
// dashboards.
const adjustmentHistoryCap = 100

// ManagerDeps bundles the collaborators the risk manager is wired to.
type ManagerDeps struct {
	Ledger   ledger.Ledger
	Market   exchange.MarketData
	Executor exchange.StopOrderExecutor
	Notifier notifications.Notifier
	Health   *monitoring.HealthChecker
	Logger   *logger.Logger
}

// Manager is the risk engine facade. It owns the trailing-stop tracker, the
// position sizer, the limit gate and the metrics aggregator, and runs the
// background control loop that keeps them current.
type Manager struct {
	cfg      *config.Config
	log      *logger.Logger
	ledger   ledger.Ledger
	market   exchange.MarketData
	executor exchange.StopOrderExecutor
	notifier notifications.Notifier
	health   *monitoring.HealthChecker

	tracker    *TrailingStopTracker
	sizer      *PositionSizer
	gate       *RiskLimitGate
	aggregator *RiskMetricsAggregator

	emergency     atomic.Bool
	ledgerBreaker *safety.CircuitBreaker
	marketBreaker *safety.CircuitBreaker

	// tradeID -> symbol, learned from the ledger during sweeps.
	symbols sync.Map

	historyMu sync.Mutex
	history   []StopAdjustment

	lastStatus time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewManager wires up the risk engine from validated configuration.
func NewManager(cfg *config.Config, deps ManagerDeps) *Manager {
	m := &Manager{
		cfg:      cfg,
		log:      deps.Logger,
		ledger:   deps.Ledger,
		market:   deps.Market,
		executor: deps.Executor,
		notifier: deps.Notifier,
		health:   deps.Health,
		stopCh:   make(chan struct{}),
	}
	if m.notifier == nil {
		m.notifier = notifications.NewNoopNotifier()
	}

	m.tracker = NewTrailingStopTracker(cfg, deps.Logger)
	m.sizer = NewPositionSizer(cfg.Limits)
	m.gate = NewRiskLimitGate(cfg.Limits, &m.emergency)
	m.aggregator = NewRiskMetricsAggregator(deps.Ledger, deps.Market, cfg, deps.Logger)

	m.ledgerBreaker = safety.NewCircuitBreaker("ledger", safety.CircuitBreakerConfig{})
	m.marketBreaker = safety.NewCircuitBreaker("market_data", safety.CircuitBreakerConfig{})
	m.ledgerBreaker.SetStateChangeCallback(m.onBreakerChange("trade ledger"))
	m.marketBreaker.SetStateChangeCallback(m.onBreakerChange("market data"))

	return m
}

// onBreakerChange escalates persistent collaborator loss: the condition is
// logged as critical and, when configured, trips the emergency stop.
func (m *Manager) onBreakerChange(collaborator string) func(from, to safety.CircuitBreakerState) {
	return func(from, to safety.CircuitBreakerState) {
		if to != safety.StateOpen {
			return
		}
		if m.log != nil {
			m.log.Error("Lost contact with %s (circuit %s -> %s)", collaborator, from, to)
		}
		if m.cfg.AutoEmergencyStop {
			m.TripEmergencyStop(fmt.Sprintf("persistent %s failures", collaborator))
		} else {
			m.notifier.SendAlert("critical", fmt.Sprintf("Persistent %s failures, circuit open", collaborator))
		}
	}
}

// InitializeTrailingStop registers trailing-stop state for a newly opened
// trade.
func (m *Manager) InitializeTrailingStop(tradeID string, entryPrice decimal.Decimal, side ledger.Side) error {
	state, err := m.tracker.Initialize(tradeID, entryPrice, side)
	if err != nil {
		return err
	}
	if m.log != nil {
		m.log.Info("Trailing stop armed for trade %s: %s @ %s, initial stop %s",
			tradeID, side, entryPrice.StringFixed(4), state.CurrentStop.StringFixed(4))
	}
	return nil
}

// UpdatePositionPrice applies a price observation to a tracked trade. When
// the observation tightens the stop, the adjustment is submitted to the
// exchange before being committed; a failed submission is rolled back and
// retried by the next sweep. Updates for unknown trades are logged and
// ignored.
func (m *Manager) UpdatePositionPrice(ctx context.Context, tradeID string, price decimal.Decimal) (*StopAdjustment, error) {
	adj, err := m.tracker.Update(tradeID, price)
	if err != nil {
		if err == ErrUnknownTrade {
			if m.log != nil {
				m.log.Warning("Price update for untracked trade %s ignored", tradeID)
			}
			return nil, nil
		}
		return nil, err
	}
	if adj == nil {
		return nil, nil
	}

	if subErr := m.executor.SubmitStopLoss(ctx, tradeID, adj.NewStop); subErr != nil {
		m.tracker.Rollback(tradeID)
		monitoring.RecordStopAdjustment("rolled_back")
		if m.log != nil {
			m.log.LogError("stop submission", subErr)
		}
		return nil, nil
	}

	m.tracker.Commit(tradeID, adj.NewStop)
	monitoring.RecordStopAdjustment("committed")
	m.recordAdjustment(*adj)

	if m.log != nil {
		pnl := adj.PnLPercent.Mul(decimal.NewFromInt(100))
		m.log.LogStopAdjustment(tradeID, m.symbolFor(tradeID),
			adj.OldStop.StringFixed(4), adj.NewStop.StringFixed(4), pnl.StringFixed(2)+"%")
	}
	return adj, nil
}

// CheckRiskLimits evaluates a prospective trade against the global limits
// using the latest metrics snapshot. Rejections carry every violated reason.
func (m *Manager) CheckRiskLimits(proposal ProposedTrade) (bool, []string) {
	metrics := m.aggregator.Snapshot()
	allowed, reasons := m.gate.Check(proposal, metrics, metrics.Equity)
	if !allowed {
		for _, reason := range reasons {
			monitoring.RecordTradeRejection(rejectionLabel(reason))
		}
		if m.log != nil {
			m.log.Warning("Trade proposal %s %s rejected: %s",
				proposal.Side, proposal.Symbol, strings.Join(reasons, "; "))
		}
	}
	return allowed, reasons
}

// rejectionLabel strips the per-rejection detail so the metric label stays
// low-cardinality.
func rejectionLabel(reason string) string {
	if i := strings.IndexByte(reason, ':'); i > 0 {
		return reason[:i]
	}
	return reason
}

// CalculateOptimalPositionSize returns the risk-adjusted quantity for a
// prospective trade. Zero means "do not trade".
func (m *Manager) CalculateOptimalPositionSize(symbol string, entryPrice, balance decimal.Decimal) decimal.Decimal {
	return m.sizer.Calculate(symbol, entryPrice, balance, m.aggregator.Snapshot())
}

// GetRiskMetrics returns the latest portfolio risk snapshot.
func (m *Manager) GetRiskMetrics() RiskMetrics {
	return m.aggregator.Snapshot()
}

// GetTrailingStopInfo returns a read-only copy of a trade's trailing-stop
// state for dashboards.
func (m *Manager) GetTrailingStopInfo(tradeID string) (TrailingStopState, bool) {
	return m.tracker.Get(tradeID)
}

// TrackedStops returns copies of all trailing-stop states.
func (m *Manager) TrackedStops() []TrailingStopState {
	return m.tracker.All()
}

// AdjustmentHistory returns the most recent committed stop adjustments,
// newest last.
func (m *Manager) AdjustmentHistory() []StopAdjustment {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	out := make([]StopAdjustment, len(m.history))
	copy(out, m.history)
	return out
}

func (m *Manager) recordAdjustment(adj StopAdjustment) {
	m.historyMu.Lock()
	m.history = append(m.history, adj)
	if len(m.history) > adjustmentHistoryCap {
		m.history = m.history[len(m.history)-adjustmentHistoryCap:]
	}
	m.historyMu.Unlock()
}

// EmergencyStopActive reports whether new trade admission is blocked.
func (m *Manager) EmergencyStopActive() bool {
	return m.emergency.Load()
}

// TripEmergencyStop blocks all new trade admission while leaving existing
// position monitoring active.
func (m *Manager) TripEmergencyStop(reason string) {
	if !m.emergency.CompareAndSwap(false, true) {
		return
	}
	if m.health != nil {
		m.health.SetEmergencyStop(true)
	}
	if m.log != nil {
		m.log.Error("EMERGENCY STOP tripped: %s", reason)
	}
	m.notifier.SendAlert("critical", fmt.Sprintf("Emergency stop tripped: %s", reason))
}

// ReleaseEmergencyStop re-enables trade admission after operator review.
func (m *Manager) ReleaseEmergencyStop() {
	if !m.emergency.CompareAndSwap(true, false) {
		return
	}
	if m.health != nil {
		m.health.SetEmergencyStop(false)
	}
	if m.log != nil {
		m.log.Info("Emergency stop released")
	}
	m.notifier.SendAlert("success", "Emergency stop released")
}

// Run executes the risk control loop until the context is cancelled or Stop
// is called. On startup it reloads trailing-stop state for every open trade,
// then each cycle refreshes metrics, checks violations, sweeps all tracked
// stops and periodically logs a status snapshot.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.reload(ctx); err != nil {
		return fmt.Errorf("reload trailing stops: %w", err)
	}

	// First cycle immediately so metrics and stops are current before the
	// first tick.
	m.runCycle(ctx)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stopCh:
			return nil
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

// Stop requests a graceful shutdown of the control loop. The in-flight
// cycle finishes before Run returns.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// reload re-arms trailing stops for all trades that were open before the
// engine started.
func (m *Manager) reload(ctx context.Context) error {
	open, err := m.ledger.ListOpenTrades(ctx)
	if err != nil {
		return err
	}
	for _, trade := range open {
		id := trade.ID.String()
		if _, tracked := m.tracker.Get(id); tracked {
			continue
		}
		if err := m.InitializeTrailingStop(id, trade.EntryPrice, trade.Side); err != nil {
			if m.log != nil {
				m.log.LogError("reload trailing stop", err)
			}
			continue
		}
		m.symbols.Store(id, trade.Symbol)
	}
	if m.log != nil {
		m.log.Info("Reloaded trailing stops for %d open trades", m.tracker.Len())
	}
	return nil
}

// runCycle performs one full control cycle.
func (m *Manager) runCycle(ctx context.Context) {
	start := time.Now()

	metrics, err := m.recomputeMetrics(ctx)
	if err != nil {
		monitoring.RecordCycleError("metrics")
		if m.health != nil {
			m.health.RecordError(err.Error())
		}
		if m.log != nil {
			m.log.LogError("metrics recompute", err)
		}
	} else {
		m.checkViolations(metrics)
	}

	m.sweep(ctx)

	monitoring.UpdateRiskSnapshot(
		metrics.RiskScore,
		metrics.DailyPnL.InexactFloat64(),
		metrics.TotalExposure.InexactFloat64(),
		metrics.MaxDrawdown.InexactFloat64(),
		metrics.ActiveTrades,
		m.tracker.Len(),
	)
	monitoring.ObserveCycleDuration(time.Since(start).Seconds())
	if m.health != nil {
		m.health.CycleCompleted()
	}

	if time.Since(m.lastStatus) >= m.cfg.StatusInterval {
		m.lastStatus = time.Now()
		if m.log != nil {
			m.log.LogRiskStatus(metrics.ActiveTrades,
				metrics.DailyPnL.StringFixed(2),
				fmt.Sprintf("%.1f%%", metrics.WinRate*100),
				metrics.RiskScore, m.tracker.Len())
		}
	}
}

func (m *Manager) recomputeMetrics(ctx context.Context) (RiskMetrics, error) {
	var metrics RiskMetrics
	err := m.ledgerBreaker.Call(func() error {
		var err error
		metrics, err = m.aggregator.Recompute(ctx)
		return err
	})
	if err != nil {
		return m.aggregator.Snapshot(), err
	}
	return metrics, nil
}

// checkViolations trips the emergency stop on aggregate limit breaches when
// configured to do so.
func (m *Manager) checkViolations(metrics RiskMetrics) {
	if !m.cfg.AutoEmergencyStop {
		return
	}

	maxDailyLoss := metrics.Equity.Mul(m.cfg.Limits.MaxDailyLossPct)
	if metrics.DailyPnL.IsNegative() && metrics.DailyPnL.Neg().GreaterThan(maxDailyLoss) {
		m.TripEmergencyStop(fmt.Sprintf("daily loss %s exceeds limit %s",
			metrics.DailyPnL.Neg().StringFixed(2), maxDailyLoss.StringFixed(2)))
	}
	if metrics.MaxDrawdown.GreaterThan(m.cfg.Limits.MaxDrawdownPct) {
		m.TripEmergencyStop(fmt.Sprintf("drawdown %s exceeds limit %s",
			metrics.MaxDrawdown.StringFixed(4), m.cfg.Limits.MaxDrawdownPct.StringFixed(4)))
	}
}

// sweep touches every tracked trailing stop: it prunes closed trades, arms
// newly discovered open ones, re-evaluates each against the latest price and
// retries any stop submission that failed earlier. Trades are processed
// concurrently so one slow exchange call cannot delay the rest.
func (m *Manager) sweep(ctx context.Context) {
	var open []ledger.Trade
	err := m.ledgerBreaker.Call(func() error {
		var err error
		open, err = m.ledger.ListOpenTrades(ctx)
		return err
	})
	if err != nil {
		monitoring.RecordCycleError("sweep")
		if m.log != nil {
			m.log.LogError("sweep ledger read", err)
		}
		return
	}

	openSet := make(map[string]ledger.Trade, len(open))
	for _, trade := range open {
		openSet[trade.ID.String()] = trade
	}

	// Drop state for trades that closed since the last sweep.
	for _, state := range m.tracker.All() {
		if _, stillOpen := openSet[state.TradeID]; !stillOpen {
			m.tracker.Remove(state.TradeID)
			m.symbols.Delete(state.TradeID)
			if m.log != nil {
				m.log.Info("Trailing stop for closed trade %s removed", state.TradeID)
			}
		}
	}

	var wg sync.WaitGroup
	for _, trade := range open {
		id := trade.ID.String()
		m.symbols.Store(id, trade.Symbol)

		if _, tracked := m.tracker.Get(id); !tracked {
			if err := m.InitializeTrailingStop(id, trade.EntryPrice, trade.Side); err != nil {
				if m.log != nil {
					m.log.LogError("arm trailing stop", err)
				}
				continue
			}
		}

		wg.Add(1)
		go func(trade ledger.Trade, id string) {
			defer wg.Done()
			m.sweepTrade(ctx, trade, id)
		}(trade, id)
	}
	wg.Wait()
}

// sweepTrade re-evaluates one trade against the latest price. A price
// failure only skips this trade for the cycle.
func (m *Manager) sweepTrade(ctx context.Context, trade ledger.Trade, id string) {
	var price decimal.Decimal
	err := m.marketBreaker.Call(func() error {
		var err error
		price, err = m.market.LatestPrice(ctx, trade.Symbol)
		return err
	})
	if err != nil {
		if m.log != nil {
			m.log.Warning("No price for %s this cycle: %v", trade.Symbol, err)
		}
		return
	}

	if _, err := m.UpdatePositionPrice(ctx, id, price); err != nil {
		monitoring.RecordCycleError("update")
		if m.log != nil {
			m.log.LogError("trailing stop update", err)
		}
		return
	}

	// Retry a stop target whose earlier submission failed.
	if state, ok := m.tracker.Get(id); ok && state.StopPending {
		if err := m.executor.SubmitStopLoss(ctx, id, state.PendingStop); err != nil {
			monitoring.RecordStopAdjustment("rolled_back")
			if m.log != nil {
				m.log.Warning("Stop resubmission for trade %s failed, will retry: %v", id, err)
			}
			return
		}
		m.tracker.Commit(id, state.PendingStop)
		monitoring.RecordStopAdjustment("committed")
		m.recordAdjustment(StopAdjustment{
			TradeID:      id,
			OldStop:      state.CurrentStop,
			NewStop:      state.PendingStop,
			CurrentPrice: price,
		})
		if m.log != nil {
			m.log.Adjust("Deferred stop for trade %s committed at %s", id, state.PendingStop.StringFixed(4))
		}
	}
}

func (m *Manager) symbolFor(tradeID string) string {
	if v, ok := m.symbols.Load(tradeID); ok {
		return v.(string)
	}
	return "-"
}
