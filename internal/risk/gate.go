package risk

import (
	"fmt"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/quantera/riskguard/internal/config"
)

// RiskLimitGate evaluates prospective trades against the global risk limits.
// Every rule is checked independently so a rejection reports all violated
// limits, not just the first. Check performs no I/O and never blocks.
type RiskLimitGate struct {
	limits    config.RiskLimits
	emergency *atomic.Bool
}

// NewRiskLimitGate creates a gate over the configured limits. The emergency
// flag is shared with the control loop, which may trip it at runtime.
func NewRiskLimitGate(limits config.RiskLimits, emergency *atomic.Bool) *RiskLimitGate {
	gate := &RiskLimitGate{
		limits:    limits,
		emergency: emergency,
	}
	if limits.EmergencyStop {
		emergency.Store(true)
	}
	return gate
}

// Check evaluates a proposal against the latest metrics snapshot and the
// given account balance. It returns whether the trade is allowed and, when
// not, every violated limit.
func (g *RiskLimitGate) Check(proposal ProposedTrade, metrics RiskMetrics, balance decimal.Decimal) (bool, []string) {
	var reasons []string

	maxDailyLoss := balance.Mul(g.limits.MaxDailyLossPct)
	if metrics.DailyPnL.IsNegative() && metrics.DailyPnL.Neg().GreaterThan(maxDailyLoss) {
		reasons = append(reasons, fmt.Sprintf(
			"daily loss limit exceeded: %s loss vs %s allowed",
			metrics.DailyPnL.Neg().StringFixed(2), maxDailyLoss.StringFixed(2)))
	}

	if metrics.MaxDrawdown.GreaterThan(g.limits.MaxDrawdownPct) {
		reasons = append(reasons, fmt.Sprintf(
			"max drawdown exceeded: %s vs %s allowed",
			metrics.MaxDrawdown.StringFixed(4), g.limits.MaxDrawdownPct.StringFixed(4)))
	}

	if metrics.ActiveTrades >= g.limits.MaxConcurrentTrades {
		reasons = append(reasons, fmt.Sprintf(
			"max concurrent trades reached: %d of %d",
			metrics.ActiveTrades, g.limits.MaxConcurrentTrades))
	}

	maxValue := balance.Mul(g.limits.MaxPositionSizePct)
	if proposal.Value().GreaterThan(maxValue) {
		reasons = append(reasons, fmt.Sprintf(
			"position size too large: %s vs %s allowed",
			proposal.Value().StringFixed(2), maxValue.StringFixed(2)))
	}

	if metrics.RiskScore > g.limits.RiskScoreLimit {
		reasons = append(reasons, fmt.Sprintf(
			"risk score too high: %.2f vs %.2f allowed",
			metrics.RiskScore, g.limits.RiskScoreLimit))
	}

	if g.emergency.Load() {
		reasons = append(reasons, "emergency stop active")
	}

	return len(reasons) == 0, reasons
}
