package risk

import (
	"github.com/shopspring/decimal"

	"github.com/quantera/riskguard/internal/config"
)

var (
	multiplierFloor = decimal.NewFromFloat(0.5)
	multiplierStep  = decimal.NewFromFloat(0.25)
)

// PositionSizer computes risk-adjusted order quantities. Sizing starts from
// the configured per-trade allocation and shrinks toward a 0.5x floor while
// the account is in a losing posture.
type PositionSizer struct {
	limits config.RiskLimits
}

// NewPositionSizer creates a sizer over the configured risk limits.
func NewPositionSizer(limits config.RiskLimits) *PositionSizer {
	return &PositionSizer{limits: limits}
}

// Calculate returns the order quantity for a prospective trade. It never
// fails: a non-positive balance yields zero, which callers must treat as
// "do not trade".
func (s *PositionSizer) Calculate(symbol string, entryPrice, balance decimal.Decimal, metrics RiskMetrics) decimal.Decimal {
	if balance.Sign() <= 0 || entryPrice.Sign() <= 0 {
		return decimal.Zero
	}

	maxValue := balance.Mul(s.limits.MaxPositionSizePct)

	multiplier := decimalOne
	if metrics.DailyPnL.IsNegative() {
		multiplier = multiplier.Sub(multiplierStep)
	}
	if metrics.WinRate < 0.5 {
		multiplier = multiplier.Sub(multiplierStep)
	}
	if multiplier.LessThan(multiplierFloor) {
		multiplier = multiplierFloor
	}

	quantity := maxValue.Mul(multiplier).Div(entryPrice)

	// Exchange minimum order first, then the hard per-trade cap.
	minQty := s.limits.MinOrderSize.Div(entryPrice)
	if quantity.LessThan(minQty) {
		quantity = minQty
	}
	maxQty := maxValue.Div(entryPrice)
	if quantity.GreaterThan(maxQty) {
		quantity = maxQty
	}

	return quantity
}
