package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantera/riskguard/internal/config"
)

func newTestSizer(t *testing.T) *PositionSizer {
	t.Helper()
	cfg := config.Load()
	require.NoError(t, cfg.Validate())
	return NewPositionSizer(cfg.Limits)
}

// TestCalculate_FullAllocation tests sizing with a healthy risk posture:
// the full 2% allocation is used
func TestCalculate_FullAllocation(t *testing.T) {
	sizer := newTestSizer(t)

	metrics := RiskMetrics{WinRate: 0.6}
	qty := sizer.Calculate("BTCUSDT", d("100"), d("10000"), metrics)

	// 10000 * 0.02 / 100 = 2
	assert.True(t, qty.Equal(d("2")), "got %s", qty)
}

// TestCalculate_DeRiskOnDailyLoss tests the 0.75x multiplier after a losing
// day
func TestCalculate_DeRiskOnDailyLoss(t *testing.T) {
	sizer := newTestSizer(t)

	metrics := RiskMetrics{DailyPnL: d("-50"), WinRate: 0.6}
	qty := sizer.Calculate("BTCUSDT", d("100"), d("10000"), metrics)
	assert.True(t, qty.Equal(d("1.5")), "got %s", qty)
}

// TestCalculate_FloorAtHalf tests that a losing day plus a sub-50% win rate
// bottoms out at the 0.5x floor
func TestCalculate_FloorAtHalf(t *testing.T) {
	sizer := newTestSizer(t)

	metrics := RiskMetrics{DailyPnL: d("-50"), WinRate: 0.4}
	qty := sizer.Calculate("BTCUSDT", d("100"), d("10000"), metrics)
	assert.True(t, qty.Equal(d("1")), "got %s", qty)
}

// TestCalculate_NonPositiveBalance tests that a non-positive balance yields
// zero, the "do not trade" signal
func TestCalculate_NonPositiveBalance(t *testing.T) {
	sizer := newTestSizer(t)

	assert.True(t, sizer.Calculate("BTCUSDT", d("100"), decimal.Zero, RiskMetrics{}).IsZero())
	assert.True(t, sizer.Calculate("BTCUSDT", d("100"), d("-50"), RiskMetrics{}).IsZero())
}

// TestCalculate_MinOrderClamp tests that tiny allocations are lifted to the
// exchange minimum order size
func TestCalculate_MinOrderClamp(t *testing.T) {
	sizer := newTestSizer(t)

	// 2% of a 100 balance is 2, below the 10 USDT minimum order
	metrics := RiskMetrics{WinRate: 0.6}
	qty := sizer.Calculate("BTCUSDT", d("100"), d("100"), metrics)

	// Minimum lifts to 0.1, then the hard cap of maxValue/entry = 0.02 wins
	assert.True(t, qty.Equal(d("0.02")), "got %s", qty)
}
