package risk

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantera/riskguard/internal/config"
	"github.com/quantera/riskguard/internal/exchange"
	"github.com/quantera/riskguard/internal/ledger"
	"github.com/quantera/riskguard/internal/logger"
)

// profitFactorSentinel stands in for an infinite profit factor when there
// are realized gains and no realized losses.
const profitFactorSentinel = 999.0

// recentTradesWindow bounds the closed-trade sample used for win rate and
// profit factor.
const recentTradesWindow = 100

// RiskMetricsAggregator rebuilds the portfolio risk snapshot from the trade
// ledger and live prices. It is the single writer of the snapshot; readers
// take an atomic copy and never block the trailing-stop path.
type RiskMetricsAggregator struct {
	ledger  ledger.Ledger
	market  exchange.MarketData
	cfg     *config.Config
	log     *logger.Logger
	current atomic.Pointer[RiskMetrics]

	// Equity-curve bookkeeping, touched only by Recompute.
	peakEquity  decimal.Decimal
	maxDrawdown decimal.Decimal
}

// NewRiskMetricsAggregator creates an aggregator with an initial all-zero
// snapshot so readers never observe a nil pointer.
func NewRiskMetricsAggregator(lg ledger.Ledger, market exchange.MarketData, cfg *config.Config, log *logger.Logger) *RiskMetricsAggregator {
	a := &RiskMetricsAggregator{
		ledger:     lg,
		market:     market,
		cfg:        cfg,
		log:        log,
		peakEquity: cfg.InitialBalance,
	}
	a.current.Store(&RiskMetrics{
		Equity:    cfg.InitialBalance,
		UpdatedAt: time.Now().UTC(),
	})
	return a
}

// Snapshot returns the latest published metrics by value.
func (a *RiskMetricsAggregator) Snapshot() RiskMetrics {
	return *a.current.Load()
}

// Recompute rebuilds the snapshot from the ledger and live prices and
// publishes it atomically. A trade whose price is unavailable is skipped for
// this cycle. Ledger errors abort the recompute and leave the previous
// snapshot in place.
func (a *RiskMetricsAggregator) Recompute(ctx context.Context) (RiskMetrics, error) {
	open, err := a.ledger.ListOpenTrades(ctx)
	if err != nil {
		return a.Snapshot(), fmt.Errorf("list open trades: %w", err)
	}

	totalExposure := decimal.Zero
	for _, trade := range open {
		price, err := a.market.LatestPrice(ctx, trade.Symbol)
		if err != nil {
			if a.log != nil {
				a.log.Warning("Skipping %s in exposure: %v", trade.Symbol, err)
			}
			continue
		}
		unrealized := price.Sub(trade.EntryPrice).Mul(trade.Quantity)
		if trade.Side == ledger.SideSell {
			unrealized = unrealized.Neg()
		}
		totalExposure = totalExposure.Add(unrealized)
	}

	today, err := a.ledger.ListTradesClosedOn(ctx, time.Now().UTC())
	if err != nil {
		return a.Snapshot(), fmt.Errorf("list trades closed today: %w", err)
	}
	dailyPnL := decimal.Zero
	for _, trade := range today {
		dailyPnL = dailyPnL.Add(trade.RealizedPnL)
	}

	closed, err := a.ledger.ListClosedTrades(ctx, 0)
	if err != nil {
		return a.Snapshot(), fmt.Errorf("list closed trades: %w", err)
	}

	totalRealized := decimal.Zero
	for _, trade := range closed {
		totalRealized = totalRealized.Add(trade.RealizedPnL)
	}

	recent := closed
	if len(recent) > recentTradesWindow {
		recent = recent[:recentTradesWindow]
	}
	winRate, profitFactor := closedTradeStats(recent)

	equity := a.cfg.InitialBalance.Add(totalRealized).Add(totalExposure)
	if equity.GreaterThan(a.peakEquity) {
		a.peakEquity = equity
	}
	if a.peakEquity.Sign() > 0 {
		drawdown := a.peakEquity.Sub(equity).Div(a.peakEquity)
		if drawdown.GreaterThan(a.maxDrawdown) {
			a.maxDrawdown = drawdown
		}
	}

	metrics := RiskMetrics{
		TotalExposure: totalExposure,
		DailyPnL:      dailyPnL,
		MaxDrawdown:   a.maxDrawdown,
		Equity:        equity,
		WinRate:       winRate,
		ProfitFactor:  profitFactor,
		ActiveTrades:  len(open),
		UpdatedAt:     time.Now().UTC(),
	}
	metrics.RiskScore = a.riskScore(metrics, equity)

	a.current.Store(&metrics)
	return metrics, nil
}

// closedTradeStats computes win rate and profit factor over a closed-trade
// sample. Win rate is 0 with no trades; profit factor is 0 with no trades
// and a large sentinel when there are gains but no losses.
func closedTradeStats(trades []ledger.Trade) (winRate, profitFactor float64) {
	if len(trades) == 0 {
		return 0, 0
	}

	wins := 0
	gains := decimal.Zero
	losses := decimal.Zero
	for _, trade := range trades {
		if trade.IsWin() {
			wins++
		}
		if trade.RealizedPnL.IsPositive() {
			gains = gains.Add(trade.RealizedPnL)
		} else {
			losses = losses.Add(trade.RealizedPnL.Neg())
		}
	}

	winRate = float64(wins) / float64(len(trades))

	switch {
	case losses.Sign() > 0:
		profitFactor, _ = gains.Div(losses).Float64()
	case gains.Sign() > 0:
		profitFactor = profitFactorSentinel
	default:
		profitFactor = 0
	}
	return winRate, profitFactor
}

// riskScore blends concurrency saturation, daily-loss saturation and inverse
// win rate into a [0,1] composite, using the configured weights.
func (a *RiskMetricsAggregator) riskScore(m RiskMetrics, balance decimal.Decimal) float64 {
	w := a.cfg.Weights
	limits := a.cfg.Limits

	concurrency := 0.0
	if limits.MaxConcurrentTrades > 0 {
		concurrency = clamp01(float64(m.ActiveTrades) / float64(limits.MaxConcurrentTrades))
	}

	lossSaturation := 0.0
	if m.DailyPnL.IsNegative() && balance.Sign() > 0 {
		maxLoss := balance.Mul(limits.MaxDailyLossPct)
		if maxLoss.Sign() > 0 {
			ratio, _ := m.DailyPnL.Neg().Div(maxLoss).Float64()
			lossSaturation = clamp01(ratio)
		}
	}

	inverseWinRate := clamp01(1 - m.WinRate)

	score := w.Concurrency*concurrency + w.DailyLoss*lossSaturation + w.WinRate*inverseWinRate
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
