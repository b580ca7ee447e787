package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Portfolio risk metrics
	riskScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskguard_risk_score",
			Help: "Composite risk score in [0,1]",
		},
	)

	dailyPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskguard_daily_pnl",
			Help: "Realized P&L for the current UTC day",
		},
	)

	totalExposure = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskguard_total_exposure",
			Help: "Sum of unrealized P&L across open trades",
		},
	)

	maxDrawdown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskguard_max_drawdown",
			Help: "Peak-to-trough equity drawdown fraction",
		},
	)

	activeTrades = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskguard_active_trades",
			Help: "Number of currently open trades",
		},
	)

	trackedStops = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskguard_trailing_stops_tracked",
			Help: "Number of trailing stop states being tracked",
		},
	)

	// Trailing stop metrics
	stopAdjustmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskguard_stop_adjustments_total",
			Help: "Total stop-loss adjustments by outcome",
		},
		[]string{"outcome"},
	)

	// Gate metrics
	tradeRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskguard_trade_rejections_total",
			Help: "Total trade proposals rejected by limit",
		},
		[]string{"reason"},
	)

	// Control loop metrics
	cycleErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskguard_cycle_errors_total",
			Help: "Total control loop errors by stage",
		},
		[]string{"stage"},
	)

	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "riskguard_cycle_duration_seconds",
			Help:    "Duration of one full risk control cycle",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(riskScore)
	prometheus.MustRegister(dailyPnL)
	prometheus.MustRegister(totalExposure)
	prometheus.MustRegister(maxDrawdown)
	prometheus.MustRegister(activeTrades)
	prometheus.MustRegister(trackedStops)
	prometheus.MustRegister(stopAdjustmentsTotal)
	prometheus.MustRegister(tradeRejectionsTotal)
	prometheus.MustRegister(cycleErrorsTotal)
	prometheus.MustRegister(cycleDuration)
}

// MetricsHandler handles Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// UpdateRiskSnapshot publishes the latest aggregated risk metrics.
func UpdateRiskSnapshot(score, daily, exposure, drawdown float64, active, tracked int) {
	riskScore.Set(score)
	dailyPnL.Set(daily)
	totalExposure.Set(exposure)
	maxDrawdown.Set(drawdown)
	activeTrades.Set(float64(active))
	trackedStops.Set(float64(tracked))
}

// RecordStopAdjustment records a stop-loss adjustment outcome
// ("committed" or "rolled_back").
func RecordStopAdjustment(outcome string) {
	stopAdjustmentsTotal.WithLabelValues(outcome).Inc()
}

// RecordTradeRejection records a rejected trade proposal by reason.
func RecordTradeRejection(reason string) {
	tradeRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordCycleError records a control loop error for a stage.
func RecordCycleError(stage string) {
	cycleErrorsTotal.WithLabelValues(stage).Inc()
}

// ObserveCycleDuration records the duration of one control cycle in seconds.
func ObserveCycleDuration(seconds float64) {
	cycleDuration.Observe(seconds)
}
