package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantera/riskguard/internal/errors"
)

// TrailingLevel is one row of the trailing-stop level table: once profit
// reaches Trigger, the stop is moved to lock in Stop percent of profit.
type TrailingLevel struct {
	Trigger decimal.Decimal `json:"trigger"`
	Stop    decimal.Decimal `json:"stop"`
}

// RiskLimits holds the global risk limits consulted on every trade proposal.
// Read-only after startup.
type RiskLimits struct {
	MaxDailyLossPct     decimal.Decimal `json:"max_daily_loss_pct"`
	MaxDrawdownPct      decimal.Decimal `json:"max_drawdown_pct"`
	MaxConcurrentTrades int             `json:"max_concurrent_trades"`
	MaxPositionSizePct  decimal.Decimal `json:"max_position_size_pct"`
	MinOrderSize        decimal.Decimal `json:"min_order_size"`
	RiskScoreLimit      float64         `json:"risk_score_limit"`
	EmergencyStop       bool            `json:"emergency_stop"`
}

// ScoreWeights are the blend weights for the composite risk score.
// They must sum to 1.
type ScoreWeights struct {
	Concurrency float64 `json:"concurrency"`
	DailyLoss   float64 `json:"daily_loss"`
	WinRate     float64 `json:"win_rate"`
}

// Config is the full engine configuration loaded from the environment.
type Config struct {
	LogName   string
	DebugMode bool

	// Control loop cadence
	CheckInterval  time.Duration
	StatusInterval time.Duration

	// Account and sizing
	InitialBalance decimal.Decimal

	// Trailing stop configuration
	InitialStopPct decimal.Decimal
	Levels         []TrailingLevel

	Limits  RiskLimits
	Weights ScoreWeights

	// Whether repeated collaborator failures or critical violations may
	// trip the emergency stop automatically.
	AutoEmergencyStop bool

	Exchange struct {
		Name      string
		APIKey    string
		APISecret string
		Category  string
		Demo      bool
		Testnet   bool
	}

	Monitoring struct {
		PrometheusPort int
		HealthPort     int
	}

	Notifications struct {
		TelegramToken  string
		TelegramChatID string
	}

	Reporting struct {
		OutputDir string
	}
}

// Load reads the engine configuration from environment variables,
// falling back to defaults matching the shipped risk posture.
func Load() *Config {
	cfg := &Config{
		LogName:        getEnv("RISKGUARD_LOG_NAME", "riskguard"),
		DebugMode:      getEnvBool("RISKGUARD_DEBUG", false),
		CheckInterval:  getEnvDuration("RISK_CHECK_INTERVAL", 10*time.Second),
		StatusInterval: getEnvDuration("RISK_STATUS_INTERVAL", 5*time.Minute),
		InitialBalance: getEnvDecimal("INITIAL_BALANCE", "10000"),
		InitialStopPct: getEnvDecimal("INITIAL_STOP_LOSS_PERCENT", "0.02"),
		Levels:         parseLevels(getEnv("TRAILING_STOP_LEVELS", defaultLevelSpec)),
		Limits: RiskLimits{
			MaxDailyLossPct:     getEnvDecimal("MAX_DAILY_LOSS_PERCENT", "0.05"),
			MaxDrawdownPct:      getEnvDecimal("MAX_DRAWDOWN_PERCENT", "0.10"),
			MaxConcurrentTrades: getEnvInt("MAX_CONCURRENT_TRADES", 5),
			MaxPositionSizePct:  getEnvDecimal("MAX_POSITION_SIZE_PERCENT", "0.02"),
			MinOrderSize:        getEnvDecimal("MIN_ORDER_SIZE_USDT", "10.0"),
			RiskScoreLimit:      getEnvFloat("RISK_SCORE_LIMIT", 0.8),
			EmergencyStop:       getEnvBool("EMERGENCY_STOP", false),
		},
		Weights: ScoreWeights{
			Concurrency: getEnvFloat("RISK_WEIGHT_CONCURRENCY", 0.3),
			DailyLoss:   getEnvFloat("RISK_WEIGHT_DAILY_LOSS", 0.4),
			WinRate:     getEnvFloat("RISK_WEIGHT_WIN_RATE", 0.3),
		},
		AutoEmergencyStop: getEnvBool("AUTO_EMERGENCY_STOP", true),
	}

	cfg.Exchange.Name = getEnv("EXCHANGE_NAME", "bybit")
	cfg.Exchange.APIKey = getEnv("EXCHANGE_API_KEY", "")
	cfg.Exchange.APISecret = getEnv("EXCHANGE_API_SECRET", "")
	cfg.Exchange.Category = getEnv("EXCHANGE_CATEGORY", "linear")
	cfg.Exchange.Demo = getEnvBool("EXCHANGE_DEMO", true)
	cfg.Exchange.Testnet = getEnvBool("EXCHANGE_TESTNET", false)

	cfg.Monitoring.PrometheusPort = getEnvInt("PROMETHEUS_PORT", 8080)
	cfg.Monitoring.HealthPort = getEnvInt("HEALTH_PORT", 8081)

	cfg.Notifications.TelegramToken = getEnv("TELEGRAM_TOKEN", "")
	cfg.Notifications.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", "")

	cfg.Reporting.OutputDir = getEnv("REPORT_OUTPUT_DIR", "reports")

	return cfg
}

// defaultLevelSpec is the shipped trailing-stop ladder: profit trigger and
// the profit percentage locked in at that trigger, ascending.
const defaultLevelSpec = "0.015:0.0,0.03:0.015,0.05:0.03,0.08:0.05,0.10:0.08,0.15:0.10,0.20:0.15"

// parseLevels parses a "trigger:stop,trigger:stop,..." level table.
// Malformed entries are skipped; Validate catches an empty result.
func parseLevels(spec string) []TrailingLevel {
	var levels []TrailingLevel
	for _, entry := range strings.Split(spec, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		if len(parts) != 2 {
			continue
		}
		trigger, err1 := decimal.NewFromString(parts[0])
		stop, err2 := decimal.NewFromString(parts[1])
		if err1 != nil || err2 != nil {
			continue
		}
		levels = append(levels, TrailingLevel{Trigger: trigger, Stop: stop})
	}
	return levels
}

// Validate checks the configuration and returns a configuration error
// describing every problem found. The engine refuses to start on any error.
func (c *Config) Validate() error {
	var problems []string

	if c.CheckInterval <= 0 {
		problems = append(problems, "RISK_CHECK_INTERVAL must be positive")
	}
	if c.StatusInterval <= 0 {
		problems = append(problems, "RISK_STATUS_INTERVAL must be positive")
	}
	if c.InitialBalance.Sign() <= 0 {
		problems = append(problems, "INITIAL_BALANCE must be positive")
	}
	if c.InitialStopPct.Sign() < 0 || c.InitialStopPct.GreaterThan(decimal.NewFromFloat(0.2)) {
		problems = append(problems, "INITIAL_STOP_LOSS_PERCENT must be between 0 and 0.2")
	}

	if len(c.Levels) == 0 {
		problems = append(problems, "trailing stop level table must not be empty")
	}
	for i, level := range c.Levels {
		if level.Trigger.Sign() <= 0 || level.Stop.Sign() < 0 {
			problems = append(problems, fmt.Sprintf("trailing level %d has a non-positive trigger or negative stop", i))
		}
		if i > 0 && !level.Trigger.GreaterThan(c.Levels[i-1].Trigger) {
			problems = append(problems, "trailing stop levels must be in ascending order by trigger")
			break
		}
	}

	if c.Limits.MaxDailyLossPct.Sign() <= 0 {
		problems = append(problems, "MAX_DAILY_LOSS_PERCENT must be positive")
	}
	if c.Limits.MaxDrawdownPct.Sign() <= 0 {
		problems = append(problems, "MAX_DRAWDOWN_PERCENT must be positive")
	}
	if c.Limits.MaxConcurrentTrades < 1 {
		problems = append(problems, "MAX_CONCURRENT_TRADES must be at least 1")
	}
	if c.Limits.MaxPositionSizePct.Sign() <= 0 || c.Limits.MaxPositionSizePct.GreaterThan(decimal.NewFromInt(1)) {
		problems = append(problems, "MAX_POSITION_SIZE_PERCENT must be between 0 and 1")
	}
	if c.Limits.MinOrderSize.Sign() <= 0 {
		problems = append(problems, "MIN_ORDER_SIZE_USDT must be positive")
	}
	if c.Limits.RiskScoreLimit <= 0 || c.Limits.RiskScoreLimit > 1 {
		problems = append(problems, "RISK_SCORE_LIMIT must be in (0, 1]")
	}

	weightSum := c.Weights.Concurrency + c.Weights.DailyLoss + c.Weights.WinRate
	if c.Weights.Concurrency < 0 || c.Weights.DailyLoss < 0 || c.Weights.WinRate < 0 {
		problems = append(problems, "risk score weights must be non-negative")
	} else if weightSum < 0.999 || weightSum > 1.001 {
		problems = append(problems, fmt.Sprintf("risk score weights must sum to 1, got %.3f", weightSum))
	}

	if len(problems) > 0 {
		return errors.NewConfigurationError("config", "validate", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDecimal(key, defaultVal string) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
	}
	d, _ := decimal.NewFromString(defaultVal)
	return d
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
