package display

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"

	"github.com/quantera/riskguard/internal/config"
	"github.com/quantera/riskguard/internal/risk"
)

// PrintStartupInfo prints the engine configuration at startup
func PrintStartupInfo(cfg *config.Config, environment string) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("RISK ENGINE INITIALIZATION")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"🏪 Exchange", fmt.Sprintf("%s (%s)", cfg.Exchange.Name, environment)},
		{"⏰ Check Interval", cfg.CheckInterval.String()},
		{"💰 Initial Balance", "$" + cfg.InitialBalance.StringFixed(2)},
		{"🛡️ Initial Stop", cfg.InitialStopPct.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"},
		{"📊 Trailing Levels", fmt.Sprintf("%d", len(cfg.Levels))},
	})

	t.AppendSeparator()

	t.AppendRows([]table.Row{
		{"📉 Max Daily Loss", cfg.Limits.MaxDailyLossPct.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"},
		{"📉 Max Drawdown", cfg.Limits.MaxDrawdownPct.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"},
		{"🔢 Max Concurrent", fmt.Sprintf("%d trades", cfg.Limits.MaxConcurrentTrades)},
		{"📐 Max Position", cfg.Limits.MaxPositionSizePct.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"},
		{"🎚️ Risk Score Limit", fmt.Sprintf("%.2f", cfg.Limits.RiskScoreLimit)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, WidthMax: 40, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}

// PrintRiskStatus prints the current portfolio risk snapshot
func PrintRiskStatus(metrics risk.RiskMetrics, trackedStops int, emergencyStop bool) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("RISK STATUS")
	t.SetStyle(table.StyleRounded)

	mode := "✅ normal"
	if emergencyStop {
		mode = "🛑 EMERGENCY STOP"
	}

	t.AppendRows([]table.Row{
		{"🔢 Active Trades", fmt.Sprintf("%d", metrics.ActiveTrades)},
		{"🛡️ Tracked Stops", fmt.Sprintf("%d", trackedStops)},
		{"💵 Equity", "$" + metrics.Equity.StringFixed(2)},
		{"📊 Exposure", "$" + metrics.TotalExposure.StringFixed(2)},
		{"📅 Daily P&L", "$" + metrics.DailyPnL.StringFixed(2)},
		{"📉 Max Drawdown", metrics.MaxDrawdown.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"},
		{"🏆 Win Rate", fmt.Sprintf("%.1f%%", metrics.WinRate*100)},
		{"⚖️ Profit Factor", fmt.Sprintf("%.2f", metrics.ProfitFactor)},
		{"🎚️ Risk Score", fmt.Sprintf("%.2f", metrics.RiskScore)},
		{"🚦 Admission", mode},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 16, WidthMax: 16, Align: text.AlignLeft},
		{Number: 2, WidthMin: 22, WidthMax: 30, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}

// PrintTrailingStops prints every tracked trailing-stop state
func PrintTrailingStops(stops []risk.TrailingStopState) {
	if len(stops) == 0 {
		fmt.Println("No trailing stops tracked")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("TRAILING STOPS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Trade", "Side", "Entry", "Price", "Stop", "Level", "Breakeven", "Pending"})

	for _, s := range stops {
		pending := "-"
		if s.StopPending {
			pending = s.PendingStop.StringFixed(4)
		}
		breakeven := "no"
		if s.BreakevenTriggered {
			breakeven = "yes"
		}
		t.AppendRow(table.Row{
			shortID(s.TradeID),
			string(s.Side),
			s.EntryPrice.StringFixed(4),
			s.CurrentPrice.StringFixed(4),
			s.CurrentStop.StringFixed(4),
			s.TrailingLevel,
			breakeven,
			pending,
		})
	}

	t.Render()
	fmt.Println()
}

// PrintShutdownSummary prints the final snapshot and recent adjustments
func PrintShutdownSummary(metrics risk.RiskMetrics, history []risk.StopAdjustment) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("SESSION SUMMARY")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"💵 Final Equity", "$" + metrics.Equity.StringFixed(2)},
		{"📅 Daily P&L", "$" + metrics.DailyPnL.StringFixed(2)},
		{"📉 Max Drawdown", metrics.MaxDrawdown.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"},
		{"🛠️ Stop Adjustments", fmt.Sprintf("%d", len(history))},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 22, WidthMax: 30, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
