package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/quantera/riskguard/internal/ledger"
	"github.com/quantera/riskguard/internal/risk"
)

// ExcelStyles holds the style IDs used across sheets
type ExcelStyles struct {
	HeaderStyle   int
	CurrencyStyle int
	PercentStyle  int
}

// DailyRiskReporter writes the end-of-day risk report workbook
type DailyRiskReporter struct {
	outputDir string
}

// NewDailyRiskReporter creates a reporter writing into outputDir
func NewDailyRiskReporter(outputDir string) *DailyRiskReporter {
	return &DailyRiskReporter{outputDir: outputDir}
}

// Write produces the daily risk report for the given day: the final metrics
// snapshot, every trade closed that day and the stop adjustments made.
// It returns the path of the written file.
func (r *DailyRiskReporter) Write(day time.Time, metrics risk.RiskMetrics, closed []ledger.Trade, adjustments []risk.StopAdjustment) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", r.outputDir, err)
	}
	path := filepath.Join(r.outputDir, fmt.Sprintf("risk_report_%s.xlsx", day.UTC().Format("2006-01-02")))

	fx := excelize.NewFile()
	defer fx.Close()

	const summarySheet = "Summary"
	const tradesSheet = "Closed Trades"
	const adjustmentsSheet = "Stop Adjustments"

	fx.SetSheetName(fx.GetSheetName(0), summarySheet)
	fx.NewSheet(tradesSheet)
	fx.NewSheet(adjustmentsSheet)

	styles, err := r.createExcelStyles(fx)
	if err != nil {
		return "", err
	}

	if err := r.writeSummarySheet(fx, summarySheet, metrics, styles); err != nil {
		return "", err
	}
	if err := r.writeTradesSheet(fx, tradesSheet, closed, styles); err != nil {
		return "", err
	}
	if err := r.writeAdjustmentsSheet(fx, adjustmentsSheet, adjustments, styles); err != nil {
		return "", err
	}

	if err := fx.SaveAs(path); err != nil {
		return "", err
	}
	return path, nil
}

// createExcelStyles creates the shared workbook styles
func (r *DailyRiskReporter) createExcelStyles(fx *excelize.File) (ExcelStyles, error) {
	var styles ExcelStyles
	var err error

	// Header style - Dark blue background with white text
	styles.HeaderStyle, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F4F4F"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	styles.CurrencyStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt: 7,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
	})
	if err != nil {
		return styles, err
	}

	styles.PercentStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt: 10,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
	})
	return styles, err
}

func (r *DailyRiskReporter) writeSummarySheet(fx *excelize.File, sheet string, metrics risk.RiskMetrics, styles ExcelStyles) error {
	rows := []struct {
		label string
		value interface{}
		style int
	}{
		{"Equity", metrics.Equity.InexactFloat64(), styles.CurrencyStyle},
		{"Total Exposure", metrics.TotalExposure.InexactFloat64(), styles.CurrencyStyle},
		{"Daily P&L", metrics.DailyPnL.InexactFloat64(), styles.CurrencyStyle},
		{"Max Drawdown", metrics.MaxDrawdown.InexactFloat64(), styles.PercentStyle},
		{"Win Rate", metrics.WinRate, styles.PercentStyle},
		{"Profit Factor", metrics.ProfitFactor, 0},
		{"Active Trades", metrics.ActiveTrades, 0},
		{"Risk Score", metrics.RiskScore, 0},
	}

	fx.SetCellValue(sheet, "A1", "Metric")
	fx.SetCellValue(sheet, "B1", "Value")
	fx.SetCellStyle(sheet, "A1", "B1", styles.HeaderStyle)

	for i, row := range rows {
		labelCell := fmt.Sprintf("A%d", i+2)
		valueCell := fmt.Sprintf("B%d", i+2)
		fx.SetCellValue(sheet, labelCell, row.label)
		fx.SetCellValue(sheet, valueCell, row.value)
		if row.style != 0 {
			fx.SetCellStyle(sheet, valueCell, valueCell, row.style)
		}
	}

	fx.SetColWidth(sheet, "A", "A", 20)
	fx.SetColWidth(sheet, "B", "B", 16)
	return nil
}

func (r *DailyRiskReporter) writeTradesSheet(fx *excelize.File, sheet string, closed []ledger.Trade, styles ExcelStyles) error {
	headers := []string{"Trade ID", "Symbol", "Side", "Entry", "Exit", "Quantity", "Realized P&L", "Opened", "Closed"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	fx.SetCellStyle(sheet, "A1", last, styles.HeaderStyle)

	for i, trade := range closed {
		row := i + 2
		values := []interface{}{
			trade.ID.String(),
			trade.Symbol,
			string(trade.Side),
			trade.EntryPrice.InexactFloat64(),
			trade.ExitPrice.InexactFloat64(),
			trade.Quantity.InexactFloat64(),
			trade.RealizedPnL.InexactFloat64(),
			trade.OpenedAt.Format(time.RFC3339),
			trade.ClosedAt.Format(time.RFC3339),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			fx.SetCellValue(sheet, cell, v)
		}
		pnlCell, _ := excelize.CoordinatesToCellName(7, row)
		fx.SetCellStyle(sheet, pnlCell, pnlCell, styles.CurrencyStyle)
	}

	fx.SetColWidth(sheet, "A", "A", 38)
	fx.SetColWidth(sheet, "H", "I", 22)
	return nil
}

func (r *DailyRiskReporter) writeAdjustmentsSheet(fx *excelize.File, sheet string, adjustments []risk.StopAdjustment, styles ExcelStyles) error {
	headers := []string{"Trade ID", "Old Stop", "New Stop", "P&L %", "Price"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	fx.SetCellStyle(sheet, "A1", last, styles.HeaderStyle)

	for i, adj := range adjustments {
		row := i + 2
		values := []interface{}{
			adj.TradeID,
			adj.OldStop.InexactFloat64(),
			adj.NewStop.InexactFloat64(),
			adj.PnLPercent.InexactFloat64(),
			adj.CurrentPrice.InexactFloat64(),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			fx.SetCellValue(sheet, cell, v)
		}
		pctCell, _ := excelize.CoordinatesToCellName(4, row)
		fx.SetCellStyle(sheet, pctCell, pctCell, styles.PercentStyle)
	}

	fx.SetColWidth(sheet, "A", "A", 38)
	return nil
}
