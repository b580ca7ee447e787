package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quantera/riskguard/internal/config"
	"github.com/quantera/riskguard/internal/display"
	"github.com/quantera/riskguard/internal/exchange"
	"github.com/quantera/riskguard/internal/exchange/bybit"
	"github.com/quantera/riskguard/internal/ledger"
	"github.com/quantera/riskguard/internal/logger"
	"github.com/quantera/riskguard/internal/monitoring"
	"github.com/quantera/riskguard/internal/notifications"
	"github.com/quantera/riskguard/internal/risk"
	"github.com/quantera/riskguard/pkg/reporting"
)

func main() {
	var (
		envFile = flag.String("env", ".env", "Environment file path (default: .env)")
		demo    = flag.Bool("demo", true, "Use demo trading environment - paper trading (default: true)")
		debug   = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	// Load environment variables from .env file
	if err := loadEnvFile(*envFile); err != nil {
		log.Printf("Warning: Could not load .env file (%v), checking environment variables...", err)
	}

	fmt.Println("🛡️ Risk Engine Starting...")

	cfg := config.Load()
	if *demo {
		cfg.Exchange.Demo = true
		cfg.Exchange.Testnet = false
	}
	if *debug {
		cfg.DebugMode = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if !cfg.Exchange.Demo {
		if cfg.Exchange.APIKey == "" || cfg.Exchange.APISecret == "" {
			log.Fatal("EXCHANGE_API_KEY and EXCHANGE_API_SECRET are required for live trading")
		}
	}

	fileLogger, err := logger.NewLoggerWithDebug(cfg.LogName, cfg.DebugMode)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer fileLogger.Close()
	fmt.Printf("📝 Logging to %s\n", fileLogger.GetLogPath())

	client := bybit.NewClient(bybit.Config{
		APIKey:    cfg.Exchange.APIKey,
		APISecret: cfg.Exchange.APISecret,
		Category:  cfg.Exchange.Category,
		Testnet:   cfg.Exchange.Testnet,
		Demo:      cfg.Exchange.Demo,
	})

	// On a live account the real tradable balance replaces the configured one.
	if !cfg.Exchange.Demo {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		balance, err := client.TradableBalance(ctx, "USDT")
		cancel()
		if err != nil {
			log.Fatalf("Failed to fetch account balance: %v", err)
		}
		cfg.InitialBalance = balance
		fmt.Printf("💰 Tradable balance: $%s\n", balance.StringFixed(2))
	}

	tradeLedger := ledger.NewMemoryLedger()
	adapter := exchange.NewBybitAdapter(client, exchange.NewLedgerResolver(tradeLedger))

	var notifier notifications.Notifier = notifications.NewNoopNotifier()
	if cfg.Notifications.TelegramToken != "" && cfg.Notifications.TelegramChatID != "" {
		notifier = notifications.NewTelegramNotifier(cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID)
	}

	health := monitoring.NewHealthChecker(3 * cfg.CheckInterval)

	manager := risk.NewManager(cfg, risk.ManagerDeps{
		Ledger:   tradeLedger,
		Market:   adapter,
		Executor: adapter,
		Notifier: notifier,
		Health:   health,
		Logger:   fileLogger,
	})

	display.PrintStartupInfo(cfg, client.GetEnvironment())

	startHTTPServers(cfg, health)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- manager.Run(ctx)
	}()

	// Periodic console status alongside the file log.
	go func() {
		ticker := time.NewTicker(cfg.StatusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				display.PrintRiskStatus(manager.GetRiskMetrics(), len(manager.TrackedStops()), manager.EmergencyStopActive())
			}
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		fmt.Println("\n🛑 Shutdown signal received...")
		manager.Stop()
		<-runErr
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			log.Fatalf("Risk control loop failed: %v", err)
		}
	}

	writeDailyReport(cfg, manager, tradeLedger, fileLogger)
	display.PrintRiskStatus(manager.GetRiskMetrics(), len(manager.TrackedStops()), manager.EmergencyStopActive())
	display.PrintTrailingStops(manager.TrackedStops())
	display.PrintShutdownSummary(manager.GetRiskMetrics(), manager.AdjustmentHistory())
	fmt.Println("✅ Risk engine stopped successfully")
}

// loadEnvFile loads environment variables from a file
func loadEnvFile(envFile string) error {
	if _, err := os.Stat(envFile); err == nil {
		return godotenv.Load(envFile)
	}
	return fmt.Errorf("env file %s not found", envFile)
}

// startHTTPServers exposes the Prometheus metrics and health endpoints.
func startHTTPServers(cfg *config.Config, health *monitoring.HealthChecker) {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", monitoring.NewMetricsHandler())
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
		if err := http.ListenAndServe(addr, metricsMux); err != nil {
			log.Printf("Metrics server stopped: %v", err)
		}
	}()

	healthMux := http.NewServeMux()
	healthMux.Handle("/health", health)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Monitoring.HealthPort)
		if err := http.ListenAndServe(addr, healthMux); err != nil {
			log.Printf("Health server stopped: %v", err)
		}
	}()
}

// writeDailyReport writes the end-of-session risk report workbook.
func writeDailyReport(cfg *config.Config, manager *risk.Manager, tradeLedger ledger.Ledger, fileLogger *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	today := time.Now().UTC()
	closed, err := tradeLedger.ListTradesClosedOn(ctx, today)
	if err != nil {
		fileLogger.LogError("daily report", err)
		return
	}

	reporter := reporting.NewDailyRiskReporter(cfg.Reporting.OutputDir)
	path, err := reporter.Write(today, manager.GetRiskMetrics(), closed, manager.AdjustmentHistory())
	if err != nil {
		fileLogger.LogError("daily report", err)
		return
	}
	fmt.Printf("📊 Daily risk report written to %s\n", path)
}
