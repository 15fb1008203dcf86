package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"threat-detector/internal/alert"
	"threat-detector/internal/metrics"
	"threat-detector/internal/model"
	"threat-detector/internal/pipeline"
	"threat-detector/internal/utils"

	"github.com/prometheus/common/version"
	"github.com/sirupsen/logrus"
)

const program = "threat-detector"

func main() {
	var (
		configFile   = flag.String("config", utils.DefaultConfigPath, "Configuration file path (YAML)")
		input        = flag.String("input", "-", "JSON-lines event file, or - for stdin")
		showVersion  = flag.Bool("version", false, "Show version information")
		noMetrics    = flag.Bool("no-metrics", false, "Do not serve Prometheus metrics")
		testTelegram = flag.Bool("test-telegram", false, "Send test message to Telegram")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Print(program))
		return
	}

	config, found, err := utils.LoadConfigOrDefault(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config %s: %v\n", *configFile, err)
		os.Exit(1)
	}

	logger, logCloser, err := utils.NewLoggerFromConfig(config.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	// Alerts go to stdout; keep logs on stderr unless a log file is set.
	if config.Logging.FilePath == "" {
		logger.SetOutput(os.Stderr)
	}

	if found {
		logger.Infof("Loaded configuration from %s", *configFile)
	} else {
		logger.Warnf("Config file %s not found, using default configuration", *configFile)
	}

	if *testTelegram {
		os.Exit(testTelegramNotification(config, logger))
	}

	var r io.Reader = os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			logger.Errorf("Failed to open input: %v", err)
			os.Exit(1)
		}
		defer f.Close()
		r = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metrics.NewRegistry()
	m := metrics.NewMetrics(registry)

	if !*noMetrics {
		exporter := metrics.NewExporter(config.Application.MetricsPort, registry, logger)
		go func() {
			if err := exporter.Start(ctx); err != nil {
				logger.Errorf("Prometheus exporter error: %v", err)
			}
		}()
	}

	components, err := pipeline.Build(config, nil, m, logger)
	if err != nil {
		logger.Errorf("Failed to build detection pipeline: %v", err)
		os.Exit(1)
	}
	go components.Engine.StartSweeper(ctx, config.SweepInterval())

	info := components.Detector.ModelInfo()
	logger.Infof("Scoring model: %s (trained: %t)", info.Mode, info.Trained)

	fmt.Println("\n =============================================== THREAT DETECTION ===============================================")

	stats, err := pipeline.ReadEvents(ctx, r, func(raw map[string]interface{}) {
		out := components.Processor.Process(ctx, raw)
		if out.Alert != nil {
			printAlert(os.Stdout, *out.Alert)
		}
	})
	if err != nil {
		logger.Errorf("Failed to read events: %v", err)
	}

	if ctx.Err() != nil {
		fmt.Println("\nStopping event processing...")
	}
	fmt.Printf("\nProcessed %d events (%d malformed lines skipped)\n", stats.Events, stats.Malformed)
}

func printAlert(w io.Writer, a model.Alert) {
	timestamp := a.Timestamp.Format("2006-01-02 15:04:05")
	fmt.Fprintf(w, "\n%s [%s] %s - %s from %s (score %.3f, confidence %d%%)\n",
		severityMarker(a.Severity), timestamp, a.Severity, a.ThreatType, a.SourceAddr, a.AnomalyScore, a.Confidence)
	if a.Description != "" {
		fmt.Fprintf(w, "   %s\n", a.Description)
	}
	if a.Recommendation != "" {
		fmt.Fprintf(w, "   -> %s\n", a.Recommendation)
	}
}

func severityMarker(s model.Severity) string {
	switch s {
	case model.SeverityCritical, model.SeverityHigh:
		return "🔴"
	case model.SeverityMedium:
		return "🟡"
	case model.SeverityLow:
		return "🟢"
	default:
		return "⚠️"
	}
}

func testTelegramNotification(config *utils.Config, logger *logrus.Logger) int {
	tg := config.Alerting.Telegram
	notifier := alert.NewTelegramNotifier(alert.TelegramConfig{
		BotToken:      tg.BotToken,
		ChatID:        tg.ChatID,
		ParseMode:     tg.ParseMode,
		Enabled:       tg.Enabled,
		APIBase:       tg.APIBase,
		Timeout:       time.Duration(tg.TimeoutSeconds) * time.Second,
		RetryAttempts: tg.RetryAttempts,
	}, logger)

	if !notifier.IsEnabled() {
		fmt.Println("❌ Telegram notifier is disabled in configuration")
		return 1
	}

	fmt.Println("Sending test message to Telegram...")
	if err := notifier.SendTestMessage(); err != nil {
		fmt.Printf("❌ Failed to send test message: %v\n", err)
		return 1
	}

	fmt.Println("✅ Test message sent successfully to Telegram!")
	return 0
}
