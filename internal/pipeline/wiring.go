package pipeline

import (
	"fmt"
	"time"

	"threat-detector/internal/alert"
	"threat-detector/internal/detector"
	"threat-detector/internal/metrics"
	"threat-detector/internal/model"
	"threat-detector/internal/rules"
	"threat-detector/internal/scoring"
	"threat-detector/internal/utils"

	"github.com/sirupsen/logrus"
)

// Components is a fully wired detection stack.
type Components struct {
	Scorer     *scoring.Scorer
	Engine     *rules.Engine
	Detector   *detector.Detector
	Dispatcher *alert.Dispatcher
	Processor  *Processor
}

// Build wires scorer, rule engine, detector, notifiers and processor from
// cfg. store may be nil.
func Build(cfg *utils.Config, store Store, m *metrics.Metrics, logger *logrus.Logger) (*Components, error) {
	policy, err := BlockPolicyFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	scorer := scoring.LoadScorer(cfg.Detection.ModelPath, cfg.ScoringConfig(), logger)

	engine := rules.NewDefaultEngine(cfg.Rules, cfg.StateConfig(), logger)
	engine.SetMetrics(m)

	det := detector.NewFromConfig(scorer, engine, m, logger)

	dispatcher := alert.NewDispatcher(alert.DispatcherConfig{
		MaxAlertsPerMinute: cfg.Alerting.MaxAlertsPerMinute,
		Cooldown:           cfg.AlertCooldown(),
		StateCapacity:      cfg.State.CapacityPerRule,
	}, m, logger, Notifiers(cfg, logger)...)

	return &Components{
		Scorer:     scorer,
		Engine:     engine,
		Detector:   det,
		Dispatcher: dispatcher,
		Processor:  NewProcessor(det, dispatcher, store, policy, m, logger),
	}, nil
}

// Notifiers returns the enabled alert channels.
func Notifiers(cfg *utils.Config, logger *logrus.Logger) []alert.Notifier {
	if !cfg.Alerting.Enabled {
		return nil
	}

	var notifiers []alert.Notifier
	if cfg.Alerting.Channels.Log {
		notifiers = append(notifiers, alert.NewLogAlertNotifier(logger))
	}

	tg := cfg.Alerting.Telegram
	if cfg.Alerting.Channels.Telegram && tg.Enabled {
		notifiers = append(notifiers, alert.NewTelegramNotifier(alert.TelegramConfig{
			BotToken:      tg.BotToken,
			ChatID:        tg.ChatID,
			ParseMode:     tg.ParseMode,
			Enabled:       tg.Enabled,
			APIBase:       tg.APIBase,
			Timeout:       time.Duration(tg.TimeoutSeconds) * time.Second,
			RetryAttempts: tg.RetryAttempts,
		}, logger))
		logger.Info("Telegram notifier enabled")
	}
	return notifiers
}

func BlockPolicyFromConfig(cfg *utils.Config) (BlockPolicy, error) {
	duration, err := utils.ParseBlockDuration(cfg.Blocking.DefaultDuration)
	if err != nil {
		return BlockPolicy{}, fmt.Errorf("blocking.default_duration: %w", err)
	}

	severity, ok := model.ParseSeverity(cfg.Blocking.MinSeverity)
	if !ok {
		severity = model.SeverityCritical
	}

	return BlockPolicy{
		Enabled:     cfg.Blocking.AutoBlock,
		MinSeverity: severity,
		Duration:    duration,
	}, nil
}
