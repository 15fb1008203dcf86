package utils

import (
	"time"

	"threat-detector/internal/model"
)

type Config struct {
	Application ApplicationConfig `yaml:"application"`
	Detection   DetectionConfig   `yaml:"detection"`
	State       StateConfig       `yaml:"state"`
	Rules       []model.Rule      `yaml:"rules" validate:"dive"`
	Alerting    AlertingConfig    `yaml:"alerting"`
	Blocking    BlockingConfig    `yaml:"blocking"`
	Storage     StorageConfig     `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ApplicationConfig struct {
	APIPort     string `yaml:"api_port" validate:"required,numeric"`
	MetricsPort string `yaml:"metrics_port" validate:"required,numeric"`
}

type DetectionConfig struct {
	ModelPath      string  `yaml:"model_path"`
	TrainedOffset  float64 `yaml:"trained_offset" validate:"gte=-1,lte=1"`
	BaselineOffset float64 `yaml:"baseline_offset" validate:"gte=-1,lte=1"`
	DemoMode       bool    `yaml:"demo_mode"`
	BaselineSeed   uint64  `yaml:"baseline_seed"`
	// RulesFile, when set, replaces the inline rules list.
	RulesFile string `yaml:"rules_file"`
}

type StateConfig struct {
	CapacityPerRule      int `yaml:"capacity_per_rule" validate:"gte=1"`
	TTLSeconds           int `yaml:"ttl_seconds" validate:"gte=1"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds" validate:"gte=1"`
}

type AlertingConfig struct {
	Enabled              bool           `yaml:"enabled"`
	MaxAlertsPerMinute   int            `yaml:"max_alerts_per_minute" validate:"gte=1"`
	AlertCooldownSeconds int            `yaml:"alert_cooldown_seconds" validate:"gte=0"`
	Channels             AlertChannels  `yaml:"channels"`
	Telegram             TelegramConfig `yaml:"telegram"`
}

type AlertChannels struct {
	Log      bool `yaml:"log"`
	Telegram bool `yaml:"telegram"`
}

type TelegramConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BotToken       string `yaml:"bot_token" validate:"required_if=Enabled true"`
	ChatID         string `yaml:"chat_id" validate:"required_if=Enabled true"`
	ParseMode      string `yaml:"parse_mode" validate:"omitempty,oneof=Markdown MarkdownV2 HTML"`
	APIBase        string `yaml:"api_base" validate:"omitempty,url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"gte=1"`
	RetryAttempts  int    `yaml:"retry_attempts" validate:"gte=1"`
}

type BlockingConfig struct {
	AutoBlock   bool   `yaml:"auto_block"`
	MinSeverity string `yaml:"min_severity" validate:"oneof=LOW MEDIUM HIGH CRITICAL"`
	// DefaultDuration is a Go duration or "permanent".
	DefaultDuration string `yaml:"default_duration" validate:"required"`
}

type StorageConfig struct {
	MaxAlerts     int `yaml:"max_alerts" validate:"gte=1"`
	MaxActionLogs int `yaml:"max_action_logs" validate:"gte=1"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" validate:"oneof=DEBUG INFO WARN ERROR"`
	Format   string `yaml:"format" validate:"oneof=json text"`
	FilePath string `yaml:"file_path"`
}

const PermanentBlock = "permanent"

// ParseBlockDuration returns 0 for a permanent block.
func ParseBlockDuration(s string) (time.Duration, error) {
	if s == "" || s == PermanentBlock {
		return 0, nil
	}
	return time.ParseDuration(s)
}
