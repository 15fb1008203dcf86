package utils

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"threat-detector/internal/model"
	"threat-detector/internal/rules"
	"threat-detector/internal/scoring"
	"threat-detector/internal/state"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "configs/threat_detector.yaml"

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig reads filename on top of DefaultConfig, so keys absent from the
// file keep their defaults.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		filename = DefaultConfigPath
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file %s: %w", filename, err)
	}

	if config.Detection.RulesFile != "" {
		loaded, err := rules.LoadRules(config.Detection.RulesFile)
		if err != nil {
			return nil, err
		}
		config.Rules = loaded
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// LoadConfigOrDefault falls back to DefaultConfig when filename does not
// exist. Any other failure is returned.
func LoadConfigOrDefault(filename string) (*Config, bool, error) {
	if filename == "" {
		filename = DefaultConfigPath
	}
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		config := DefaultConfig()
		return config, false, config.Validate()
	}

	config, err := LoadConfig(filename)
	if err != nil {
		return nil, false, err
	}
	return config, true, nil
}

// Validate fills defaults for unset values, then checks ranges.
func (c *Config) Validate() error {
	if c.Application.APIPort == "" {
		c.Application.APIPort = "5000"
	}
	if c.Application.MetricsPort == "" {
		c.Application.MetricsPort = "8080"
	}

	if c.State.CapacityPerRule <= 0 {
		c.State.CapacityPerRule = state.DefaultCapacity
	}
	if c.State.TTLSeconds <= 0 {
		c.State.TTLSeconds = int(state.DefaultTTL / time.Second)
	}
	if c.State.SweepIntervalSeconds <= 0 {
		c.State.SweepIntervalSeconds = int(state.DefaultSweepInterval / time.Second)
	}

	if len(c.Rules) == 0 {
		c.Rules = rules.DefaultRuleConfigs()
	}

	if c.Alerting.MaxAlertsPerMinute <= 0 {
		c.Alerting.MaxAlertsPerMinute = 10
	}
	if c.Alerting.AlertCooldownSeconds < 0 {
		c.Alerting.AlertCooldownSeconds = 60
	}
	if c.Alerting.Telegram.ParseMode == "" {
		c.Alerting.Telegram.ParseMode = "Markdown"
	}
	if c.Alerting.Telegram.TimeoutSeconds <= 0 {
		c.Alerting.Telegram.TimeoutSeconds = 10
	}
	if c.Alerting.Telegram.RetryAttempts <= 0 {
		c.Alerting.Telegram.RetryAttempts = 3
	}

	c.Blocking.MinSeverity = strings.ToUpper(c.Blocking.MinSeverity)
	if c.Blocking.MinSeverity == "" {
		c.Blocking.MinSeverity = string(model.SeverityCritical)
	}
	if c.Blocking.DefaultDuration == "" {
		c.Blocking.DefaultDuration = "1h"
	}

	if c.Storage.MaxAlerts <= 0 {
		c.Storage.MaxAlerts = 10000
	}
	if c.Storage.MaxActionLogs <= 0 {
		c.Storage.MaxActionLogs = 1000
	}

	c.Logging.Level = strings.ToUpper(c.Logging.Level)
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := ParseBlockDuration(c.Blocking.DefaultDuration); err != nil {
		return fmt.Errorf("blocking.default_duration: %w", err)
	}
	return nil
}

func (c *Config) StateConfig() state.Config {
	return state.Config{
		Capacity: c.State.CapacityPerRule,
		TTL:      time.Duration(c.State.TTLSeconds) * time.Second,
	}
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.State.SweepIntervalSeconds) * time.Second
}

func (c *Config) ScoringConfig() scoring.Config {
	return scoring.Config{
		TrainedOffset:  c.Detection.TrainedOffset,
		BaselineOffset: c.Detection.BaselineOffset,
		DemoMode:       c.Detection.DemoMode,
		BaselineSeed:   c.Detection.BaselineSeed,
	}
}

func (c *Config) AlertCooldown() time.Duration {
	return time.Duration(c.Alerting.AlertCooldownSeconds) * time.Second
}

func (c *Config) GetRuleConfigByName(name string) (*model.Rule, bool) {
	for i := range c.Rules {
		if c.Rules[i].Name == name {
			return &c.Rules[i], true
		}
	}
	return nil, false
}

func (c *Config) IsRuleEnabled(name string) bool {
	rule, exists := c.GetRuleConfigByName(name)
	return exists && rule.Enabled
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Application: ApplicationConfig{
			APIPort:     "5000",
			MetricsPort: "8080",
		},
		Detection: DetectionConfig{
			ModelPath:      "models/threat_model.json",
			TrainedOffset:  scoring.DefaultTrainedOffset,
			BaselineOffset: scoring.DefaultBaselineOffset,
			BaselineSeed:   scoring.DefaultBaselineSeed,
		},
		State: StateConfig{
			CapacityPerRule:      state.DefaultCapacity,
			TTLSeconds:           int(state.DefaultTTL / time.Second),
			SweepIntervalSeconds: int(state.DefaultSweepInterval / time.Second),
		},
		Rules: rules.DefaultRuleConfigs(),
		Alerting: AlertingConfig{
			Enabled:              true,
			MaxAlertsPerMinute:   10,
			AlertCooldownSeconds: 60,
			Channels: AlertChannels{
				Log: true,
			},
			Telegram: TelegramConfig{
				ParseMode:      "Markdown",
				TimeoutSeconds: 10,
				RetryAttempts:  3,
			},
		},
		Blocking: BlockingConfig{
			AutoBlock:       false,
			MinSeverity:     string(model.SeverityCritical),
			DefaultDuration: "1h",
		},
		Storage: StorageConfig{
			MaxAlerts:     10000,
			MaxActionLogs: 1000,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "json",
		},
	}
}
