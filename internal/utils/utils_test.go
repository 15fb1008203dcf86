package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"threat-detector/internal/scoring"
	"threat-detector/internal/state"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, scoring.DefaultTrainedOffset, cfg.ScoringConfig().TrainedOffset)
	assert.Equal(t, state.DefaultTTL, cfg.StateConfig().TTL)
	assert.Equal(t, time.Minute, cfg.SweepInterval())
	assert.Equal(t, time.Minute, cfg.AlertCooldown())
	assert.Len(t, cfg.Rules, 5)
	assert.True(t, cfg.IsRuleEnabled("ddos"))
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
application:
  api_port: "9000"
detection:
  demo_mode: true
rules:
  - name: brute_force
    enabled: false
blocking:
  auto_block: true
  min_severity: high
logging:
  level: debug
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Application.APIPort)
	assert.Equal(t, "8080", cfg.Application.MetricsPort)
	assert.True(t, cfg.Detection.DemoMode)
	assert.Equal(t, scoring.DefaultBaselineOffset, cfg.Detection.BaselineOffset)
	assert.Equal(t, "HIGH", cfg.Blocking.MinSeverity)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	require.Len(t, cfg.Rules, 1)
	assert.False(t, cfg.IsRuleEnabled("brute_force"))
	assert.False(t, cfg.IsRuleEnabled("ddos"))
}

func TestLoadConfig_RulesFile(t *testing.T) {
	rulesPath := writeFile(t, "rules.yaml", `
rules:
  - name: ddos
    enabled: true
    thresholds:
      requests: 500
`)
	path := writeFile(t, "config.yaml", "detection:\n  rules_file: "+rulesPath+"\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	rule, ok := cfg.GetRuleConfigByName("ddos")
	require.True(t, ok)
	assert.Equal(t, 500, rule.Threshold("requests", 50))
}

func TestLoadConfig_Rejects(t *testing.T) {
	tests := map[string]string{
		"bad level":         "logging:\n  level: LOUD\n",
		"bad format":        "logging:\n  format: xml\n",
		"telegram no token": "alerting:\n  telegram:\n    enabled: true\n",
		"bad duration":      "blocking:\n  default_duration: forever\n",
		"bad severity":      "blocking:\n  min_severity: urgent\n",
		"offset range":      "detection:\n  trained_offset: 3\n",
		"unnamed rule":      "rules:\n  - enabled: true\n",
		"not yaml":          "application: [\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeFile(t, "config.yaml", content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigOrDefault(t *testing.T) {
	cfg, found, err := LoadConfigOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "5000", cfg.Application.APIPort)

	_, _, err = LoadConfigOrDefault(writeFile(t, "bad.yaml", "logging:\n  level: LOUD\n"))
	assert.Error(t, err)

	cfg, found, err = LoadConfigOrDefault(writeFile(t, "ok.yaml", "storage:\n  max_alerts: 5\n"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 5, cfg.Storage.MaxAlerts)
}

func TestParseBlockDuration(t *testing.T) {
	d, err := ParseBlockDuration(PermanentBlock)
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = ParseBlockDuration("90m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	_, err = ParseBlockDuration("soon")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger("debug", "text")
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	logger = NewLogger("bogus", "")
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}

func TestNewLoggerFromConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detector.log")
	logger, closer, err := NewLoggerFromConfig(LoggingConfig{Level: "INFO", Format: "json", FilePath: path})
	require.NoError(t, err)

	logger.Info("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
