package rules

import (
	"threat-detector/internal/model"
	"threat-detector/internal/rules/builtin"
	"threat-detector/internal/state"

	"github.com/sirupsen/logrus"
)

// Threshold keys understood in rule configuration.
const (
	ThresholdFailedAttempts = "failed_attempts"
	ThresholdDistinctPorts  = "distinct_ports"
	ThresholdRequests       = "requests"
)

// Priority is the fixed evaluation order of the builtin rules.
var Priority = []string{
	builtin.BruteForceName,
	builtin.PortScanName,
	builtin.SQLInjectionName,
	builtin.DDoSName,
	builtin.MalwareName,
}

// DefaultRuleConfigs enables every builtin rule with its default threshold.
func DefaultRuleConfigs() []model.Rule {
	return []model.Rule{
		{Name: builtin.BruteForceName, Enabled: true, Description: "Repeated failed authentication from one source",
			Thresholds: map[string]interface{}{ThresholdFailedAttempts: builtin.DefaultFailedAttempts}},
		{Name: builtin.PortScanName, Enabled: true, Description: "Many distinct destination ports from one source",
			Thresholds: map[string]interface{}{ThresholdDistinctPorts: builtin.DefaultDistinctPorts}},
		{Name: builtin.SQLInjectionName, Enabled: true, Description: "SQL injection patterns in the payload"},
		{Name: builtin.DDoSName, Enabled: true, Description: "High request volume from one source",
			Thresholds: map[string]interface{}{ThresholdRequests: builtin.DefaultRequests}},
		{Name: builtin.MalwareName, Enabled: true, Description: "Malware indicators in the payload"},
	}
}

// NewDefaultEngine registers the builtin rules in priority order. Rules
// missing from configs are registered enabled with defaults; configs may
// disable rules or override thresholds but never reorder them.
func NewDefaultEngine(configs []model.Rule, stateCfg state.Config, logger *logrus.Logger) *Engine {
	byName := make(map[string]model.Rule, len(configs))
	for _, cfg := range configs {
		byName[cfg.Name] = cfg
	}
	for name := range byName {
		if !isBuiltin(name) {
			logger.Warnf("Unknown rule type: %s", name)
		}
	}

	engine := NewEngine(logger)
	for _, name := range Priority {
		cfg, ok := byName[name]
		if !ok {
			cfg = model.Rule{Name: name, Enabled: true}
		}

		switch name {
		case builtin.BruteForceName:
			engine.RegisterRule(builtin.NewBruteForceRule(cfg.Enabled, cfg.Threshold(ThresholdFailedAttempts, builtin.DefaultFailedAttempts), stateCfg, logger))
		case builtin.PortScanName:
			engine.RegisterRule(builtin.NewPortScanRule(cfg.Enabled, cfg.Threshold(ThresholdDistinctPorts, builtin.DefaultDistinctPorts), stateCfg, logger))
		case builtin.SQLInjectionName:
			engine.RegisterRule(builtin.NewSQLInjectionRule(cfg.Enabled, logger))
		case builtin.DDoSName:
			engine.RegisterRule(builtin.NewDDoSRule(cfg.Enabled, cfg.Threshold(ThresholdRequests, builtin.DefaultRequests), stateCfg, logger))
		case builtin.MalwareName:
			engine.RegisterRule(builtin.NewMalwareRule(cfg.Enabled, logger))
		}
	}
	return engine
}

func isBuiltin(name string) bool {
	for _, n := range Priority {
		if n == name {
			return true
		}
	}
	return false
}
