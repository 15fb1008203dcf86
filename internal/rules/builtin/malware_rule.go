package builtin

import (
	"context"

	"threat-detector/internal/model"

	"github.com/sirupsen/logrus"
)

var malwarePatterns = []string{
	"malware",
	"trojan",
	"ransomware",
	"backdoor",
	"suspicious.exe",
	"cryptominer",
	"botnet",
	"powershell",
	"cmd.exe",
}

var malwareInfo = ruleInfo{
	name:           MalwareName,
	threatType:     "Malware Activity",
	description:    "Suspicious file or network pattern indicative of malware",
	recommendation: "Quarantine system and run antivirus scan",
}

type MalwareRule struct {
	enabled bool
	logger  *logrus.Logger
}

func NewMalwareRule(enabled bool, logger *logrus.Logger) *MalwareRule {
	return &MalwareRule{
		enabled: enabled,
		logger:  logger,
	}
}

func (r *MalwareRule) Name() string {
	return malwareInfo.name
}

func (r *MalwareRule) IsEnabled() bool {
	return r.enabled
}

func (r *MalwareRule) Evaluate(ctx context.Context, ev *model.Event) *model.RuleMatch {
	if !r.enabled || ev == nil {
		return nil
	}

	if pattern, ok := firstPattern(ev.PayloadText(), malwarePatterns); ok {
		r.logger.Warnf("[Malware] pattern %q in payload from %s", pattern, ev.SourceAddr)
		return malwareInfo.match()
	}
	return nil
}
