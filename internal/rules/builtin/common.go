// Package builtin contains the closed set of detection rules. Each rule is a
// small state machine keyed by source address, or a stateless pattern check.
package builtin

import (
	"strings"
	"time"

	"threat-detector/internal/model"
)

// Rule names as they appear in configuration.
const (
	BruteForceName   = "brute_force"
	PortScanName     = "port_scan"
	SQLInjectionName = "sql_injection"
	DDoSName         = "ddos"
	MalwareName      = "malware"
)

// Clock returns the current time. Rules take one so tests can drive expiry.
type Clock func() time.Time

type ruleInfo struct {
	name           string
	threatType     string
	description    string
	recommendation string
}

func (i ruleInfo) match() *model.RuleMatch {
	return &model.RuleMatch{
		Matched:        true,
		RuleName:       i.name,
		ThreatType:     i.threatType,
		Description:    i.description,
		Recommendation: i.recommendation,
	}
}

// firstPattern returns the first pattern contained in text, which must
// already be lower case.
func firstPattern(text string, patterns []string) (string, bool) {
	for _, p := range patterns {
		if strings.Contains(text, p) {
			return p, true
		}
	}
	return "", false
}

func orNow(clock Clock) Clock {
	if clock == nil {
		return time.Now
	}
	return clock
}
