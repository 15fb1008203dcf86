package model

import "strings"

// RuleMatch is the outcome of rule evaluation for one event.
type RuleMatch struct {
	Matched        bool   `json:"matched"`
	RuleName       string `json:"rule_name,omitempty"`
	ThreatType     string `json:"threat_type,omitempty"`
	Description    string `json:"description,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

// DetectionResult is the labeled outcome for one event. ThreatType is empty
// exactly when IsThreat is false.
type DetectionResult struct {
	IsThreat       bool    `json:"is_threat"`
	ThreatType     string  `json:"threat_type,omitempty"`
	AnomalyScore   float64 `json:"anomaly_score"`
	RuleMatched    bool    `json:"rule_matched"`
	RuleName       string  `json:"rule_name,omitempty"`
	Confidence     int     `json:"confidence"`
	Description    string  `json:"description"`
	Recommendation string  `json:"recommendation"`
}

// Severity is the four-tier triage label attached to alerts.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severities lists every tier from lowest to highest.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank orders tiers; unknown values rank below LOW.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if sev.Rank() == 0 {
		return "", false
	}
	return sev, true
}
