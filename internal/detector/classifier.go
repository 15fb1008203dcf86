package detector

import (
	"fmt"
	"math"

	"threat-detector/internal/model"
)

// AnomalyThreshold is the score above which an event is a threat even when
// no rule matched.
const AnomalyThreshold = 0.45

const (
	AnomalousBehavior = "Anomalous Behavior"

	anomalyRecommendation = "Investigate source IP and recent activity"
	noThreatDescription   = "No threat detected"
	noThreatAction        = "Continue monitoring"
)

// Classify fuses an anomaly score and a rule outcome into a verdict. It is
// total: a non-finite score is treated as 0 and an inconsistent match as no
// match.
func Classify(score float64, match model.RuleMatch) model.DetectionResult {
	score = sanitize(score)
	matched := match.Matched && match.ThreatType != ""

	result := model.DetectionResult{
		IsThreat:     score > AnomalyThreshold || matched,
		AnomalyScore: score,
		RuleMatched:  matched,
		Confidence:   Confidence(score, matched),
	}

	switch {
	case matched:
		result.ThreatType = match.ThreatType
		result.RuleName = match.RuleName
		result.Description = match.Description
		result.Recommendation = match.Recommendation
	case result.IsThreat:
		result.ThreatType = AnomalousBehavior
		result.Description = fmt.Sprintf("ML model detected unusual pattern (score: %.2f)", score)
		result.Recommendation = anomalyRecommendation
	default:
		result.Description = noThreatDescription
		result.Recommendation = noThreatAction
	}
	return result
}

// Confidence is evaluated top-down; the first row that holds wins. Events
// that are not threats get 0.
func Confidence(score float64, ruleMatched bool) int {
	score = sanitize(score)
	switch {
	case ruleMatched && score > 0.75:
		return 95
	case ruleMatched && score > 0.60:
		return 85
	case ruleMatched:
		return 75
	case score > 0.80:
		return 80
	case score > 0.65:
		return 65
	case score > 0.50:
		return 55
	case score > AnomalyThreshold:
		return 45
	default:
		return 0
	}
}

// SeverityFor is the triage tier for alerts. Its ladder is deliberately
// separate from Confidence; the boundaries differ.
func SeverityFor(score float64, ruleMatched bool) model.Severity {
	score = sanitize(score)
	switch {
	case score > 0.8 && ruleMatched:
		return model.SeverityCritical
	case (score > 0.65 && ruleMatched) || score > 0.85:
		return model.SeverityHigh
	case (score > 0.5 && ruleMatched) || score > 0.65:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

func sanitize(score float64) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
