package alert

import (
	"math"
	"time"

	"threat-detector/internal/detector"
	"threat-detector/internal/model"

	"github.com/google/uuid"
)

// Notifier interface for alert notification
type Notifier interface {
	Name() string
	SendAlert(alert model.Alert) error
}

// Build turns a threat verdict into an alert record. The anomaly score is
// rounded to three decimals; severity comes from the triage ladder.
func Build(ev *model.Event, result model.DetectionResult, now time.Time) model.Alert {
	if ev == nil {
		ev = &model.Event{}
	}

	timestamp := ev.Timestamp
	if timestamp.IsZero() {
		timestamp = now
	}

	return model.Alert{
		ID:             uuid.NewString(),
		Timestamp:      timestamp,
		Severity:       detector.SeverityFor(result.AnomalyScore, result.RuleMatched),
		ThreatType:     result.ThreatType,
		AnomalyScore:   math.Round(result.AnomalyScore*1000) / 1000,
		RuleMatched:    result.RuleMatched,
		RuleName:       result.RuleName,
		Confidence:     result.Confidence,
		SourceAddr:     ev.SourceAddr,
		DestAddr:       ev.DestAddr,
		DestPort:       ev.DestPort,
		Protocol:       ev.Protocol,
		Description:    result.Description,
		Recommendation: result.Recommendation,
		RawEvent:       ev.RawPayload,
	}
}
