package alert

import (
	"threat-detector/internal/model"

	"github.com/sirupsen/logrus"
)

// LogAlertNotifier sends alerts to local logs
type LogAlertNotifier struct {
	logger *logrus.Logger
}

func NewLogAlertNotifier(logger *logrus.Logger) *LogAlertNotifier {
	return &LogAlertNotifier{
		logger: logger,
	}
}

func (ln *LogAlertNotifier) Name() string {
	return "log"
}

func (ln *LogAlertNotifier) SendAlert(alert model.Alert) error {
	ln.logger.WithFields(logrus.Fields{
		"alert_id":      alert.ID,
		"source_addr":   alert.SourceAddr,
		"anomaly_score": alert.AnomalyScore,
		"confidence":    alert.Confidence,
	}).Warnf("ALERT [%s] %s: %s", alert.Severity, alert.ThreatType, alert.Description)
	return nil
}
