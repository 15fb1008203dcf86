// Package metrics holds the Prometheus instrumentation shared by the
// detector, the pipeline and the alert dispatcher. A nil *Metrics is valid
// and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "threat_detector"

type Metrics struct {
	// Detection
	EventsTotal       *prometheus.CounterVec
	ThreatsTotal      *prometheus.CounterVec
	RuleMatches       *prometheus.CounterVec
	AnomalyScore      prometheus.Histogram
	DetectionDuration prometheus.Histogram
	ScoringFailures   prometheus.Counter
	DetectionPanics   prometheus.Counter
	ModelTrained      prometheus.Gauge
	RuleStateEntries  *prometheus.GaugeVec

	// Alerting
	AlertsTotal        *prometheus.CounterVec
	Notifications      *prometheus.CounterVec
	NotificationsDrops *prometheus.CounterVec

	// Blocking
	BlockedIPs      prometheus.Gauge
	AutoBlocksTotal prometheus.Counter
}

// NewMetrics registers every metric with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Total number of events processed",
			},
			[]string{"event_type"},
		),

		ThreatsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "threats_total",
				Help:      "Total number of events classified as threats",
			},
			[]string{"threat_type"},
		),

		RuleMatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_matches_total",
				Help:      "Total number of rule matches by rule",
			},
			[]string{"rule"},
		),

		AnomalyScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "anomaly_score",
				Help:      "Distribution of anomaly scores",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
		),

		DetectionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "detection_duration_seconds",
				Help:      "Time spent classifying one event",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
		),

		ScoringFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scoring_failures_total",
				Help:      "Scoring failures replaced by the default score",
			},
		),

		DetectionPanics: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "detection_panics_total",
				Help:      "Recovered panics during detection",
			},
		),

		ModelTrained: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "model_trained",
				Help:      "1 when a trained model is loaded, 0 for the baseline model",
			},
		),

		RuleStateEntries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rule_state_entries",
				Help:      "Source addresses currently tracked per rule",
			},
			[]string{"rule"},
		),

		AlertsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Total alerts created",
			},
			[]string{"severity", "threat_type"},
		),

		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notification deliveries by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),

		NotificationsDrops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_suppressed_total",
				Help:      "Alerts not sent to notifiers",
			},
			[]string{"reason"},
		),

		BlockedIPs: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "blocked_ips",
				Help:      "Currently blocked addresses",
			},
		),

		AutoBlocksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auto_blocks_total",
				Help:      "Addresses blocked automatically",
			},
		),
	}
}

func (m *Metrics) ObserveDetection(eventType string, score float64, threatType, rule string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(eventType).Inc()
	m.AnomalyScore.Observe(score)
	m.DetectionDuration.Observe(elapsed.Seconds())
	if threatType != "" {
		m.ThreatsTotal.WithLabelValues(threatType).Inc()
	}
	if rule != "" {
		m.RuleMatches.WithLabelValues(rule).Inc()
	}
}

func (m *Metrics) ScoringFailed() {
	if m == nil {
		return
	}
	m.ScoringFailures.Inc()
}

func (m *Metrics) DetectionPanicked() {
	if m == nil {
		return
	}
	m.DetectionPanics.Inc()
}

func (m *Metrics) SetModelTrained(trained bool) {
	if m == nil {
		return
	}
	if trained {
		m.ModelTrained.Set(1)
	} else {
		m.ModelTrained.Set(0)
	}
}

func (m *Metrics) SetRuleState(rule string, entries int) {
	if m == nil {
		return
	}
	m.RuleStateEntries.WithLabelValues(rule).Set(float64(entries))
}

func (m *Metrics) AlertCreated(severity, threatType string) {
	if m == nil {
		return
	}
	m.AlertsTotal.WithLabelValues(severity, threatType).Inc()
}

func (m *Metrics) NotificationSent(channel string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.Notifications.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) NotificationSuppressed(reason string) {
	if m == nil {
		return
	}
	m.NotificationsDrops.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetBlockedIPs(n int) {
	if m == nil {
		return
	}
	m.BlockedIPs.Set(float64(n))
}

func (m *Metrics) AutoBlocked() {
	if m == nil {
		return
	}
	m.AutoBlocksTotal.Inc()
}
