package pipeline

import (
	"context"
	"time"

	"threat-detector/internal/alert"
	"threat-detector/internal/metrics"
	"threat-detector/internal/model"

	"github.com/sirupsen/logrus"
)

// Detector produces a verdict for one event. *detector.Detector satisfies it.
type Detector interface {
	Detect(ctx context.Context, ev *model.Event) model.DetectionResult
}

// Dispatcher delivers alerts to external notifiers.
type Dispatcher interface {
	Dispatch(alert model.Alert) (bool, error)
}

// Store keeps alerts and the block list.
type Store interface {
	AddAlert(alert model.Alert) model.Alert
	AutoBlock(ip, reason string, duration time.Duration) bool
}

// BlockPolicy controls automatic blocking of alert sources. A zero
// Duration blocks permanently.
type BlockPolicy struct {
	Enabled     bool
	MinSeverity model.Severity
	Duration    time.Duration
}

// Outcome describes what happened to one event.
type Outcome struct {
	Event    *model.Event
	Result   model.DetectionResult
	Alert    *model.Alert
	Notified bool
	Blocked  bool
}

// Processor receives events, normalizes them, runs detection and turns
// threats into stored, dispatched alerts.
type Processor struct {
	detector   Detector
	dispatcher Dispatcher
	store      Store
	policy     BlockPolicy
	metrics    *metrics.Metrics
	clock      func() time.Time
	logger     *logrus.Logger
}

// NewProcessor creates a new processor instance. dispatcher and store may
// be nil.
func NewProcessor(det Detector, dispatcher Dispatcher, store Store, policy BlockPolicy, m *metrics.Metrics, logger *logrus.Logger) *Processor {
	if policy.MinSeverity.Rank() == 0 {
		policy.MinSeverity = model.SeverityCritical
	}
	return &Processor{
		detector:   det,
		dispatcher: dispatcher,
		store:      store,
		policy:     policy,
		metrics:    m,
		clock:      time.Now,
		logger:     logger,
	}
}

// Process normalizes a raw decoded event and processes it.
func (p *Processor) Process(ctx context.Context, raw map[string]interface{}) Outcome {
	return p.ProcessEvent(ctx, model.NormalizeEvent(raw, p.clock()))
}

func (p *Processor) ProcessEvent(ctx context.Context, ev *model.Event) Outcome {
	out := Outcome{Event: ev}
	if ev == nil {
		return out
	}

	out.Result = p.detector.Detect(ctx, ev)
	if !out.Result.IsThreat {
		return out
	}

	a := alert.Build(ev, out.Result, p.clock())
	if p.store != nil {
		a = p.store.AddAlert(a)
	}
	p.metrics.AlertCreated(string(a.Severity), a.ThreatType)
	out.Alert = &a

	if p.dispatcher != nil {
		sent, err := p.dispatcher.Dispatch(a)
		if err != nil {
			p.logger.WithError(err).Warnf("Alert %s was not delivered to every notifier", a.ID)
		}
		out.Notified = sent
	}

	out.Blocked = p.autoBlock(a)
	return out
}

func (p *Processor) autoBlock(a model.Alert) bool {
	if !p.policy.Enabled || p.store == nil {
		return false
	}
	if a.Severity.Rank() < p.policy.MinSeverity.Rank() {
		return false
	}
	if a.SourceAddr == "" || a.SourceAddr == model.UnknownValue {
		return false
	}

	if !p.store.AutoBlock(a.SourceAddr, "Auto-blocked: "+a.ThreatType, p.policy.Duration) {
		return false
	}

	p.metrics.AutoBlocked()
	p.logger.WithFields(logrus.Fields{
		"source_addr": a.SourceAddr,
		"threat_type": a.ThreatType,
		"severity":    a.Severity,
	}).Warn("Source address auto-blocked")
	return true
}
