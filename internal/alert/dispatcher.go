package alert

import (
	"errors"
	"time"

	"threat-detector/internal/metrics"
	"threat-detector/internal/model"
	"threat-detector/internal/state"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	SuppressedCooldown  = "cooldown"
	SuppressedRateLimit = "rate_limit"
)

type DispatcherConfig struct {
	MaxAlertsPerMinute int
	// Cooldown suppresses repeat notifications for the same threat type and
	// source within the window. Zero disables it.
	Cooldown      time.Duration
	StateCapacity int
}

// Dispatcher fans alerts out to notifiers, throttled by a token bucket and
// deduplicated per (threat type, source address).
type Dispatcher struct {
	notifiers []Notifier
	limiter   *rate.Limiter
	cooldown  time.Duration
	lastSent  *state.Table[time.Time]
	metrics   *metrics.Metrics
	clock     func() time.Time
	logger    *logrus.Logger
}

func NewDispatcher(cfg DispatcherConfig, m *metrics.Metrics, logger *logrus.Logger, notifiers ...Notifier) *Dispatcher {
	if cfg.MaxAlertsPerMinute <= 0 {
		cfg.MaxAlertsPerMinute = 10
	}

	ttl := cfg.Cooldown
	if ttl <= 0 {
		ttl = time.Second
	}

	return &Dispatcher{
		notifiers: notifiers,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.MaxAlertsPerMinute)), cfg.MaxAlertsPerMinute),
		cooldown:  cfg.Cooldown,
		lastSent:  state.New[time.Time](state.Config{Capacity: cfg.StateCapacity, TTL: ttl}, nil),
		metrics:   m,
		clock:     time.Now,
		logger:    logger,
	}
}

func (d *Dispatcher) AddNotifier(n Notifier) {
	d.notifiers = append(d.notifiers, n)
}

// Dispatch sends alert to every notifier unless it is suppressed. It
// reports whether the alert was sent and joins notifier errors.
func (d *Dispatcher) Dispatch(alert model.Alert) (bool, error) {
	switch reason := d.admit(alert, d.clock()); reason {
	case SuppressedCooldown:
		d.metrics.NotificationSuppressed(reason)
		d.logger.Debugf("Alert %s for %s suppressed by cooldown", alert.ThreatType, alert.SourceAddr)
		return false, nil
	case SuppressedRateLimit:
		d.metrics.NotificationSuppressed(reason)
		d.logger.Warnf("Alert rate limit reached, dropping notification for %s", alert.ID)
		return false, nil
	}

	var errs []error
	for _, n := range d.notifiers {
		err := n.SendAlert(alert)
		d.metrics.NotificationSent(n.Name(), err)
		if err != nil {
			d.logger.Errorf("Failed to send alert via %s: %v", n.Name(), err)
			errs = append(errs, err)
		}
	}
	return true, errors.Join(errs...)
}

// admit returns the suppression reason for alert, or "" when it may be sent.
// The cooldown clock for the alert key only starts once the rate limiter has
// let the alert through.
func (d *Dispatcher) admit(alert model.Alert, now time.Time) string {
	if d.cooldown <= 0 {
		if !d.limiter.AllowN(now, 1) {
			return SuppressedRateLimit
		}
		return ""
	}

	reason := ""
	d.lastSent.Update(alert.ThreatType+"|"+alert.SourceAddr, now, func(last *time.Time) {
		switch {
		case !last.IsZero() && now.Sub(*last) < d.cooldown:
			reason = SuppressedCooldown
		case !d.limiter.AllowN(now, 1):
			reason = SuppressedRateLimit
		default:
			*last = now
		}
	})
	return reason
}
