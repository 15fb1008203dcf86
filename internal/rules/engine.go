package rules

import (
	"context"
	"sync"
	"time"

	"threat-detector/internal/metrics"
	"threat-detector/internal/model"

	"github.com/sirupsen/logrus"
)

type RuleInterface interface {
	Name() string
	IsEnabled() bool
	// Evaluate returns nil when the event does not match.
	Evaluate(ctx context.Context, ev *model.Event) *model.RuleMatch
}

// Sweeper is implemented by rules that keep per-source state.
type Sweeper interface {
	Sweep(ctx context.Context) int
}

// Tracker reports how many source addresses a stateful rule holds.
type Tracker interface {
	Tracked() int
}

// Engine evaluates rules in registration order. The first matching rule
// ends evaluation: rules after it neither see the event nor update their
// state for it.
type Engine struct {
	rules   []RuleInterface
	metrics *metrics.Metrics
	logger  *logrus.Logger
	mu      sync.RWMutex
}

func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{
		rules:  make([]RuleInterface, 0),
		logger: logger,
	}
}

func (e *Engine) RegisterRule(rule RuleInterface) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, rule)
	e.logger.Infof("Registered rule: %s (enabled: %t)", rule.Name(), rule.IsEnabled())
}

// SetMetrics enables the per-rule state gauges, refreshed on every sweep.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

// Rules returns the registered rules in evaluation order.
func (e *Engine) Rules() []RuleInterface {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rules := make([]RuleInterface, len(e.rules))
	copy(rules, e.rules)
	return rules
}

func (e *Engine) Evaluate(ctx context.Context, ev *model.Event) model.RuleMatch {
	if ev == nil {
		return model.RuleMatch{}
	}

	for _, rule := range e.Rules() {
		if !rule.IsEnabled() {
			continue
		}
		if match := rule.Evaluate(ctx, ev); match != nil && match.Matched {
			return *match
		}
	}
	return model.RuleMatch{}
}

// Sweep expires idle per-source state in every stateful rule.
func (e *Engine) Sweep(ctx context.Context) int {
	removed := 0
	for _, rule := range e.Rules() {
		if s, ok := rule.(Sweeper); ok {
			removed += s.Sweep(ctx)
		}
	}
	e.reportState()
	return removed
}

// StateSizes returns the tracked source count of every stateful rule.
func (e *Engine) StateSizes() map[string]int {
	sizes := make(map[string]int)
	for _, rule := range e.Rules() {
		if t, ok := rule.(Tracker); ok {
			sizes[rule.Name()] = t.Tracked()
		}
	}
	return sizes
}

func (e *Engine) reportState() {
	e.mu.RLock()
	m := e.metrics
	e.mu.RUnlock()
	if m == nil {
		return
	}
	for name, n := range e.StateSizes() {
		m.SetRuleState(name, n)
	}
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (e *Engine) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Infof("Starting rule state sweeper (interval: %v)", interval)

	for {
		select {
		case <-ticker.C:
			if removed := e.Sweep(ctx); removed > 0 {
				e.logger.Debugf("Swept %d expired rule state entries", removed)
			}
		case <-ctx.Done():
			e.logger.Info("Stopping rule state sweeper")
			return
		}
	}
}
