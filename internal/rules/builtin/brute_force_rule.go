package builtin

import (
	"context"
	"strings"

	"threat-detector/internal/model"
	"threat-detector/internal/state"

	"github.com/sirupsen/logrus"
)

const DefaultFailedAttempts = 3

var bruteForceInfo = ruleInfo{
	name:           BruteForceName,
	threatType:     "Brute Force Attack",
	description:    "Multiple failed authentication attempts detected from same source",
	recommendation: "Block source IP and enable rate limiting",
}

// BruteForceRule counts failed authentication attempts per source address
// and fires once the count reaches the threshold.
type BruteForceRule struct {
	enabled   bool
	threshold int
	attempts  *state.Table[int]
	clock     Clock
	logger    *logrus.Logger
}

func NewBruteForceRule(enabled bool, threshold int, cfg state.Config, logger *logrus.Logger) *BruteForceRule {
	if threshold <= 0 {
		threshold = DefaultFailedAttempts
	}
	return &BruteForceRule{
		enabled:   enabled,
		threshold: threshold,
		attempts:  state.New[int](cfg, nil),
		clock:     orNow(nil),
		logger:    logger,
	}
}

func (r *BruteForceRule) Name() string {
	return bruteForceInfo.name
}

func (r *BruteForceRule) IsEnabled() bool {
	return r.enabled
}

func (r *BruteForceRule) SetClock(clock Clock) {
	r.clock = orNow(clock)
}

func (r *BruteForceRule) Evaluate(ctx context.Context, ev *model.Event) *model.RuleMatch {
	if !r.enabled || ev == nil {
		return nil
	}

	action := strings.ToLower(ev.Action)
	if !strings.Contains(action, "fail") && !strings.Contains(action, "denied") {
		return nil
	}

	var count int
	r.attempts.Update(ev.SourceAddr, r.clock(), func(n *int) {
		*n++
		count = *n
	})

	r.logger.Debugf("[Brute Force] source_addr: %s, failed_attempts: %d (threshold: %d)", ev.SourceAddr, count, r.threshold)

	if count >= r.threshold {
		r.logger.Warnf("[Brute Force] %d failed attempts from %s", count, ev.SourceAddr)
		return bruteForceInfo.match()
	}
	return nil
}

// Sweep drops expired per-source counters.
func (r *BruteForceRule) Sweep(ctx context.Context) int {
	return r.attempts.Sweep(r.clock())
}

// Tracked is the number of source addresses currently held.
func (r *BruteForceRule) Tracked() int {
	return r.attempts.Len()
}
