package builtin

import (
	"context"

	"threat-detector/internal/model"
	"threat-detector/internal/state"

	"github.com/sirupsen/logrus"
)

const DefaultRequests = 50

var ddosInfo = ruleInfo{
	name:           DDoSName,
	threatType:     "DDoS Attack",
	description:    "Abnormally high request volume from source",
	recommendation: "Enable DDoS mitigation and rate limiting",
}

// DDoSRule counts every event per source address and fires when the count
// exceeds the threshold.
type DDoSRule struct {
	enabled   bool
	threshold int
	requests  *state.Table[int64]
	clock     Clock
	logger    *logrus.Logger
}

func NewDDoSRule(enabled bool, threshold int, cfg state.Config, logger *logrus.Logger) *DDoSRule {
	if threshold <= 0 {
		threshold = DefaultRequests
	}
	return &DDoSRule{
		enabled:   enabled,
		threshold: threshold,
		requests:  state.New[int64](cfg, nil),
		clock:     orNow(nil),
		logger:    logger,
	}
}

func (r *DDoSRule) Name() string {
	return ddosInfo.name
}

func (r *DDoSRule) IsEnabled() bool {
	return r.enabled
}

func (r *DDoSRule) SetClock(clock Clock) {
	r.clock = orNow(clock)
}

func (r *DDoSRule) Evaluate(ctx context.Context, ev *model.Event) *model.RuleMatch {
	if !r.enabled || ev == nil {
		return nil
	}

	var count int64
	r.requests.Update(ev.SourceAddr, r.clock(), func(n *int64) {
		*n++
		count = *n
	})

	if count > int64(r.threshold) {
		r.logger.Warnf("[DDoS] %d requests from %s (threshold: %d)", count, ev.SourceAddr, r.threshold)
		return ddosInfo.match()
	}
	r.logger.Debugf("[DDoS] source_addr: %s, requests: %d (threshold: %d)", ev.SourceAddr, count, r.threshold)
	return nil
}

func (r *DDoSRule) Sweep(ctx context.Context) int {
	return r.requests.Sweep(r.clock())
}

func (r *DDoSRule) Tracked() int {
	return r.requests.Len()
}
