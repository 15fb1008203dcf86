package builtin

import (
	"context"

	"threat-detector/internal/model"
	"threat-detector/internal/state"

	"github.com/sirupsen/logrus"
)

const DefaultDistinctPorts = 10

var portScanInfo = ruleInfo{
	name:           PortScanName,
	threatType:     "Port Scan",
	description:    "Systematic scanning of multiple ports detected",
	recommendation: "Block source IP and investigate scanning pattern",
}

type portSet map[int]struct{}

// PortScanRule tracks the distinct destination ports each source address has
// touched and fires when there are more than the threshold.
type PortScanRule struct {
	enabled   bool
	threshold int
	ports     *state.Table[portSet]
	clock     Clock
	logger    *logrus.Logger
}

func NewPortScanRule(enabled bool, threshold int, cfg state.Config, logger *logrus.Logger) *PortScanRule {
	if threshold <= 0 {
		threshold = DefaultDistinctPorts
	}
	return &PortScanRule{
		enabled:   enabled,
		threshold: threshold,
		ports:     state.New(cfg, func() portSet { return make(portSet) }),
		clock:     orNow(nil),
		logger:    logger,
	}
}

func (r *PortScanRule) Name() string {
	return portScanInfo.name
}

func (r *PortScanRule) IsEnabled() bool {
	return r.enabled
}

func (r *PortScanRule) SetClock(clock Clock) {
	r.clock = orNow(clock)
}

func (r *PortScanRule) Evaluate(ctx context.Context, ev *model.Event) *model.RuleMatch {
	if !r.enabled || ev == nil {
		return nil
	}

	var distinct int
	r.ports.Update(ev.SourceAddr, r.clock(), func(ports *portSet) {
		// Once past the threshold the verdict cannot change, so the set
		// stops growing.
		if len(*ports) <= r.threshold {
			(*ports)[ev.DestPort] = struct{}{}
		}
		distinct = len(*ports)
	})

	r.logger.Debugf("[Port Scan] source_addr: %s, dest_port: %d, distinct_ports: %d (threshold: %d)",
		ev.SourceAddr, ev.DestPort, distinct, r.threshold)

	if distinct > r.threshold {
		r.logger.Warnf("[Port Scan] %s touched more than %d distinct ports", ev.SourceAddr, r.threshold)
		return portScanInfo.match()
	}
	return nil
}

func (r *PortScanRule) Sweep(ctx context.Context) int {
	return r.ports.Sweep(r.clock())
}

func (r *PortScanRule) Tracked() int {
	return r.ports.Len()
}
