package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"threat-detector/internal/metrics"
	"threat-detector/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Action log entries.
const (
	ActionBlockIP     = "BLOCK_IP"
	ActionAutoBlockIP = "AUTO_BLOCK_IP"
	ActionUnblockIP   = "UNBLOCK_IP"
	ActionDeleteAlert = "DELETE_ALERT"
	ActionClearAlerts = "CLEAR_ALERTS"
)

const recentAlertsCount = 10

type Config struct {
	MaxAlerts     int
	MaxActionLogs int
}

type Storage struct {
	mu         sync.RWMutex
	alerts     []model.Alert
	blocked    map[string]BlockedIP
	actions    []ActionLog
	maxAlerts  int
	maxActions int
	now        func() time.Time
	metrics    *metrics.Metrics
	logger     *logrus.Logger

	alertSubs   map[*AlertSubscriber]bool
	alertSubsMu sync.RWMutex
}

type BlockedIP struct {
	IP         string     `json:"ip"`
	Reason     string     `json:"reason"`
	BlockedAt  time.Time  `json:"blocked_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Duration   string     `json:"duration"`
	BlockedBy  string     `json:"blocked_by"`
	AlertCount int        `json:"alert_count"`
}

func (b BlockedIP) expired(now time.Time) bool {
	return b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}

type ActionLog struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Details   string    `json:"details"`
}

type AlertFilter struct {
	Severity   model.Severity
	IP         string
	ThreatType string
	Limit      int
}

func (f AlertFilter) matches(a model.Alert) bool {
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.IP != "" && !a.Involves(f.IP) {
		return false
	}
	if f.ThreatType != "" && a.ThreatType != f.ThreatType {
		return false
	}
	return true
}

type AlertSubscriber struct {
	ID       string
	Channel  chan model.Alert
	Filter   AlertFilter
	LastSeen time.Time
}

type OffenderCount struct {
	IP    string `json:"ip"`
	Count int    `json:"count"`
}

type Stats struct {
	TotalAlerts     int                    `json:"total_alerts"`
	SeverityCounts  map[model.Severity]int `json:"severity_counts"`
	AttackTypes     map[string]int         `json:"attack_types"`
	RecentAlerts    []model.Alert          `json:"recent_alerts"`
	BlockedIPsCount int                    `json:"blocked_ips_count"`
	TopOffendingIPs []OffenderCount        `json:"top_offending_ips"`
	Timestamp       time.Time              `json:"timestamp"`
}

type IPStatistics struct {
	TotalAlerts       int                    `json:"total_alerts"`
	SeverityBreakdown map[model.Severity]int `json:"severity_breakdown"`
	ThreatTypes       []string               `json:"threat_types"`
	ThreatTypeCounts  map[string]int         `json:"threat_type_counts"`
	FirstSeen         *time.Time             `json:"first_seen"`
	LastSeen          *time.Time             `json:"last_seen"`
	IsBlocked         bool                   `json:"is_blocked"`
}

type IPHistory struct {
	IP         string        `json:"ip"`
	Statistics IPStatistics  `json:"statistics"`
	Alerts     []model.Alert `json:"alerts"`
	Actions    []ActionLog   `json:"actions"`
	Block      *BlockedIP    `json:"block,omitempty"`
}

func NewStorage(cfg Config, logger *logrus.Logger) *Storage {
	if cfg.MaxAlerts <= 0 {
		cfg.MaxAlerts = 10000
	}
	if cfg.MaxActionLogs <= 0 {
		cfg.MaxActionLogs = 1000
	}
	return &Storage{
		alerts:     make([]model.Alert, 0),
		blocked:    make(map[string]BlockedIP),
		actions:    make([]ActionLog, 0),
		maxAlerts:  cfg.MaxAlerts,
		maxActions: cfg.MaxActionLogs,
		now:        time.Now,
		logger:     logger,
		alertSubs:  make(map[*AlertSubscriber]bool),
	}
}

// SetMetrics attaches the blocked address gauge.
func (s *Storage) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Alert methods
func (s *Storage) AddAlert(alert model.Alert) model.Alert {
	s.mu.Lock()
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = s.now()
	}

	s.alerts = append(s.alerts, alert)
	if len(s.alerts) > s.maxAlerts {
		s.alerts = s.alerts[len(s.alerts)-s.maxAlerts:]
	}
	s.mu.Unlock()

	s.notifySubscribers(alert)
	return alert
}

// GetAlerts returns matching alerts newest first. A zero limit means all.
func (s *Storage) GetAlerts(filter AlertFilter) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Alert, 0)
	for _, alert := range s.sortedAlertsLocked() {
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
		if filter.matches(alert) {
			result = append(result, alert)
		}
	}
	return result
}

// sortedAlertsLocked copies the alerts sorted newest first. Insertion order
// breaks ties.
func (s *Storage) sortedAlertsLocked() []model.Alert {
	out := make([]model.Alert, len(s.alerts))
	for i := range s.alerts {
		out[len(s.alerts)-1-i] = s.alerts[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func (s *Storage) GetAlertByID(id string) (model.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.alerts {
		if s.alerts[i].ID == id {
			return s.alerts[i], true
		}
	}
	return model.Alert{}, false
}

func (s *Storage) DeleteAlert(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts = append(s.alerts[:i], s.alerts[i+1:]...)
			s.logActionLocked(ActionDeleteAlert, id, "Alert deleted")
			return true
		}
	}
	return false
}

// ClearAlerts removes every alert and returns how many there were.
func (s *Storage) ClearAlerts() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.alerts)
	s.alerts = make([]model.Alert, 0)
	s.logActionLocked(ActionClearAlerts, "all", formatCount(count, "alert"))
	return count
}

func (s *Storage) AlertCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}

func (s *Storage) GetStats() Stats {
	now := s.now()

	s.mu.Lock()
	s.pruneBlockedLocked(now)
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		TotalAlerts:     len(s.alerts),
		SeverityCounts:  make(map[model.Severity]int, len(model.Severities)),
		AttackTypes:     make(map[string]int),
		BlockedIPsCount: len(s.blocked),
		Timestamp:       now,
	}
	for _, sev := range model.Severities {
		stats.SeverityCounts[sev] = 0
	}

	offenders := make(map[string]int)
	for _, alert := range s.alerts {
		stats.SeverityCounts[alert.Severity]++
		threat := alert.ThreatType
		if threat == "" {
			threat = "Unknown"
		}
		stats.AttackTypes[threat]++
		offenders[alert.SourceAddr]++
	}

	sorted := s.sortedAlertsLocked()
	if len(sorted) > recentAlertsCount {
		sorted = sorted[:recentAlertsCount]
	}
	stats.RecentAlerts = sorted
	stats.TopOffendingIPs = topOffenders(offenders, 5)
	return stats
}

func topOffenders(counts map[string]int, n int) []OffenderCount {
	out := make([]OffenderCount, 0, len(counts))
	for ip, count := range counts {
		out = append(out, OffenderCount{IP: ip, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].IP < out[j].IP
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Block list methods

// BlockIP adds or replaces a block. A zero duration blocks permanently.
func (s *Storage) BlockIP(ip, reason string, duration time.Duration, blockedBy string) BlockedIP {
	now := s.now()

	s.mu.Lock()
	entry := s.blockLocked(ip, reason, duration, blockedBy, now)
	blockedCount := len(s.blocked)
	s.mu.Unlock()

	s.metrics.SetBlockedIPs(blockedCount)
	s.logger.Infof("Blocked IP %s for %s: %s", ip, entry.Duration, reason)
	return entry
}

// AutoBlock blocks ip unless it is already blocked, so repeated alerts do
// not extend an existing block. The check and the insert share one lock.
func (s *Storage) AutoBlock(ip, reason string, duration time.Duration) bool {
	now := s.now()

	s.mu.Lock()
	if entry, ok := s.blocked[ip]; ok && !entry.expired(now) {
		s.mu.Unlock()
		return false
	}
	entry := s.blockLocked(ip, reason, duration, "auto", now)
	blockedCount := len(s.blocked)
	s.mu.Unlock()

	s.metrics.SetBlockedIPs(blockedCount)
	s.logger.Infof("Blocked IP %s for %s: %s", ip, entry.Duration, reason)
	return true
}

func (s *Storage) blockLocked(ip, reason string, duration time.Duration, blockedBy string, now time.Time) BlockedIP {
	count := 0
	for _, alert := range s.alerts {
		if alert.SourceAddr == ip {
			count++
		}
	}

	entry := BlockedIP{
		IP:         ip,
		Reason:     reason,
		BlockedAt:  now,
		Duration:   "permanent",
		BlockedBy:  blockedBy,
		AlertCount: count,
	}
	if duration > 0 {
		expires := now.Add(duration)
		entry.ExpiresAt = &expires
		entry.Duration = duration.String()
	}
	s.blocked[ip] = entry

	action := ActionBlockIP
	if blockedBy == "auto" {
		action = ActionAutoBlockIP
	}
	s.logActionLocked(action, ip, reason+" ("+entry.Duration+")")
	return entry
}

func (s *Storage) UnblockIP(ip string) bool {
	s.mu.Lock()
	_, ok := s.blocked[ip]
	if ok {
		delete(s.blocked, ip)
		s.logActionLocked(ActionUnblockIP, ip, "Block removed")
	}
	blockedCount := len(s.blocked)
	s.mu.Unlock()

	if ok {
		s.metrics.SetBlockedIPs(blockedCount)
		s.logger.Infof("Unblocked IP %s", ip)
	}
	return ok
}

func (s *Storage) IsBlocked(ip string) bool {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.blocked[ip]
	return ok && !entry.expired(now)
}

// GetBlockedIPs prunes expired blocks and returns the rest, newest first.
func (s *Storage) GetBlockedIPs() []BlockedIP {
	now := s.now()

	s.mu.Lock()
	s.pruneBlockedLocked(now)
	out := make([]BlockedIP, 0, len(s.blocked))
	for _, entry := range s.blocked {
		out = append(out, entry)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].BlockedAt.Equal(out[j].BlockedAt) {
			return out[i].BlockedAt.After(out[j].BlockedAt)
		}
		return out[i].IP < out[j].IP
	})
	return out
}

func (s *Storage) pruneBlockedLocked(now time.Time) {
	pruned := false
	for ip, entry := range s.blocked {
		if entry.expired(now) {
			delete(s.blocked, ip)
			pruned = true
		}
	}
	if pruned {
		s.metrics.SetBlockedIPs(len(s.blocked))
	}
}

// Action log methods
func (s *Storage) LogAction(action, target, details string) ActionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logActionLocked(action, target, details)
}

func (s *Storage) logActionLocked(action, target, details string) ActionLog {
	entry := ActionLog{
		ID:        uuid.NewString(),
		Timestamp: s.now(),
		Action:    action,
		Target:    target,
		Details:   details,
	}
	s.actions = append(s.actions, entry)
	if len(s.actions) > s.maxActions {
		s.actions = s.actions[len(s.actions)-s.maxActions:]
	}
	return entry
}

// GetActionLogs returns the newest entries first. A zero limit means all.
func (s *Storage) GetActionLogs(limit int) []ActionLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ActionLog, 0)
	for i := len(s.actions) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		result = append(result, s.actions[i])
	}
	return result
}

func (s *Storage) GetIPHistory(ip string) IPHistory {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	history := IPHistory{
		IP:     ip,
		Alerts: make([]model.Alert, 0),
		Statistics: IPStatistics{
			SeverityBreakdown: make(map[model.Severity]int, len(model.Severities)),
			ThreatTypes:       make([]string, 0),
			ThreatTypeCounts:  make(map[string]int),
		},
		Actions: make([]ActionLog, 0),
	}
	for _, sev := range model.Severities {
		history.Statistics.SeverityBreakdown[sev] = 0
	}

	stats := &history.Statistics
	for _, alert := range s.sortedAlertsLocked() {
		if !alert.Involves(ip) {
			continue
		}
		history.Alerts = append(history.Alerts, alert)
		stats.SeverityBreakdown[alert.Severity]++
		if stats.ThreatTypeCounts[alert.ThreatType] == 0 {
			stats.ThreatTypes = append(stats.ThreatTypes, alert.ThreatType)
		}
		stats.ThreatTypeCounts[alert.ThreatType]++

		ts := alert.Timestamp
		if stats.FirstSeen == nil || ts.Before(*stats.FirstSeen) {
			stats.FirstSeen = &ts
		}
		if stats.LastSeen == nil || ts.After(*stats.LastSeen) {
			stats.LastSeen = &ts
		}
	}
	stats.TotalAlerts = len(history.Alerts)

	if entry, ok := s.blocked[ip]; ok && !entry.expired(now) {
		stats.IsBlocked = true
		history.Block = &entry
	}

	for i := len(s.actions) - 1; i >= 0; i-- {
		if s.actions[i].Target == ip {
			history.Actions = append(history.Actions, s.actions[i])
		}
	}
	return history
}

// Subscriber methods
func (s *Storage) SubscribeAlerts(sub *AlertSubscriber) {
	s.alertSubsMu.Lock()
	defer s.alertSubsMu.Unlock()
	s.alertSubs[sub] = true
}

func (s *Storage) UnsubscribeAlerts(sub *AlertSubscriber) {
	s.alertSubsMu.Lock()
	defer s.alertSubsMu.Unlock()
	if s.alertSubs[sub] {
		delete(s.alertSubs, sub)
		close(sub.Channel)
	}
}

func (s *Storage) notifySubscribers(alert model.Alert) {
	s.alertSubsMu.RLock()
	defer s.alertSubsMu.RUnlock()

	for sub := range s.alertSubs {
		if !sub.Filter.matches(alert) {
			continue
		}

		select {
		case sub.Channel <- alert:
		default:
			s.logger.Debugf("Subscriber %s is not keeping up, dropping alert %s", sub.ID, alert.ID)
		}
	}
}

func formatCount(n int, noun string) string {
	if n == 1 {
		return "Cleared 1 " + noun
	}
	return fmt.Sprintf("Cleared %d %ss", n, noun)
}
