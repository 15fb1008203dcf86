package storage

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"threat-detector/internal/metrics"
	"threat-detector/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStorage(cfg Config) (*Storage, *time.Time) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	s := NewStorage(cfg, logger)
	now := base
	s.now = func() time.Time { return now }
	return s, &now
}

func alertAt(src string, sev model.Severity, threat string, offset time.Duration) model.Alert {
	return model.Alert{
		Timestamp:  base.Add(offset),
		Severity:   sev,
		ThreatType: threat,
		SourceAddr: src,
		DestAddr:   "10.0.0.1",
	}
}

func TestAddAlert_AssignsIDAndCapsHistory(t *testing.T) {
	s, _ := newTestStorage(Config{MaxAlerts: 3})

	var ids []string
	for i := 0; i < 5; i++ {
		a := s.AddAlert(alertAt("1.1.1.1", model.SeverityHigh, "SQL Injection", time.Duration(i)*time.Second))
		require.NotEmpty(t, a.ID)
		ids = append(ids, a.ID)
	}

	assert.Equal(t, 3, s.AlertCount())
	_, ok := s.GetAlertByID(ids[0])
	assert.False(t, ok, "oldest alert should have been trimmed")
	_, ok = s.GetAlertByID(ids[4])
	assert.True(t, ok)
}

func TestGetAlerts_NewestFirstWithFilters(t *testing.T) {
	s, _ := newTestStorage(Config{})
	s.AddAlert(alertAt("1.1.1.1", model.SeverityHigh, "Brute Force Attack", 0))
	s.AddAlert(alertAt("2.2.2.2", model.SeverityCritical, "DDoS Attack", time.Minute))
	s.AddAlert(alertAt("1.1.1.1", model.SeverityCritical, "Port Scan", 2*time.Minute))

	all := s.GetAlerts(AlertFilter{})
	require.Len(t, all, 3)
	assert.Equal(t, "Port Scan", all[0].ThreatType)
	assert.Equal(t, "Brute Force Attack", all[2].ThreatType)

	critical := s.GetAlerts(AlertFilter{Severity: model.SeverityCritical})
	assert.Len(t, critical, 2)

	byIP := s.GetAlerts(AlertFilter{IP: "1.1.1.1"})
	assert.Len(t, byIP, 2)

	byType := s.GetAlerts(AlertFilter{ThreatType: "DDoS Attack"})
	require.Len(t, byType, 1)
	assert.Equal(t, "2.2.2.2", byType[0].SourceAddr)

	limited := s.GetAlerts(AlertFilter{Limit: 1})
	require.Len(t, limited, 1)
	assert.Equal(t, "Port Scan", limited[0].ThreatType)
}

func TestDeleteAndClearAlerts(t *testing.T) {
	s, _ := newTestStorage(Config{})
	a := s.AddAlert(alertAt("1.1.1.1", model.SeverityHigh, "Malware", 0))
	s.AddAlert(alertAt("1.1.1.1", model.SeverityHigh, "Malware", time.Second))

	assert.True(t, s.DeleteAlert(a.ID))
	assert.False(t, s.DeleteAlert(a.ID))
	assert.Equal(t, 1, s.AlertCount())

	assert.Equal(t, 1, s.ClearAlerts())
	assert.Equal(t, 0, s.AlertCount())

	logs := s.GetActionLogs(0)
	require.Len(t, logs, 2)
	assert.Equal(t, ActionClearAlerts, logs[0].Action)
	assert.Equal(t, ActionDeleteAlert, logs[1].Action)
}

func TestGetStats(t *testing.T) {
	s, _ := newTestStorage(Config{})
	for i := 0; i < 12; i++ {
		s.AddAlert(alertAt("3.3.3.3", model.SeverityCritical, "DDoS Attack", time.Duration(i)*time.Second))
	}
	s.AddAlert(alertAt("4.4.4.4", model.SeverityMedium, "", time.Hour))
	s.BlockIP("3.3.3.3", "flood", 0, "manual")

	stats := s.GetStats()
	assert.Equal(t, 13, stats.TotalAlerts)
	assert.Equal(t, 12, stats.SeverityCounts[model.SeverityCritical])
	assert.Equal(t, 1, stats.SeverityCounts[model.SeverityMedium])
	assert.Contains(t, stats.SeverityCounts, model.SeverityLow)
	assert.Equal(t, 12, stats.AttackTypes["DDoS Attack"])
	assert.Equal(t, 1, stats.AttackTypes["Unknown"])
	assert.Len(t, stats.RecentAlerts, recentAlertsCount)
	assert.Equal(t, "4.4.4.4", stats.RecentAlerts[0].SourceAddr)
	assert.Equal(t, 1, stats.BlockedIPsCount)
	require.NotEmpty(t, stats.TopOffendingIPs)
	assert.Equal(t, OffenderCount{IP: "3.3.3.3", Count: 12}, stats.TopOffendingIPs[0])
}

func TestBlockIP_PermanentAndExpiring(t *testing.T) {
	s, now := newTestStorage(Config{})
	s.AddAlert(alertAt("5.5.5.5", model.SeverityCritical, "Port Scan", 0))
	s.AddAlert(alertAt("5.5.5.5", model.SeverityCritical, "Port Scan", time.Second))

	perm := s.BlockIP("5.5.5.5", "Manual block", 0, "manual")
	assert.Equal(t, "permanent", perm.Duration)
	assert.Nil(t, perm.ExpiresAt)
	assert.Equal(t, 2, perm.AlertCount)

	temp := s.BlockIP("6.6.6.6", "auto", time.Hour, "auto")
	require.NotNil(t, temp.ExpiresAt)
	assert.Equal(t, base.Add(time.Hour), *temp.ExpiresAt)

	assert.True(t, s.IsBlocked("5.5.5.5"))
	assert.True(t, s.IsBlocked("6.6.6.6"))
	assert.Len(t, s.GetBlockedIPs(), 2)

	*now = base.Add(time.Hour)
	assert.False(t, s.IsBlocked("6.6.6.6"))
	blocked := s.GetBlockedIPs()
	require.Len(t, blocked, 1)
	assert.Equal(t, "5.5.5.5", blocked[0].IP)

	logs := s.GetActionLogs(0)
	require.Len(t, logs, 2)
	assert.Equal(t, ActionAutoBlockIP, logs[0].Action)
	assert.Equal(t, ActionBlockIP, logs[1].Action)
}

func TestAutoBlock_DoesNotExtendExistingBlock(t *testing.T) {
	s, now := newTestStorage(Config{})

	assert.True(t, s.AutoBlock("1.2.3.4", "Port Scan", time.Hour))
	*now = base.Add(30 * time.Minute)
	assert.False(t, s.AutoBlock("1.2.3.4", "Port Scan", time.Hour))

	blocked := s.GetBlockedIPs()
	require.Len(t, blocked, 1)
	assert.Equal(t, "auto", blocked[0].BlockedBy)
	assert.Equal(t, base.Add(time.Hour), *blocked[0].ExpiresAt)
}

func TestAutoBlock_ConcurrentAlertsBlockOnce(t *testing.T) {
	s, _ := newTestStorage(Config{})

	var (
		wg      sync.WaitGroup
		blocked atomic.Int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.AutoBlock("9.9.9.9", "DDoS Attack", time.Hour) {
				blocked.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), blocked.Load())
	require.Len(t, s.GetActionLogs(0), 1)
	assert.Equal(t, ActionAutoBlockIP, s.GetActionLogs(0)[0].Action)
}

func TestUnblockIP(t *testing.T) {
	s, _ := newTestStorage(Config{})
	s.BlockIP("7.7.7.7", "Manual block", 0, "manual")

	assert.True(t, s.UnblockIP("7.7.7.7"))
	assert.False(t, s.UnblockIP("7.7.7.7"))
	assert.False(t, s.IsBlocked("7.7.7.7"))
	assert.Equal(t, ActionUnblockIP, s.GetActionLogs(1)[0].Action)
}

func TestBlockIP_UpdatesGauge(t *testing.T) {
	s, _ := newTestStorage(Config{})
	m := metrics.NewMetrics(prometheus.NewRegistry())
	s.SetMetrics(m)

	s.BlockIP("1.2.3.4", "r", 0, "manual")
	s.BlockIP("1.2.3.5", "r", 0, "manual")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BlockedIPs))

	s.UnblockIP("1.2.3.4")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlockedIPs))
}

func TestActionLogs_CappedNewestFirst(t *testing.T) {
	s, _ := newTestStorage(Config{MaxActionLogs: 2})
	s.LogAction("A", "x", "first")
	s.LogAction("B", "x", "second")
	s.LogAction("C", "x", "third")

	logs := s.GetActionLogs(0)
	require.Len(t, logs, 2)
	assert.Equal(t, "C", logs[0].Action)
	assert.Equal(t, "B", logs[1].Action)
	assert.Len(t, s.GetActionLogs(1), 1)
}

func TestGetIPHistory(t *testing.T) {
	s, _ := newTestStorage(Config{})
	s.AddAlert(alertAt("8.8.8.8", model.SeverityHigh, "Brute Force Attack", 0))
	s.AddAlert(alertAt("8.8.8.8", model.SeverityCritical, "Brute Force Attack", time.Minute))
	s.AddAlert(alertAt("8.8.8.8", model.SeverityCritical, "Port Scan", 2*time.Minute))
	s.AddAlert(alertAt("9.9.9.9", model.SeverityLow, "Malware", 0))
	s.BlockIP("8.8.8.8", "Manual block", 0, "manual")

	h := s.GetIPHistory("8.8.8.8")
	assert.Equal(t, "8.8.8.8", h.IP)
	assert.Equal(t, 3, h.Statistics.TotalAlerts)
	assert.Equal(t, 2, h.Statistics.SeverityBreakdown[model.SeverityCritical])
	assert.Equal(t, 0, h.Statistics.SeverityBreakdown[model.SeverityLow])
	assert.ElementsMatch(t, []string{"Brute Force Attack", "Port Scan"}, h.Statistics.ThreatTypes)
	require.NotNil(t, h.Statistics.FirstSeen)
	require.NotNil(t, h.Statistics.LastSeen)
	assert.Equal(t, base, *h.Statistics.FirstSeen)
	assert.Equal(t, base.Add(2*time.Minute), *h.Statistics.LastSeen)
	assert.True(t, h.Statistics.IsBlocked)
	require.NotNil(t, h.Block)
	require.Len(t, h.Actions, 1)
	assert.Equal(t, ActionBlockIP, h.Actions[0].Action)

	empty := s.GetIPHistory("10.10.10.10")
	assert.Equal(t, 0, empty.Statistics.TotalAlerts)
	assert.Nil(t, empty.Statistics.FirstSeen)
	assert.False(t, empty.Statistics.IsBlocked)
}

func TestSubscribers_FilterAndUnsubscribe(t *testing.T) {
	s, _ := newTestStorage(Config{})
	all := &AlertSubscriber{ID: "all", Channel: make(chan model.Alert, 4)}
	critical := &AlertSubscriber{
		ID:      "critical",
		Channel: make(chan model.Alert, 4),
		Filter:  AlertFilter{Severity: model.SeverityCritical},
	}
	s.SubscribeAlerts(all)
	s.SubscribeAlerts(critical)

	s.AddAlert(alertAt("1.1.1.1", model.SeverityHigh, "Malware", 0))
	s.AddAlert(alertAt("1.1.1.1", model.SeverityCritical, "Malware", time.Second))

	assert.Len(t, all.Channel, 2)
	require.Len(t, critical.Channel, 1)
	got := <-critical.Channel
	assert.Equal(t, model.SeverityCritical, got.Severity)

	s.UnsubscribeAlerts(critical)
	_, open := <-critical.Channel
	assert.False(t, open)
	s.UnsubscribeAlerts(critical)
}

func TestSubscribers_SlowConsumerDoesNotBlock(t *testing.T) {
	s, _ := newTestStorage(Config{})
	slow := &AlertSubscriber{ID: "slow", Channel: make(chan model.Alert)}
	s.SubscribeAlerts(slow)

	done := make(chan struct{})
	go func() {
		s.AddAlert(alertAt("1.1.1.1", model.SeverityHigh, "Malware", 0))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AddAlert blocked on a full subscriber")
	}
}
