package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEvent_Defaults(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	ev := NormalizeEvent(map[string]interface{}{}, now)

	assert.Equal(t, now, ev.Timestamp)
	assert.Equal(t, UnknownValue, ev.SourceAddr)
	assert.Equal(t, UnknownValue, ev.DestAddr)
	assert.Equal(t, UnknownValue, ev.Protocol)
	assert.Equal(t, UnknownValue, ev.Action)
	assert.Equal(t, DefaultEventType, ev.EventType)
	assert.Zero(t, ev.SourcePort)
	assert.Zero(t, ev.DestPort)
	assert.Zero(t, ev.ByteCount)
	assert.Zero(t, ev.PacketCount)
}

func TestNormalizeEvent_LegacyAndCurrentNames(t *testing.T) {
	now := time.Now()

	legacy := NormalizeEvent(map[string]interface{}{
		"source_ip": "192.168.1.100",
		"dest_ip":   "10.0.0.50",
		"bytes":     float64(1200),
		"packets":   "12",
		"dest_port": float64(22),
	}, now)
	assert.Equal(t, "192.168.1.100", legacy.SourceAddr)
	assert.Equal(t, "10.0.0.50", legacy.DestAddr)
	assert.Equal(t, int64(1200), legacy.ByteCount)
	assert.Equal(t, int64(12), legacy.PacketCount)
	assert.Equal(t, 22, legacy.DestPort)

	current := NormalizeEvent(map[string]interface{}{
		"source_addr":  "A",
		"byte_count":   int64(5),
		"packet_count": 2,
	}, now)
	assert.Equal(t, "A", current.SourceAddr)
	assert.Equal(t, int64(5), current.ByteCount)
	assert.Equal(t, int64(2), current.PacketCount)
}

func TestNormalizeEvent_Timestamp(t *testing.T) {
	now := time.Now()

	ev := NormalizeEvent(map[string]interface{}{"timestamp": "2025-01-02T03:04:05Z"}, now)
	assert.Equal(t, 3, ev.Timestamp.Hour())

	ev = NormalizeEvent(map[string]interface{}{"timestamp": "2025-01-02T17:04:05.123456"}, now)
	assert.Equal(t, 17, ev.Timestamp.Hour())

	ev = NormalizeEvent(map[string]interface{}{"timestamp": "yesterday"}, now)
	assert.True(t, ev.Timestamp.IsZero())
}

func TestNormalizeEvent_MalformedNumbers(t *testing.T) {
	ev := NormalizeEvent(map[string]interface{}{
		"source_port": "not-a-port",
		"bytes":       []interface{}{1, 2},
		"protocol":    "",
	}, time.Now())

	assert.Zero(t, ev.SourcePort)
	assert.Zero(t, ev.ByteCount)
	assert.Equal(t, UnknownValue, ev.Protocol)
}

func TestEvent_PayloadText(t *testing.T) {
	ev := &Event{RawPayload: map[string]interface{}{
		"query":  "SELECT * FROM Users",
		"action": "login",
	}}
	assert.Equal(t, "action: login, query: select * from users", ev.PayloadText())

	assert.Empty(t, (&Event{}).PayloadText())
	var nilEvent *Event
	assert.Empty(t, nilEvent.PayloadText())
}

func TestSeverity_RankAndParse(t *testing.T) {
	assert.Less(t, SeverityLow.Rank(), SeverityMedium.Rank())
	assert.Less(t, SeverityMedium.Rank(), SeverityHigh.Rank())
	assert.Less(t, SeverityHigh.Rank(), SeverityCritical.Rank())

	sev, ok := ParseSeverity(" critical ")
	assert.True(t, ok)
	assert.Equal(t, SeverityCritical, sev)

	_, ok = ParseSeverity("urgent")
	assert.False(t, ok)
}

func TestRule_Threshold(t *testing.T) {
	r := Rule{Thresholds: map[string]interface{}{"a": 5, "b": 7.0, "c": "x"}}
	assert.Equal(t, 5, r.Threshold("a", 1))
	assert.Equal(t, 7, r.Threshold("b", 1))
	assert.Equal(t, 1, r.Threshold("c", 1))
	assert.Equal(t, 1, r.Threshold("missing", 1))
}
