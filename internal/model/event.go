package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	UnknownValue     = "unknown"
	DefaultEventType = "network"
)

// Event is a normalized network or security event. Every field has a defined
// default so downstream components never see missing data.
type Event struct {
	Timestamp   time.Time              `json:"timestamp"`
	SourceAddr  string                 `json:"source_addr"`
	DestAddr    string                 `json:"dest_addr"`
	SourcePort  int                    `json:"source_port"`
	DestPort    int                    `json:"dest_port"`
	Protocol    string                 `json:"protocol"`
	Action      string                 `json:"action"`
	ByteCount   int64                  `json:"byte_count"`
	PacketCount int64                  `json:"packet_count"`
	EventType   string                 `json:"event_type"`
	RawPayload  map[string]interface{} `json:"raw_payload,omitempty"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// NormalizeEvent maps a raw decoded event onto Event. Both the legacy field
// names (source_ip, bytes, ...) and the current ones (source_addr,
// byte_count, ...) are accepted. A missing timestamp defaults to now; a
// present but unparsable one is kept as the zero time.
func NormalizeEvent(raw map[string]interface{}, now time.Time) *Event {
	ev := &Event{
		SourceAddr:  stringField(raw, UnknownValue, "source_addr", "source_ip"),
		DestAddr:    stringField(raw, UnknownValue, "dest_addr", "dest_ip"),
		SourcePort:  int(intField(raw, "source_port")),
		DestPort:    int(intField(raw, "dest_port")),
		Protocol:    stringField(raw, UnknownValue, "protocol"),
		Action:      stringField(raw, UnknownValue, "action"),
		ByteCount:   intField(raw, "byte_count", "bytes"),
		PacketCount: intField(raw, "packet_count", "packets"),
		EventType:   stringField(raw, DefaultEventType, "event_type"),
		RawPayload:  raw,
	}

	value, ok := lookup(raw, "timestamp")
	if !ok {
		ev.Timestamp = now
	} else {
		ev.Timestamp = parseTimestamp(value)
	}

	return ev
}

// PayloadText renders the raw payload as a single lower-cased string of
// "key: value" pairs in key order.
func (e *Event) PayloadText() string {
	if e == nil || len(e.RawPayload) == 0 {
		return ""
	}

	keys := make([]string, 0, len(e.RawPayload))
	for k := range e.RawPayload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(fmt.Sprint(e.RawPayload[k]))
	}
	return strings.ToLower(b.String())
}

func lookup(raw map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(raw map[string]interface{}, def string, keys ...string) string {
	v, ok := lookup(raw, keys...)
	if !ok {
		return def
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return def
	}
	return s
}

func intField(raw map[string]interface{}, keys ...string) int64 {
	v, ok := lookup(raw, keys...)
	if !ok {
		return 0
	}

	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case float32:
		return int64(n)
	case float64:
		return int64(n)
	case interface{ Int64() (int64, error) }:
		if i, err := n.Int64(); err == nil {
			return i
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return int64(f)
		}
	}
	return 0
}

func parseTimestamp(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case float64:
		return time.Unix(int64(t), 0).UTC()
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts
			}
		}
	}
	return time.Time{}
}
