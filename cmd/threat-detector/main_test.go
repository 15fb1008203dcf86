package main

import (
	"bytes"
	"testing"
	"time"

	"threat-detector/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestPrintAlert(t *testing.T) {
	var buf bytes.Buffer
	printAlert(&buf, model.Alert{
		Timestamp:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Severity:       model.SeverityCritical,
		ThreatType:     "Port Scan",
		SourceAddr:     "6.6.6.6",
		AnomalyScore:   0.912,
		Confidence:     98,
		Description:    "Multiple port connection attempts detected",
		Recommendation: "Block source IP",
	})

	out := buf.String()
	assert.Contains(t, out, "🔴 [2026-03-01 12:00:00] CRITICAL - Port Scan from 6.6.6.6 (score 0.912, confidence 98%)")
	assert.Contains(t, out, "-> Block source IP")
}

func TestSeverityMarker(t *testing.T) {
	assert.Equal(t, "🟢", severityMarker(model.SeverityLow))
	assert.Equal(t, "🟡", severityMarker(model.SeverityMedium))
	assert.Equal(t, "🔴", severityMarker(model.SeverityHigh))
	assert.Equal(t, "⚠️", severityMarker(""))
}
