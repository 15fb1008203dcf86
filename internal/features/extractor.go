// Package features turns a normalized event into the fixed-length vector the
// anomaly scorer consumes. Slot order is part of the scorer contract.
package features

import (
	"math"
	"strconv"
	"strings"

	"threat-detector/internal/model"
)

// Size is the number of slots in a Vector.
const Size = 10

// Names labels each slot, in order.
var Names = []string{
	"source_port",
	"dest_port",
	"byte_count_log",
	"packet_count_log",
	"protocol",
	"action",
	"source_addr_diversity",
	"dest_addr_diversity",
	"hour_of_day",
	"bytes_per_packet",
}

// Vector holds Size values, each in [0,1].
type Vector []float64

var protocolValues = map[string]float64{
	"tcp":   0.3,
	"udp":   0.6,
	"icmp":  0.9,
	"http":  0.2,
	"https": 0.25,
	"ssh":   0.4,
	"ftp":   0.5,
}

// Checked in order; the first key contained in the action wins.
var actionValues = []struct {
	key   string
	value float64
}{
	{"allow", 0.1},
	{"deny", 0.9},
	{"drop", 0.95},
	{"reject", 0.85},
	{"accept", 0.2},
	{"fail", 0.8},
	{"success", 0.15},
}

const (
	neutral        = 0.5
	maxPort        = 65535.0
	typicalMTU     = 1500.0
	bytesLogScale  = 10.0
	packetLogScale = 5.0
)

// Extract is pure and total: any combination of defaulted fields yields a
// vector with every slot in [0,1].
func Extract(ev *model.Event) Vector {
	if ev == nil {
		ev = &model.Event{}
	}

	return Vector{
		clamp(float64(ev.SourcePort) / maxPort),
		clamp(float64(ev.DestPort) / maxPort),
		logScaled(ev.ByteCount, bytesLogScale),
		logScaled(ev.PacketCount, packetLogScale),
		protocolValues[strings.ToLower(ev.Protocol)],
		actionValue(ev.Action),
		addrDiversity(ev.SourceAddr),
		addrDiversity(ev.DestAddr),
		hourOfDay(ev),
		bytesPerPacket(ev.ByteCount, ev.PacketCount),
	}
}

func logScaled(n int64, scale float64) float64 {
	if n <= 0 {
		return 0
	}
	return clamp(math.Log10(float64(n)+1) / scale)
}

func actionValue(action string) float64 {
	a := strings.ToLower(action)
	for _, entry := range actionValues {
		if strings.Contains(a, entry.key) {
			return entry.value
		}
	}
	return neutral
}

// addrDiversity uses the last dotted-quad octet as a cheap spread measure.
func addrDiversity(addr string) float64 {
	parts := strings.Split(addr, ".")
	if len(parts) != 4 {
		return neutral
	}
	octet, err := strconv.Atoi(parts[3])
	if err != nil {
		return neutral
	}
	return clamp(float64(octet) / 255.0)
}

func hourOfDay(ev *model.Event) float64 {
	if ev.Timestamp.IsZero() {
		return neutral
	}
	return float64(ev.Timestamp.Hour()) / 24.0
}

func bytesPerPacket(bytes, packets int64) float64 {
	if packets <= 0 {
		return neutral
	}
	return clamp(float64(bytes) / float64(packets) / typicalMTU)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
