package model

import "time"

type Rule struct {
	Name        string                 `yaml:"name" json:"name" validate:"required"`
	Enabled     bool                   `yaml:"enabled" json:"enabled"`
	Description string                 `yaml:"description" json:"description"`
	Thresholds  map[string]interface{} `yaml:"thresholds,omitempty" json:"thresholds,omitempty"`
}

// Threshold reads a numeric threshold, accepting the int and float shapes
// that YAML and JSON decoders produce.
func (r Rule) Threshold(key string, def int) int {
	switch v := r.Thresholds[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

type Alert struct {
	ID             string                 `json:"id"`
	Timestamp      time.Time              `json:"timestamp"`
	Severity       Severity               `json:"severity"`
	ThreatType     string                 `json:"threat_type"`
	AnomalyScore   float64                `json:"anomaly_score"`
	RuleMatched    bool                   `json:"rule_matched"`
	RuleName       string                 `json:"rule_name,omitempty"`
	Confidence     int                    `json:"confidence"`
	SourceAddr     string                 `json:"source_addr"`
	DestAddr       string                 `json:"dest_addr"`
	DestPort       int                    `json:"dest_port"`
	Protocol       string                 `json:"protocol"`
	Description    string                 `json:"description"`
	Recommendation string                 `json:"recommendation"`
	RawEvent       map[string]interface{} `json:"raw_event,omitempty"`
}

// Involves reports whether addr is the source or destination of the alert.
func (a Alert) Involves(addr string) bool {
	return addr != "" && (a.SourceAddr == addr || a.DestAddr == addr)
}
