package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"threat-detector/internal/metrics"
	"threat-detector/internal/model"
	"threat-detector/internal/rules/builtin"
	"threat-detector/internal/state"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger, _ := logtest.NewNullLogger()
	return logger
}

type recordingRule struct {
	name    string
	enabled bool
	matches bool
	calls   int
	swept   int
}

func (r *recordingRule) Name() string    { return r.name }
func (r *recordingRule) IsEnabled() bool { return r.enabled }

func (r *recordingRule) Evaluate(ctx context.Context, ev *model.Event) *model.RuleMatch {
	r.calls++
	if !r.matches {
		return nil
	}
	return &model.RuleMatch{Matched: true, RuleName: r.name, ThreatType: r.name}
}

func (r *recordingRule) Sweep(ctx context.Context) int {
	r.swept++
	return 1
}

func TestEngine_FirstMatchShortCircuits(t *testing.T) {
	first := &recordingRule{name: "first", enabled: true}
	second := &recordingRule{name: "second", enabled: true, matches: true}
	third := &recordingRule{name: "third", enabled: true, matches: true}

	e := NewEngine(quietLogger())
	e.RegisterRule(first)
	e.RegisterRule(second)
	e.RegisterRule(third)

	m := e.Evaluate(context.Background(), &model.Event{SourceAddr: "A"})

	assert.True(t, m.Matched)
	assert.Equal(t, "second", m.RuleName)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 0, third.calls)
}

func TestEngine_SkipsDisabledRules(t *testing.T) {
	disabled := &recordingRule{name: "disabled", matches: true}
	enabled := &recordingRule{name: "enabled", enabled: true}

	e := NewEngine(quietLogger())
	e.RegisterRule(disabled)
	e.RegisterRule(enabled)

	m := e.Evaluate(context.Background(), &model.Event{})
	assert.False(t, m.Matched)
	assert.Equal(t, 0, disabled.calls)
	assert.Equal(t, 1, enabled.calls)

	assert.Equal(t, model.RuleMatch{}, e.Evaluate(context.Background(), nil))
}

func TestEngine_SweepReachesStatefulRules(t *testing.T) {
	a := &recordingRule{name: "a", enabled: true}
	b := &recordingRule{name: "b", enabled: true}
	e := NewEngine(quietLogger())
	e.RegisterRule(a)
	e.RegisterRule(b)
	e.RegisterRule(builtin.NewSQLInjectionRule(true, quietLogger()))

	assert.Equal(t, 2, e.Sweep(context.Background()))
	assert.Equal(t, 1, a.swept)
}

func TestEngine_StartSweeperStopsOnCancel(t *testing.T) {
	rule := &recordingRule{name: "a", enabled: true}
	e := NewEngine(quietLogger())
	e.RegisterRule(rule)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.StartSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestDefaultEngine_PriorityOrder(t *testing.T) {
	e := NewDefaultEngine(nil, state.DefaultConfig(), quietLogger())

	var names []string
	for _, r := range e.Rules() {
		names = append(names, r.Name())
		assert.True(t, r.IsEnabled())
	}
	assert.Equal(t, Priority, names)
}

func TestDefaultEngine_ConfigDisablesAndOverrides(t *testing.T) {
	configs := []model.Rule{
		{Name: builtin.DDoSName, Enabled: true, Thresholds: map[string]interface{}{ThresholdRequests: 2}},
		{Name: builtin.BruteForceName, Enabled: false},
		{Name: "teleport", Enabled: true},
	}
	e := NewDefaultEngine(configs, state.DefaultConfig(), quietLogger())
	ctx := context.Background()

	failed := &model.Event{SourceAddr: "A", Action: "failed"}
	assert.False(t, e.Evaluate(ctx, failed).Matched)
	assert.False(t, e.Evaluate(ctx, failed).Matched)

	m := e.Evaluate(ctx, failed)
	assert.True(t, m.Matched)
	assert.Equal(t, "DDoS Attack", m.ThreatType, "brute force is disabled, ddos threshold lowered")
}

func TestDefaultEngine_BruteForceAbsorbsLaterRuleUpdates(t *testing.T) {
	e := NewDefaultEngine(nil, state.DefaultConfig(), quietLogger())
	ctx := context.Background()

	// 2 events advance the DDoS counter, then brute force absorbs the rest.
	for i := 0; i < 52; i++ {
		m := e.Evaluate(ctx, &model.Event{SourceAddr: "A", Action: "failed", DestPort: 22})
		if i >= 2 {
			require.True(t, m.Matched)
			assert.Equal(t, "Brute Force Attack", m.ThreatType)
		}
	}

	// The DDoS counter stands at 2, so 48 more events stay quiet and the
	// 49th fires.
	ok := &model.Event{SourceAddr: "A", Action: "success", DestPort: 22}
	for i := 0; i < 48; i++ {
		require.False(t, e.Evaluate(ctx, ok).Matched, "event %d", i)
	}
	assert.Equal(t, "DDoS Attack", e.Evaluate(ctx, ok).ThreatType)
}

func TestDefaultEngine_StateSizesReportedOnSweep(t *testing.T) {
	e := NewDefaultEngine(nil, state.DefaultConfig(), quietLogger())
	m := metrics.NewMetrics(prometheus.NewRegistry())
	e.SetMetrics(m)
	ctx := context.Background()

	e.Evaluate(ctx, &model.Event{SourceAddr: "A", Action: "success", DestPort: 80})
	e.Evaluate(ctx, &model.Event{SourceAddr: "B", Action: "success", DestPort: 80})

	sizes := e.StateSizes()
	assert.Equal(t, 0, sizes[builtin.BruteForceName])
	assert.Equal(t, 2, sizes[builtin.PortScanName])
	assert.Equal(t, 2, sizes[builtin.DDoSName])
	assert.NotContains(t, sizes, builtin.SQLInjectionName)

	assert.Equal(t, 0, e.Sweep(ctx))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RuleStateEntries.WithLabelValues(builtin.DDoSName)))
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
rules:
  - name: brute_force
    enabled: true
    thresholds:
      failed_attempts: 5
  - name: malware
    enabled: false
`), 0o644))

	rules, err := LoadRules(yamlPath)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, 5, rules[0].Threshold(ThresholdFailedAttempts, 3))
	assert.False(t, rules[1].Enabled)

	jsonPath := filepath.Join(dir, "rules.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"rules":[{"name":"ddos","enabled":true,"thresholds":{"requests":100}}]}`), 0o644))

	rules, err = LoadRules(jsonPath)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 100, rules[0].Threshold(ThresholdRequests, 50))

	noExt := filepath.Join(dir, "rules")
	require.NoError(t, os.WriteFile(noExt, []byte(`{"rules":[{"name":"port_scan","enabled":true}]}`), 0o644))
	rules, err = LoadRules(noExt)
	require.NoError(t, err)
	assert.Equal(t, "port_scan", rules[0].Name)

	_, err = LoadRules("")
	assert.Error(t, err)
	_, err = LoadRules(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
