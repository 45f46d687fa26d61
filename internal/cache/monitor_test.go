package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseengine/pulse/pkg/source"
	"github.com/pulseengine/pulse/pkg/types"
)

func testMonitor() *Monitor {
	return NewMonitor(MonitorConfig{
		QualityThreshold:    0.3,
		LatencyP95Threshold: 5 * time.Second,
		LatencyWindow:       10,
	})
}

func alertsOf(alerts []types.Alert, category types.AlertCategory) []types.Alert {
	var out []types.Alert
	for _, a := range alerts {
		if a.Category == category {
			out = append(out, a)
		}
	}
	return out
}

func TestEvaluate_FreshnessAlerts(t *testing.T) {
	s := newTestStore()
	s.Put("tracker", source.TypeFast, record("fresh"))

	s.Restore([]Entry{
		{
			SourceID: "tracker", EntityID: "stale",
			Record:    record("stale"),
			FetchedAt: fixedNow.Add(-20 * time.Minute),
			TTL:       15 * time.Minute,
		},
		{
			SourceID: "tracker", EntityID: "very-stale",
			Record:    record("very-stale"),
			FetchedAt: fixedNow.Add(-60 * time.Minute),
			TTL:       15 * time.Minute,
		},
	})

	m := testMonitor()
	alerts := alertsOf(m.Evaluate(s.Snapshot(), nil, fixedNow), types.AlertDataFreshness)
	require.Len(t, alerts, 2)

	byEntity := make(map[string]types.Alert)
	for _, a := range alerts {
		byEntity[a.EntityID] = a
	}

	warning := byEntity["stale"]
	assert.Equal(t, types.SeverityWarning, warning.Severity)
	assert.Equal(t, "tracker", warning.SourceID)
	assert.Contains(t, warning.Message, "20m0s old")
	assert.Contains(t, warning.Message, "TTL of 15m0s")

	critical := byEntity["very-stale"]
	assert.Equal(t, types.SeverityCritical, critical.Severity)
	assert.Contains(t, critical.Message, "more than 3x its TTL")

	assert.NotContains(t, byEntity, "fresh")
}

func TestEvaluate_DataQualityAlerts(t *testing.T) {
	s := newTestStore()
	s.Put("tracker", source.TypeFast, record("e1"))
	s.Put("tracker", source.TypeFast, record("e2"))

	coverage := map[string]float64{
		"e1": 2.0 / 7.0, // missing ~71%, above the 30% threshold
		"e2": 1.0,       // complete
	}

	m := testMonitor()
	alerts := alertsOf(m.Evaluate(s.Snapshot(), coverage, fixedNow), types.AlertDataQuality)

	require.Len(t, alerts, 1)
	assert.Equal(t, "e1", alerts[0].EntityID)
	assert.Equal(t, types.SeverityWarning, alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "missing 71% of required fields")
}

func TestEvaluate_PerformanceAlerts(t *testing.T) {
	s := newTestStore()
	m := testMonitor()

	m.ObserveLatency("slow-source", 6*time.Second)
	m.ObserveLatency("fast-source", 100*time.Millisecond)

	alerts := alertsOf(m.Evaluate(s.Snapshot(), nil, fixedNow), types.AlertAPIPerformance)

	require.Len(t, alerts, 1)
	assert.Equal(t, "slow-source", alerts[0].SourceID)
	assert.Contains(t, alerts[0].Message, "p95 latency 6s exceeds threshold 5s")
}

func TestP95_RollingWindow(t *testing.T) {
	m := NewMonitor(MonitorConfig{LatencyWindow: 4})

	for _, d := range []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second} {
		m.ObserveLatency("src", d)
	}
	assert.Equal(t, 4*time.Second, m.P95("src"))

	// The window holds the most recent 4 samples only.
	for i := 0; i < 4; i++ {
		m.ObserveLatency("src", 10*time.Millisecond)
	}
	assert.Equal(t, 10*time.Millisecond, m.P95("src"))

	assert.Equal(t, time.Duration(0), m.P95("unknown"))
}
