package cache

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulseengine/pulse/pkg/types"
)

// MonitorConfig holds the thresholds the staleness and quality monitor
// alerts on.
type MonitorConfig struct {
	// QualityThreshold is the missing-required-field ratio above which an
	// entity raises a data_quality alert.
	QualityThreshold float64 `json:"quality_threshold"`
	// LatencyP95Threshold is the rolling p95 fetch latency above which a
	// source raises an api_performance alert.
	LatencyP95Threshold time.Duration `json:"latency_p95_threshold"`
	// LatencyWindow is the number of recent fetches the rolling window keeps.
	LatencyWindow int `json:"latency_window"`
}

// DefaultMonitorConfig returns default monitor configuration
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		QualityThreshold:    0.3,
		LatencyP95Threshold: 5 * time.Second,
		LatencyWindow:       100,
	}
}

// Monitor derives freshness, quality and performance alerts from the cache.
// Alerts are cycle-scoped: Evaluate recomputes the full set each cycle, so a
// condition that cleared simply stops producing its alert.
type Monitor struct {
	config MonitorConfig

	mu        sync.Mutex
	latencies map[string]*latencyWindow
}

// NewMonitor creates a new monitor
func NewMonitor(config MonitorConfig) *Monitor {
	if config.LatencyWindow <= 0 {
		config.LatencyWindow = DefaultMonitorConfig().LatencyWindow
	}

	return &Monitor{
		config:    config,
		latencies: make(map[string]*latencyWindow),
	}
}

// ObserveLatency records one fetch duration for a source.
func (m *Monitor) ObserveLatency(sourceID string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.latencies[sourceID]
	if !ok {
		w = newLatencyWindow(m.config.LatencyWindow)
		m.latencies[sourceID] = w
	}
	w.add(d)
}

// P95 returns the rolling 95th-percentile fetch latency for a source.
func (m *Monitor) P95(sourceID string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.latencies[sourceID]
	if !ok {
		return 0
	}
	return w.p95()
}

// Evaluate derives the current alert set from a snapshot. coverage maps
// entity id to its required-field coverage ratio in [0,1].
func (m *Monitor) Evaluate(snap *Snapshot, coverage map[string]float64, now time.Time) []types.Alert {
	var alerts []types.Alert

	// Freshness: stale entries warn, critically stale entries escalate.
	for _, entry := range snap.Entries() {
		staleness := entry.Staleness(now)
		switch {
		case entry.Critical(now):
			alerts = append(alerts, types.Alert{
				ID:       uuid.New().String(),
				Category: types.AlertDataFreshness,
				Severity: types.SeverityCritical,
				SourceID: entry.SourceID,
				EntityID: entry.EntityID,
				Message: fmt.Sprintf("data for entity %s from source %s is %s old, more than 3x its TTL of %s",
					entry.EntityID, entry.SourceID, staleness.Round(time.Second), entry.TTL),
				Timestamp: now,
			})
		case entry.Stale(now):
			alerts = append(alerts, types.Alert{
				ID:       uuid.New().String(),
				Category: types.AlertDataFreshness,
				Severity: types.SeverityWarning,
				SourceID: entry.SourceID,
				EntityID: entry.EntityID,
				Message: fmt.Sprintf("data for entity %s from source %s is %s old, past its TTL of %s",
					entry.EntityID, entry.SourceID, staleness.Round(time.Second), entry.TTL),
				Timestamp: now,
			})
		}
	}

	// Quality: missing-required-field ratio above the configured threshold.
	entityIDs := make([]string, 0, len(coverage))
	for id := range coverage {
		entityIDs = append(entityIDs, id)
	}
	sort.Strings(entityIDs)

	for _, id := range entityIDs {
		missingRatio := 1 - coverage[id]
		if missingRatio > m.config.QualityThreshold {
			alerts = append(alerts, types.Alert{
				ID:       uuid.New().String(),
				Category: types.AlertDataQuality,
				Severity: types.SeverityWarning,
				EntityID: id,
				Message: fmt.Sprintf("entity %s is missing %.0f%% of required fields (threshold %.0f%%)",
					id, missingRatio*100, m.config.QualityThreshold*100),
				Timestamp: now,
			})
		}
	}

	// Performance: rolling p95 fetch latency above the configured threshold.
	m.mu.Lock()
	sourceIDs := make([]string, 0, len(m.latencies))
	for id := range m.latencies {
		sourceIDs = append(sourceIDs, id)
	}
	sort.Strings(sourceIDs)

	for _, id := range sourceIDs {
		p95 := m.latencies[id].p95()
		if p95 > m.config.LatencyP95Threshold {
			alerts = append(alerts, types.Alert{
				ID:       uuid.New().String(),
				Category: types.AlertAPIPerformance,
				Severity: types.SeverityWarning,
				SourceID: id,
				Message: fmt.Sprintf("source %s p95 latency %s exceeds threshold %s",
					id, p95.Round(time.Millisecond), m.config.LatencyP95Threshold),
				Timestamp: now,
			})
		}
	}
	m.mu.Unlock()

	return alerts
}

// latencyWindow is a fixed-size ring buffer of recent fetch durations.
type latencyWindow struct {
	samples []time.Duration
	next    int
	full    bool
}

func newLatencyWindow(size int) *latencyWindow {
	return &latencyWindow{samples: make([]time.Duration, size)}
}

func (w *latencyWindow) add(d time.Duration) {
	w.samples[w.next] = d
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

func (w *latencyWindow) p95() time.Duration {
	n := w.next
	if w.full {
		n = len(w.samples)
	}
	if n == 0 {
		return 0
	}

	sorted := make([]time.Duration, n)
	copy(sorted, w.samples[:n])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := (n*95 + 99) / 100
	if idx > 0 {
		idx--
	}
	return sorted[idx]
}
