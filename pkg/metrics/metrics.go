package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine
type Metrics struct {
	registry *prometheus.Registry

	// Source fetch metrics
	FetchDuration *prometheus.HistogramVec
	FetchFailures *prometheus.CounterVec
	RetryAttempts *prometheus.CounterVec

	// Cache metrics
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	CacheEntries prometheus.Gauge

	// Cycle metrics
	CycleDuration  prometheus.Histogram
	CyclesTotal    *prometheus.CounterVec
	EntitiesScored prometheus.Gauge
	EdgesRetained  prometheus.Gauge

	// Derived-output metrics
	ActiveAlerts *prometheus.GaugeVec
	ActiveNeeds  *prometheus.GaugeVec
}

// Config holds metrics configuration
type Config struct {
	Namespace string `json:"namespace"`
	Enabled   bool   `json:"enabled"`
}

// DefaultConfig returns default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Namespace: "pulse",
		Enabled:   true,
	}
}

// NewMetrics creates and registers all Prometheus metrics on a private
// registry, exposed via Handler.
func NewMetrics(config *Config) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &Metrics{}
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Name:      "source_fetch_duration_seconds",
				Help:      "Source fetch duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"source", "status"},
		),
		FetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "source_fetch_failures_total",
				Help:      "Total number of failed source fetches by classification",
			},
			[]string{"source", "classification"},
		),
		RetryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts per operation",
			},
			[]string{"operation"},
		),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "cache_entries",
			Help:      "Number of entries currently cached",
		}),

		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Scoring cycle duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),
		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "cycles_total",
				Help:      "Total number of scoring cycles by outcome",
			},
			[]string{"outcome"},
		),
		EntitiesScored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "entities_scored",
			Help:      "Number of entities scored in the last cycle",
		}),
		EdgesRetained: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "relationship_edges_retained",
			Help:      "Number of relationship edges retained in the last cycle",
		}),

		ActiveAlerts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Name:      "active_alerts",
				Help:      "Active alerts by category and severity",
			},
			[]string{"category", "severity"},
		),
		ActiveNeeds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Name:      "active_needs",
				Help:      "Active needs by priority",
			},
			[]string{"priority"},
		),
	}

	m.registry.MustRegister(
		m.FetchDuration,
		m.FetchFailures,
		m.RetryAttempts,
		m.CacheHits,
		m.CacheMisses,
		m.CacheEntries,
		m.CycleDuration,
		m.CyclesTotal,
		m.EntitiesScored,
		m.EdgesRetained,
		m.ActiveAlerts,
		m.ActiveNeeds,
	)

	return m
}

// Handler returns an HTTP handler serving the registry
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordFetch records a source fetch outcome
func (m *Metrics) RecordFetch(source, status string, duration time.Duration) {
	if m.FetchDuration == nil {
		return
	}

	m.FetchDuration.WithLabelValues(source, status).Observe(duration.Seconds())
}

// RecordFetchFailure records a classified fetch failure
func (m *Metrics) RecordFetchFailure(source, classification string) {
	if m.FetchFailures == nil {
		return
	}

	m.FetchFailures.WithLabelValues(source, classification).Inc()
}

// RecordRetry records a retry attempt for an operation
func (m *Metrics) RecordRetry(operation string) {
	if m.RetryAttempts == nil {
		return
	}

	m.RetryAttempts.WithLabelValues(operation).Inc()
}

// RecordCacheHit records a cache hit or miss
func (m *Metrics) RecordCacheHit(hit bool) {
	if m.CacheHits == nil {
		return
	}

	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// RecordCycle records the outcome of a scoring cycle
func (m *Metrics) RecordCycle(outcome string, duration time.Duration, entities, edges int) {
	if m.CycleDuration == nil {
		return
	}

	m.CycleDuration.Observe(duration.Seconds())
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.EntitiesScored.Set(float64(entities))
	m.EdgesRetained.Set(float64(edges))
}

// UpdateCacheEntries updates the cached entry count
func (m *Metrics) UpdateCacheEntries(n int) {
	if m.CacheEntries == nil {
		return
	}

	m.CacheEntries.Set(float64(n))
}

// UpdateAlerts replaces the active alert gauges with the current cycle's counts
func (m *Metrics) UpdateAlerts(counts map[string]map[string]int) {
	if m.ActiveAlerts == nil {
		return
	}

	m.ActiveAlerts.Reset()
	for category, bySeverity := range counts {
		for severity, n := range bySeverity {
			m.ActiveAlerts.WithLabelValues(category, severity).Set(float64(n))
		}
	}
}

// UpdateNeeds replaces the active need gauges with the current cycle's counts
func (m *Metrics) UpdateNeeds(counts map[string]int) {
	if m.ActiveNeeds == nil {
		return
	}

	m.ActiveNeeds.Reset()
	for priority, n := range counts {
		m.ActiveNeeds.WithLabelValues(priority).Set(float64(n))
	}
}
