// Package metrics provides Prometheus metrics collection for the
// memory engine, per spec.md §6's metrics block.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nexusmem/memengine/infrastructure/runtime"
)

// Metrics holds all Prometheus collectors exposed by the engine.
type Metrics struct {
	// Episode lifecycle counters.
	EpisodesStarted   *prometheus.CounterVec // labels: domain, task_type
	EpisodesCompleted *prometheus.CounterVec // labels: domain, task_type, outcome
	StepsLogged       *prometheus.CounterVec // labels: domain
	ActiveEpisodes    prometheus.Gauge

	// Retrieval.
	RetrievalsTotal    *prometheus.CounterVec   // labels: domain
	RetrievalLatency   *prometheus.HistogramVec // labels: domain
	RetrievalResultLen *prometheus.HistogramVec // labels: domain

	// Cache.
	CacheHitsTotal   *prometheus.CounterVec // labels: cache, operation
	CacheMissesTotal *prometheus.CounterVec // labels: cache, operation
	CacheSize        *prometheus.GaugeVec   // labels: cache

	// Learning.
	PatternsExtractedTotal  *prometheus.CounterVec // labels: domain
	HeuristicsPromotedTotal *prometheus.CounterVec // labels: domain

	// Errors.
	ErrorsTotal *prometheus.CounterVec // labels: component, code

	// Primary store.
	StorageQueriesTotal    *prometheus.CounterVec   // labels: operation, status
	StorageQueryDuration   *prometheus.HistogramVec // labels: operation
	StorageConnectionsOpen prometheus.Gauge
	StorageConnectionsIdle prometheus.Gauge

	// Circuit breaker.
	CircuitBreakerState *prometheus.GaugeVec // labels: breaker (0=closed,1=half-open,2=open)

	// Service health.
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a Metrics instance registered against the default
// Prometheus registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against a
// caller-supplied registerer, so tests can use a private registry
// instead of the global one.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		EpisodesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memengine_episodes_started_total",
				Help: "Total number of episodes started",
			},
			[]string{"domain", "task_type"},
		),
		EpisodesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memengine_episodes_completed_total",
				Help: "Total number of episodes completed, by outcome",
			},
			[]string{"domain", "task_type", "outcome"},
		),
		StepsLogged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memengine_steps_logged_total",
				Help: "Total number of execution steps logged",
			},
			[]string{"domain"},
		),
		ActiveEpisodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "memengine_active_episodes",
				Help: "Current number of active (in-progress) episodes",
			},
		),

		RetrievalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memengine_retrievals_total",
				Help: "Total number of retrieve_context calls",
			},
			[]string{"domain"},
		),
		RetrievalLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memengine_retrieval_duration_seconds",
				Help:    "retrieve_context latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"domain"},
		),
		RetrievalResultLen: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memengine_retrieval_result_count",
				Help:    "Number of items returned by retrieve_context",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
			},
			[]string{"domain"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memengine_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache", "operation"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memengine_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache", "operation"},
		),
		CacheSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "memengine_cache_entries",
				Help: "Current number of entries held in a cache",
			},
			[]string{"cache"},
		),

		PatternsExtractedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memengine_patterns_extracted_total",
				Help: "Total number of patterns extracted from completed episodes",
			},
			[]string{"domain"},
		),
		HeuristicsPromotedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memengine_heuristics_promoted_total",
				Help: "Total number of patterns promoted to heuristics",
			},
			[]string{"domain"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memengine_errors_total",
				Help: "Total number of errors, by component and error code",
			},
			[]string{"component", "code"},
		),

		StorageQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memengine_storage_queries_total",
				Help: "Total number of primary-store queries",
			},
			[]string{"operation", "status"},
		),
		StorageQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memengine_storage_query_duration_seconds",
				Help:    "Primary-store query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),
		StorageConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "memengine_storage_connections_open",
				Help: "Current number of open primary-store connections",
			},
		),
		StorageConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "memengine_storage_connections_idle",
				Help: "Current number of idle primary-store connections",
			},
		),

		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "memengine_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"breaker"},
		),

		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "memengine_uptime_seconds",
				Help: "Engine uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "memengine_info",
				Help: "Static engine build/environment information",
			},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.EpisodesStarted,
			m.EpisodesCompleted,
			m.StepsLogged,
			m.ActiveEpisodes,
			m.RetrievalsTotal,
			m.RetrievalLatency,
			m.RetrievalResultLen,
			m.CacheHitsTotal,
			m.CacheMissesTotal,
			m.CacheSize,
			m.PatternsExtractedTotal,
			m.HeuristicsPromotedTotal,
			m.ErrorsTotal,
			m.StorageQueriesTotal,
			m.StorageQueryDuration,
			m.StorageConnectionsOpen,
			m.StorageConnectionsIdle,
			m.CircuitBreakerState,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)

	return m
}

// RecordEpisodeStarted records a new active episode.
func (m *Metrics) RecordEpisodeStarted(domain, taskType string) {
	m.EpisodesStarted.WithLabelValues(domain, taskType).Inc()
	m.ActiveEpisodes.Inc()
}

// RecordEpisodeCompleted records an episode's terminal outcome.
func (m *Metrics) RecordEpisodeCompleted(domain, taskType, outcome string) {
	m.EpisodesCompleted.WithLabelValues(domain, taskType, outcome).Inc()
	m.ActiveEpisodes.Dec()
}

// RecordStepLogged records one execution step appended to an episode.
func (m *Metrics) RecordStepLogged(domain string) {
	m.StepsLogged.WithLabelValues(domain).Inc()
}

// RecordRetrieval records a retrieve_context call's latency and result size.
func (m *Metrics) RecordRetrieval(domain string, resultCount int, duration time.Duration) {
	m.RetrievalsTotal.WithLabelValues(domain).Inc()
	m.RetrievalLatency.WithLabelValues(domain).Observe(duration.Seconds())
	m.RetrievalResultLen.WithLabelValues(domain).Observe(float64(resultCount))
}

// RecordCacheOp records a cache hit or miss for a given cache/operation pair.
func (m *Metrics) RecordCacheOp(cache, operation string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache, operation).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cache, operation).Inc()
	}
}

// SetCacheSize reports a cache's current entry count.
func (m *Metrics) SetCacheSize(cache string, size int) {
	m.CacheSize.WithLabelValues(cache).Set(float64(size))
}

// RecordPatternExtracted records a pattern mined from completed episodes.
func (m *Metrics) RecordPatternExtracted(domain string) {
	m.PatternsExtractedTotal.WithLabelValues(domain).Inc()
}

// RecordHeuristicPromoted records a pattern promoted to a heuristic.
func (m *Metrics) RecordHeuristicPromoted(domain string) {
	m.HeuristicsPromotedTotal.WithLabelValues(domain).Inc()
}

// RecordError records an error, keyed by the component that raised it
// and its MemoryError code.
func (m *Metrics) RecordError(component, code string) {
	m.ErrorsTotal.WithLabelValues(component, code).Inc()
}

// RecordStorageQuery records a primary-store query outcome and latency.
func (m *Metrics) RecordStorageQuery(operation, status string, duration time.Duration) {
	m.StorageQueriesTotal.WithLabelValues(operation, status).Inc()
	m.StorageQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetStorageConnections reports the primary-store pool's open/idle counts.
func (m *Metrics) SetStorageConnections(open, idle int) {
	m.StorageConnectionsOpen.Set(float64(open))
	m.StorageConnectionsIdle.Set(float64(idle))
}

// SetCircuitBreakerState reports a breaker's numeric state
// (0=closed, 1=half-open, 2=open), matching resilience.State's
// underlying gobreaker ordinal.
func (m *Metrics) SetCircuitBreakerState(breaker string, state int) {
	m.CircuitBreakerState.WithLabelValues(breaker).Set(float64(state))
}

// UpdateUptime reports engine uptime since startTime.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

func getEnvironment() string {
	return string(runtime.Env())
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
// - production: disabled unless explicitly enabled via METRICS_ENABLED
// - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return !runtime.IsProduction()
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
