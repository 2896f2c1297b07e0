// Package metrics provides Prometheus metrics for annostore
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for annostore
type Metrics struct {
	// Search metrics
	SearchJobsTotal    *prometheus.CounterVec
	SearchJobDuration  prometheus.Histogram
	SearchJobsInFlight prometheus.Gauge
	SearchResultsTotal prometheus.Counter
	SearchBatchesTotal prometheus.Counter

	// Overlay metrics
	OverlayComputeDuration prometheus.Histogram

	// Database metrics
	DbOperationsTotal   *prometheus.CounterVec
	DbOperationDuration *prometheus.HistogramVec
	DbEntitiesTotal     prometheus.Gauge
	DbStatementsTotal   prometheus.Gauge

	// Session metrics
	SessionUptimeSeconds prometheus.Gauge
	SessionStartTime     time.Time
}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg falls back to the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		SessionStartTime: time.Now(),
	}

	// Search metrics
	m.SearchJobsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "annostore_search_jobs_total",
			Help: "Total number of finished search jobs by final state",
		},
		[]string{"state"},
	)

	m.SearchJobDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "annostore_search_job_duration_seconds",
			Help:    "Duration of search jobs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.SearchJobsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "annostore_search_jobs_in_flight",
			Help: "Number of search jobs currently running",
		},
	)

	m.SearchResultsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "annostore_search_results_total",
			Help: "Total number of search results delivered",
		},
	)

	m.SearchBatchesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "annostore_search_batches_total",
			Help: "Total number of search result batches delivered",
		},
	)

	// Overlay metrics
	m.OverlayComputeDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "annostore_overlay_compute_duration_seconds",
			Help:    "Duration of highlight overlay computation in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// Database metrics
	m.DbOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "annostore_db_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)

	m.DbOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "annostore_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	m.DbEntitiesTotal = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "annostore_db_entities_total",
			Help: "Number of entities in the loaded tree",
		},
	)

	m.DbStatementsTotal = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "annostore_db_statements_total",
			Help: "Number of statements returned by the last listing",
		},
	)

	// Session metrics
	m.SessionUptimeSeconds = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "annostore_session_uptime_seconds",
			Help: "Session uptime in seconds",
		},
	)

	return m
}

// StartUptimeUpdater periodically updates the uptime gauge until stop is closed
func (m *Metrics) StartUptimeUpdater(interval time.Duration, stop <-chan struct{}) {
	if m == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.SessionUptimeSeconds.Set(time.Since(m.SessionStartTime).Seconds())
			case <-stop:
				return
			}
		}
	}()
}

// SearchStarted records a search job entering the running state
func (m *Metrics) SearchStarted() {
	if m == nil {
		return
	}
	m.SearchJobsInFlight.Inc()
}

// SearchFinished records a search job reaching a final state
func (m *Metrics) SearchFinished(state string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SearchJobsInFlight.Dec()
	m.SearchJobsTotal.WithLabelValues(state).Inc()
	m.SearchJobDuration.Observe(duration.Seconds())
}

// SearchBatch records one delivered batch of n results
func (m *Metrics) SearchBatch(n int) {
	if m == nil {
		return
	}
	m.SearchBatchesTotal.Inc()
	m.SearchResultsTotal.Add(float64(n))
}

// ObserveOverlay records an overlay computation
func (m *Metrics) ObserveOverlay(duration time.Duration) {
	if m == nil {
		return
	}
	m.OverlayComputeDuration.Observe(duration.Seconds())
}

// RecordDbOperation records a database operation
func (m *Metrics) RecordDbOperation(operation string, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DbOperationsTotal.WithLabelValues(operation, status).Inc()
	m.DbOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetEntities records the size of the loaded taxonomy
func (m *Metrics) SetEntities(n int) {
	if m == nil {
		return
	}
	m.DbEntitiesTotal.Set(float64(n))
}

// SetStatements records how many statements the last listing returned
func (m *Metrics) SetStatements(n int) {
	if m == nil {
		return
	}
	m.DbStatementsTotal.Set(float64(n))
}
