// Package metrics registers the Prometheus collectors exported by the daemon
// loop: store lock contention, statement retries, and per-job run outcomes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all scanflow collectors.
type Metrics struct {
	registry *prometheus.Registry

	LockWaitSeconds        prometheus.Histogram
	LockAcquisitionsTotal  prometheus.Counter
	StatementRetriesTotal  *prometheus.CounterVec
	StatementFailuresTotal *prometheus.CounterVec
	JobRunsTotal           *prometheus.CounterVec
	JobDurationSeconds     *prometheus.HistogramVec
	NotificationsTotal     *prometheus.CounterVec
}

// New creates a Metrics instance backed by its own registry so multiple
// instances can coexist in one process.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		LockWaitSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scanflow_store_lock_wait_seconds",
			Help:    "Time spent waiting for the store advisory lock",
			Buckets: []float64{0.001, 0.01, 0.1, 1, 5, 15, 60, 300, 1800},
		}),
		LockAcquisitionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "scanflow_store_lock_acquisitions_total",
			Help: "Successful advisory lock acquisitions",
		}),
		StatementRetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scanflow_store_statement_retries_total",
			Help: "Store statements retried after a transient failure",
		}, []string{"operation"}),
		StatementFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scanflow_store_statement_failures_total",
			Help: "Store statements that failed after exhausting retries",
		}, []string{"operation"}),
		JobRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scanflow_job_runs_total",
			Help: "Pipeline job runs by outcome",
		}, []string{"job", "outcome"}),
		JobDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scanflow_job_duration_seconds",
			Help:    "Duration of pipeline job runs in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		NotificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scanflow_notifications_total",
			Help: "Outbound notifications by kind and outcome",
		}, []string{"kind", "outcome"}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveLockWait records one completed wait for the store advisory lock.
func (m *Metrics) ObserveLockWait(wait time.Duration) {
	if m == nil {
		return
	}
	m.LockWaitSeconds.Observe(wait.Seconds())
	m.LockAcquisitionsTotal.Inc()
}

// StatementRetried records a retried store statement.
func (m *Metrics) StatementRetried(operation string) {
	if m == nil {
		return
	}
	m.StatementRetriesTotal.WithLabelValues(operation).Inc()
}

// StatementFailed records a store statement that exhausted its retries.
func (m *Metrics) StatementFailed(operation string) {
	if m == nil {
		return
	}
	m.StatementFailuresTotal.WithLabelValues(operation).Inc()
}

// JobObserved records one pipeline job run.
func (m *Metrics) JobObserved(job, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.JobRunsTotal.WithLabelValues(job, outcome).Inc()
	m.JobDurationSeconds.WithLabelValues(job).Observe(duration.Seconds())
}

// NotificationObserved records one outbound notification attempt.
func (m *Metrics) NotificationObserved(kind, outcome string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind, outcome).Inc()
}
