// Package metrics exposes Prometheus collectors for submissions, runs, and
// job status transitions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mediarelay"

// Run kinds recorded by ObserveRun.
const (
	RunReconcile         = "reconcile"
	RunSweep             = "sweep"
	RunSubtitleReconcile = "subtitle_reconcile"
	RunSubtitleCleanup   = "subtitle_cleanup"
)

// Metrics owns a private registry so tests and multiple engines never collide.
type Metrics struct {
	registry *prometheus.Registry

	submissions      *prometheus.CounterVec
	runs             *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	transitions      *prometheus.CounterVec
	subtitleRequests *prometheus.CounterVec
	jobs             *prometheus.GaugeVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Submission attempts by outcome.",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Reconciliation, sweep, and subtitle runs by kind and result.",
		}, []string{"kind", "result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of each run.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Status transitions applied, by source and target status.",
		}, []string{"source", "status"}),
		subtitleRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subtitle_languages_total",
			Help:      "Subtitle languages handled by Request, by outcome.",
		}, []string{"outcome"}),
		jobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs",
			Help:      "Conversion jobs by transcode status.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.submissions,
		m.runs,
		m.runDuration,
		m.transitions,
		m.subtitleRequests,
		m.jobs,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSubmission counts one Submit outcome.
func (m *Metrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

// ObserveRun records one run of kind. err marks the run failed.
func (m *Metrics) ObserveRun(kind string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.runs.WithLabelValues(kind, result).Inc()
	m.runDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// AddTransitions counts n transitions to status applied by source.
func (m *Metrics) AddTransitions(source, status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.transitions.WithLabelValues(source, status).Add(float64(n))
}

// AddSubtitleLanguages counts n languages with outcome.
func (m *Metrics) AddSubtitleLanguages(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.subtitleRequests.WithLabelValues(outcome).Add(float64(n))
}

// SetJobCounts replaces the per-status job gauge.
func (m *Metrics) SetJobCounts(counts map[string]int) {
	if m == nil {
		return
	}
	m.jobs.Reset()
	for status, count := range counts {
		m.jobs.WithLabelValues(status).Set(float64(count))
	}
}
