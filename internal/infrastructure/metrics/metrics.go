// Package metrics exposes Prometheus collectors for recomputes, statement
// generation, scheduled jobs and HTTP traffic.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "boigordo"

// Metrics holds the registered collectors. It implements the recompute and
// statement observers of the domain services.
type Metrics struct {
	registry *prometheus.Registry

	recomputes        *prometheus.CounterVec
	recomputeDuration *prometheus.HistogramVec
	statements        *prometheus.CounterVec
	statementDuration *prometheus.HistogramVec
	jobRuns           *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lot_cost_recomputes_total",
			Help:      "Lot cost recomputes by outcome.",
		}, []string{"outcome"}),
		recomputeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lot_cost_recompute_duration_seconds",
			Help:      "Lot cost recompute latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		statements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statements_generated_total",
			Help:      "Generated statements by status.",
		}, []string{"status"}),
		statementDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "statement_generation_duration_seconds",
			Help:      "Statement generation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job and result.",
		}, []string{"job", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduled job latency.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.recomputes, m.recomputeDuration,
		m.statements, m.statementDuration,
		m.jobRuns, m.jobDuration,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveRecompute records one lot cost recompute.
func (m *Metrics) ObserveRecompute(outcome string, elapsed time.Duration) {
	m.recomputes.WithLabelValues(outcome).Inc()
	m.recomputeDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveStatement records one statement generation.
func (m *Metrics) ObserveStatement(status string, elapsed time.Duration) {
	m.statements.WithLabelValues(status).Inc()
	m.statementDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// ObserveJob records one scheduled job run.
func (m *Metrics) ObserveJob(job string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
	m.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// PoolStats reads connection counts of a database pool.
type PoolStats func() (total, acquired, idle int32)

// TrackPool exports gauges of the pool read at scrape time.
func (m *Metrics) TrackPool(stats PoolStats) {
	gauge := func(name, help string, pick func(total, acquired, idle int32) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(pick(stats())) })
	}
	m.registry.MustRegister(
		gauge("total_connections", "Open connections.", func(t, _, _ int32) int32 { return t }),
		gauge("acquired_connections", "Connections in use.", func(_, a, _ int32) int32 { return a }),
		gauge("idle_connections", "Idle connections.", func(_, _, i int32) int32 { return i }),
	)
}
