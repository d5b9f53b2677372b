package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the portal.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	assignments     *prometheus.CounterVec
	unassignedDepth prometheus.Gauge
	queueScoreRuns  prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "request_assignments_total",
		Help: "Total successful request assignments by mode (claim or auto)",
	}, []string{"mode"})

	unassignedDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "unassigned_requests_depth",
		Help: "Unassigned pending requests observed on the last scheduler run",
	})

	queueScoreRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "queue_score_runs_total",
		Help: "Total prioritized queue computations",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, assignments, unassignedDepth, queueScoreRuns, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		assignments:     assignments,
		unassignedDepth: unassignedDepth,
		queueScoreRuns:  queueScoreRuns,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordAssignments adds successful assignments for the given mode.
func (m *MetricsService) RecordAssignments(mode string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.assignments.WithLabelValues(mode).Add(float64(count))
}

// SetUnassignedDepth records the unassigned backlog seen by the scheduler.
func (m *MetricsService) SetUnassignedDepth(depth int) {
	if m == nil {
		return
	}
	m.unassignedDepth.Set(float64(depth))
}

// RecordQueueScoreRun counts one prioritized queue computation.
func (m *MetricsService) RecordQueueScoreRun() {
	if m == nil {
		return
	}
	m.queueScoreRuns.Inc()
}
