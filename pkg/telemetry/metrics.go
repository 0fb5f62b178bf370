// Package telemetry carries the observability surface: a Prometheus
// registry with the platform's counters and gauges, an OTLP trace
// pipeline, and a bus-driven collector that feeds the counters from
// events so the executors and the alert engine stay metrics-unaware.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cruciblehq/crucible/pkg/models"
)

// Metrics owns the Prometheus registry and every instrument the platform
// records. Gauges that read live service state are registered after
// construction via the Track methods, once their sources exist.
type Metrics struct {
	registry *prometheus.Registry

	executions   *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	judgeCalls   *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
}

// NewMetrics builds the registry with the platform instruments plus the
// standard Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crucible",
			Name:      "executions_total",
			Help:      "Terminal test executions by test type and final status.",
		}, []string{"test_type", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crucible",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		judgeCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crucible",
			Name:      "judge_calls_total",
			Help:      "LLM judge backend calls by backend and outcome.",
		}, []string{"backend", "outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crucible",
			Name:      "notification_deliveries_total",
			Help:      "Notification delivery transitions by channel and status.",
		}, []string{"channel", "status"}),
	}

	m.registry.MustRegister(
		m.executions,
		m.httpDuration,
		m.judgeCalls,
		m.deliveries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordExecution counts one terminal execution.
func (m *Metrics) RecordExecution(testType models.TestType, status models.ExecutionStatus) {
	m.executions.WithLabelValues(string(testType), string(status)).Inc()
}

// ObserveHTTPRequest records one served request. The path label must be
// the route pattern, not the raw URL, to keep cardinality bounded.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, elapsed time.Duration) {
	m.httpDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// RecordJudgeCall counts one judge backend call. Outcomes are "ok",
// "error" and "unparseable".
func (m *Metrics) RecordJudgeCall(backend, outcome string) {
	m.judgeCalls.WithLabelValues(backend, outcome).Inc()
}

// RecordNotificationDelivery counts one delivery transition.
func (m *Metrics) RecordNotificationDelivery(channel models.ChannelType, status models.NotificationStatus) {
	m.deliveries.WithLabelValues(string(channel), string(status)).Inc()
}

// TrackAggregatorWindow registers a gauge reading the aggregator's rolling
// window size.
func (m *Metrics) TrackAggregatorWindow(size func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "crucible",
		Name:      "aggregator_window_results",
		Help:      "Results currently held in the aggregation window.",
	}, func() float64 { return float64(size()) }))
}

// TrackActiveSessions registers a gauge reading the orchestrator's active
// session count.
func (m *Metrics) TrackActiveSessions(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "crucible",
		Name:      "active_sessions",
		Help:      "Sessions currently executing.",
	}, func() float64 { return float64(count()) }))
}
