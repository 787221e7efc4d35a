// Package metrics maintains the process-wide Prometheus registry and the
// named series every component increments or observes. Grounded on the
// prometheus.NewRegistry()/NewCounterVec()/NewHistogramVec() pattern used
// across the example pack's metrics packages.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector TaylorDash exposes at /metrics.
var Registry = prometheus.NewRegistry()

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests handled, by method/endpoint/status.",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration by method/endpoint.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	DatabaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of connections currently checked out of the pool.",
		},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_seconds",
			Help:    "Database query duration by operation/table.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	MQTTIngestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_ingest_total",
			Help: "Bus messages successfully mirrored, by topic/kind.",
		},
		[]string{"topic", "kind"},
	)

	MQTTDLQTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_dlq_total",
			Help: "Bus messages routed to the dead-letter queue, by topic/reason.",
		},
		[]string{"topic", "reason"},
	)

	MQTTEventLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mqtt_event_latency_seconds",
			Help:    "End-to-end latency from message delivery to mirror/DLQ outcome.",
			Buckets: prometheus.DefBuckets,
		},
	)

	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Authentication attempts, by result/method.",
		},
		[]string{"result", "method"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Number of currently active sessions.",
		},
	)

	PluginSecurityViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plugin_security_violations_total",
			Help: "Security violations recorded, by plugin/violation_type/severity.",
		},
		[]string{"plugin_id", "violation_type", "severity"},
	)

	PluginSecurityScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "plugin_security_score",
			Help: "Current security score per plugin.",
		},
		[]string{"plugin_id"},
	)

	LoggingSinkDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "logging_sink_dropped_total",
			Help: "Application log records dropped because the sink queue was full.",
		},
	)
)

func init() {
	Registry.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DatabaseConnectionsActive,
		DatabaseQueryDuration,
		MQTTIngestTotal,
		MQTTDLQTotal,
		MQTTEventLatency,
		AuthAttemptsTotal,
		ActiveSessions,
		PluginSecurityViolationsTotal,
		PluginSecurityScore,
		LoggingSinkDroppedTotal,
	)
}

// Handler returns the Prometheus text-exposition HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
