// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for API latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	BridgesActive prometheus.Gauge
	BridgesTotal  *prometheus.CounterVec
	BridgeFrames  *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cors_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_class"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cors_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_class"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cors_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cors_proxy_upstream_request_duration_seconds",
			Help:    "Upstream call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cors_proxy_upstream_responses_total",
			Help: "Total upstream responses by method and status code.",
		}, []string{"method", "status_code"}),

		BridgesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cors_proxy_websocket_bridges_active",
			Help: "Number of WebSocket bridges currently open.",
		}),

		BridgesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cors_proxy_websocket_bridges_total",
			Help: "Total WebSocket bridge attempts by outcome.",
		}, []string{"outcome"}),

		BridgeFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cors_proxy_websocket_frames_total",
			Help: "Total WebSocket frames forwarded by direction.",
		}, []string{"direction"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.BridgesActive,
		m.BridgesTotal,
		m.BridgeFrames,
	)

	return m
}

// Bridge outcome label values.
const (
	BridgeOutcomeOpen      = "open"
	BridgeOutcomeRejected  = "rejected"
	BridgeOutcomeDialError = "dial_error"
)

// Bridge direction label values.
const (
	DirectionClientToServer = "client_to_server"
	DirectionServerToClient = "server_to_client"
)

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPaths lists the fixed route label values.
var knownPaths = []string{"/healthz", "/proxy/status", "/metrics"}

// NormalizePath returns a bounded path label for Prometheus metrics.
// Embedded-target paths carry arbitrary upstream URLs, so they are
// classified by target scheme only.
func NormalizePath(path string) string {
	for _, p := range knownPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return p
		}
	}
	switch {
	case strings.HasPrefix(path, "/https://"):
		return "target_https"
	case strings.HasPrefix(path, "/http://"):
		return "target_http"
	}
	return "other"
}
