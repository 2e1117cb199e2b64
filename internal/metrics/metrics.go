// Package metrics exposes the gateway's Prometheus instrumentation: request
// and tool-call counters/histograms, active-session and active-connection
// gauges, and the /metrics HTTP handler. Grounded on
// kadirpekel-hector/pkg/observability/metrics.go's Metrics type (a
// config-gated registry of CounterVec/HistogramVec/GaugeVec fields, a
// nil-receiver-safe Record* method per metric, and a promhttp.HandlerFor
// exposition endpoint) — the go.mod this module started from lists
// prometheus/client_golang only as an indirect dependency of
// controller-runtime and never imports it directly, so this package gives
// that dependency its first direct, exercised use in this tree, retargeted
// from hector's agent/LLM/RAG domain onto the gateway's
// tenants/prefixes/tools/transports domain.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the gateway records against. A
// nil *Metrics is valid and every Record/Set/Inc method on it is a no-op,
// so callers never need a feature-flag check at the call site (same
// nil-safety idiom as hector's Metrics).
type Metrics struct {
	registry *prometheus.Registry

	// Gateway HTTP endpoint metrics (SSE/message/streamable-HTTP).
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	// Tool-call metrics, across every transport kind.
	toolCalls        *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	toolErrors       *prometheus.CounterVec

	// Session lifecycle metrics.
	sessionsCreated *prometheus.CounterVec
	sessionsActive  *prometheus.GaugeVec

	// Upstream connection metrics, per transport source.
	connectionsActive *prometheus.GaugeVec
	connectAttempts   *prometheus.CounterVec

	// Gateway runtime activation metrics.
	activations *prometheus.CounterVec
}

// New builds a Metrics instance registered on a fresh registry. Unlike
// hector's config-gated constructor, instrumentation here is always on — New
// never returns nil; a caller that wants the functionality disabled simply
// never wires the handler into its mux.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcp_gateway",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of gateway endpoint requests.",
		},
		[]string{"prefix", "endpoint", "status"},
	)
	m.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mcp_gateway",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Gateway endpoint request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"prefix", "endpoint"},
	)

	m.toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcp_gateway",
			Subsystem: "tool",
			Name:      "calls_total",
			Help:      "Total number of tools/call invocations, by resolved tool name.",
		},
		[]string{"tenant", "config", "tool"},
	)
	m.toolCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mcp_gateway",
			Subsystem: "tool",
			Name:      "call_duration_seconds",
			Help:      "Tool call duration in seconds, from dispatch to upstream response.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to 32s
		},
		[]string{"tenant", "config", "tool"},
	)
	m.toolErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcp_gateway",
			Subsystem: "tool",
			Name:      "errors_total",
			Help:      "Total number of tool call errors, by gwerrors.Kind.",
		},
		[]string{"tenant", "config", "tool", "kind"},
	)

	m.sessionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcp_gateway",
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Total number of client sessions created, by transport kind.",
		},
		[]string{"prefix", "transport"},
	)
	m.sessionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mcp_gateway",
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of currently active client sessions.",
		},
		[]string{"prefix", "transport"},
	)

	m.connectionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mcp_gateway",
			Subsystem: "upstream",
			Name:      "connections_active",
			Help:      "Number of upstream transports currently in the ready state.",
		},
		[]string{"tenant", "config", "source"},
	)
	m.connectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcp_gateway",
			Subsystem: "upstream",
			Name:      "connect_attempts_total",
			Help:      "Total number of upstream transport connect attempts and their outcome.",
		},
		[]string{"tenant", "config", "source", "result"},
	)

	m.activations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcp_gateway",
			Subsystem: "runtime",
			Name:      "activations_total",
			Help:      "Total number of McpConfig activate/deactivate calls and their outcome.",
		},
		[]string{"tenant", "config", "op", "result"},
	)

	m.registry.MustRegister(
		m.httpRequests, m.httpDuration,
		m.toolCalls, m.toolCallDuration, m.toolErrors,
		m.sessionsCreated, m.sessionsActive,
		m.connectionsActive, m.connectAttempts,
		m.activations,
	)
	return m
}

// RecordHTTPRequest records one gateway endpoint request.
func (m *Metrics) RecordHTTPRequest(prefix, endpoint, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(prefix, endpoint, status).Inc()
	m.httpDuration.WithLabelValues(prefix, endpoint).Observe(duration.Seconds())
}

// RecordToolCall records a successful tools/call invocation.
func (m *Metrics) RecordToolCall(tenant, config, tool string, duration time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tenant, config, tool).Inc()
	m.toolCallDuration.WithLabelValues(tenant, config, tool).Observe(duration.Seconds())
}

// RecordToolError records a failed tools/call invocation, tagged with the
// gwerrors.Kind string that classified the failure.
func (m *Metrics) RecordToolError(tenant, config, tool, kind string) {
	if m == nil {
		return
	}
	m.toolErrors.WithLabelValues(tenant, config, tool, kind).Inc()
}

// RecordSessionCreated records a new client session.
func (m *Metrics) RecordSessionCreated(prefix, transport string) {
	if m == nil {
		return
	}
	m.sessionsCreated.WithLabelValues(prefix, transport).Inc()
}

// SetSessionsActive sets the current active-session count for a prefix and
// transport kind.
func (m *Metrics) SetSessionsActive(prefix, transport string, count int) {
	if m == nil {
		return
	}
	m.sessionsActive.WithLabelValues(prefix, transport).Set(float64(count))
}

// SetConnectionActive marks whether an upstream source currently holds a
// ready connection (1) or not (0).
func (m *Metrics) SetConnectionActive(tenant, config, source string, active bool) {
	if m == nil {
		return
	}
	v := 0.0
	if active {
		v = 1.0
	}
	m.connectionsActive.WithLabelValues(tenant, config, source).Set(v)
}

// RecordConnectAttempt records an upstream transport connect attempt and
// its outcome ("ok" or "failed").
func (m *Metrics) RecordConnectAttempt(tenant, config, source, result string) {
	if m == nil {
		return
	}
	m.connectAttempts.WithLabelValues(tenant, config, source, result).Inc()
}

// RecordActivation records an Activate or Deactivate call and its outcome.
func (m *Metrics) RecordActivation(tenant, config, op, result string) {
	if m == nil {
		return
	}
	m.activations.WithLabelValues(tenant, config, op, result).Inc()
}

// Handler returns the /metrics exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry, for tests that want
// to scrape it directly via testutil.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
