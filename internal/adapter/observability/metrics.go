package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts requests by route, method and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration observes request latency by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// ToolCallsTotal counts downstream tool calls by server, tool and outcome.
	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tool_calls_total",
			Help: "Total number of downstream tool calls by server, tool and outcome",
		},
		[]string{"server", "tool", "outcome"},
	)

	// CacheOpsTotal counts cache lookups by resource and result (hit/miss/stale).
	CacheOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_ops_total",
			Help: "Total number of cache lookups by resource and result",
		},
		[]string{"resource", "result"},
	)

	// WSConnections gauges currently registered websocket connections.
	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Number of live websocket connections",
		},
	)
	// WSMessagesSentTotal counts websocket messages delivered by type.
	WSMessagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_messages_sent_total",
			Help: "Total number of websocket messages delivered by type",
		},
		[]string{"type"},
	)

	// WorkflowExecutionsTotal counts workflow executions by final status.
	WorkflowExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_executions_total",
			Help: "Total number of workflow executions by final status",
		},
		[]string{"status"},
	)

	// AlertsTriggeredTotal counts triggered price alerts by condition.
	AlertsTriggeredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_triggered_total",
			Help: "Total number of triggered price alerts by condition",
		},
		[]string{"condition"},
	)
)

// InitMetrics registers all Prometheus collectors once per process.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(ToolCallsTotal)
	prometheus.MustRegister(CacheOpsTotal)
	prometheus.MustRegister(WSConnections)
	prometheus.MustRegister(WSMessagesSentTotal)
	prometheus.MustRegister(WorkflowExecutionsTotal)
	prometheus.MustRegister(AlertsTriggeredTotal)
}

// RecordToolCall increments the tool call counter.
func RecordToolCall(server, tool, outcome string) {
	ToolCallsTotal.WithLabelValues(server, tool, outcome).Inc()
}

// RecordCacheOp increments the cache lookup counter.
func RecordCacheOp(resource, result string) {
	CacheOpsTotal.WithLabelValues(resource, result).Inc()
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}
