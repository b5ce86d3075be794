package obs

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus instruments this module's two processes
// emit. Grounded on hector's pkg/observability/metrics.go per-subsystem
// CounterVec/HistogramVec layout, trimmed to the subsystems this spec
// actually has (no RAG, no embeddings).
type Metrics struct {
	registry *prometheus.Registry

	LoopSteps      *prometheus.HistogramVec
	LoopOutcomes   *prometheus.CounterVec
	LLMCalls       *prometheus.CounterVec
	LLMCallLatency *prometheus.HistogramVec
	ToolCalls      *prometheus.CounterVec
	ToolLatency    *prometheus.HistogramVec
	SessionsActive prometheus.Gauge
	HTTPRequests   *prometheus.CounterVec
	HTTPLatency    *prometheus.HistogramVec
}

// NewMetrics builds and registers every instrument under its own registry
// (never the global default — each process owns its own /metrics handler).
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}

	m.LoopSteps = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "loop", Name: "steps_total",
		Help:    "Number of steps taken by a completed ReAct loop run.",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	}, []string{"status"})

	m.LoopOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "loop", Name: "outcomes_total",
		Help: "Completed loop runs by terminal status.",
	}, []string{"status"})

	m.LLMCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "llm", Name: "calls_total",
		Help: "LLM capability calls by model and outcome.",
	}, []string{"model", "outcome"})

	m.LLMCallLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "llm", Name: "call_duration_seconds",
		Help:    "LLM call duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"model"})

	m.ToolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "tool", Name: "calls_total",
		Help: "Tool executions by name and outcome.",
	}, []string{"tool", "outcome"})

	m.ToolLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "tool", Name: "call_duration_seconds",
		Help:    "Tool execution duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"tool"})

	m.SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "session", Name: "active",
		Help: "Sessions currently known to the store.",
	})

	m.HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "http", Name: "requests_total",
		Help: "HTTP requests by route and status class.",
	}, []string{"route", "status"})

	m.HTTPLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	reg.MustRegister(
		m.LoopSteps, m.LoopOutcomes, m.LLMCalls, m.LLMCallLatency,
		m.ToolCalls, m.ToolLatency, m.SessionsActive, m.HTTPRequests, m.HTTPLatency,
	)
	return m
}

// Handler exposes the registry on /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HTTPMetricsMiddleware records request count and latency per route,
// grounded on hector's pkg/transport/http_metrics_middleware.go (wrap the
// response writer to capture its status code, record on the way out).
func HTTPMetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			m.HTTPRequests.WithLabelValues(r.URL.Path, strconv.Itoa(ww.Status())).Inc()
			m.HTTPLatency.WithLabelValues(r.URL.Path).Observe(time.Since(started).Seconds())
		})
	}
}
