package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harun/toolshed/pkg/render"
	"github.com/harun/toolshed/pkg/toolexecutor"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Tool metrics
	ToolExecutionsTotal      *prometheus.CounterVec
	ToolExecutionDuration    *prometheus.HistogramVec
	ToolExecutionErrorsTotal *prometheus.CounterVec

	// Render metrics
	RenderVariantsTotal *prometheus.CounterVec

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter

	// Registry metrics
	RegistrySize prometheus.Gauge

	// Execution queue metrics
	ExecutionQueueDepth *prometheus.GaugeVec
	ExecutionQueueWait  *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_executions_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool_name"},
		),
		ToolExecutionErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_execution_errors_total",
				Help: "Total number of tool execution errors",
			},
			[]string{"tool_name", "error_type"},
		),

		RenderVariantsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "render_variants_total",
				Help: "Total number of rendered results by display kind",
			},
			[]string{"kind"},
		),

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_sessions_active",
				Help: "Number of open tool detail sessions",
			},
		),
		SessionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_sessions_total",
				Help: "Total number of tool detail sessions opened",
			},
		),

		RegistrySize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "registry_tools",
				Help: "Number of tools in the registry",
			},
		),

		ExecutionQueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "execution_queue_depth",
				Help: "Number of tool executions waiting per lane",
			},
			[]string{"lane"},
		),
		ExecutionQueueWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "execution_queue_wait_seconds",
				Help:    "Time tool executions spent queued",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
			},
			[]string{"lane"},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "route"},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.ToolExecutionsTotal)
	m.registry.MustRegister(m.ToolExecutionDuration)
	m.registry.MustRegister(m.ToolExecutionErrorsTotal)

	m.registry.MustRegister(m.RenderVariantsTotal)

	m.registry.MustRegister(m.SessionsActive)
	m.registry.MustRegister(m.SessionsTotal)

	m.registry.MustRegister(m.RegistrySize)

	m.registry.MustRegister(m.ExecutionQueueDepth)
	m.registry.MustRegister(m.ExecutionQueueWait)

	m.registry.MustRegister(m.HTTPRequestsTotal)
	m.registry.MustRegister(m.HTTPRequestDuration)
}

// RecordExecution implements toolexecutor.Recorder
func (m *Metrics) RecordExecution(tool string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.ToolExecutionErrorsTotal.WithLabelValues(tool, toolexecutor.ErrorKind(err)).Inc()
	}
	m.ToolExecutionsTotal.WithLabelValues(tool, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordRender counts a rendered result
func (m *Metrics) RecordRender(kind render.Kind) {
	m.RenderVariantsTotal.WithLabelValues(string(kind)).Inc()
}

// SessionOpened tracks a new detail session
func (m *Metrics) SessionOpened() {
	m.SessionsActive.Inc()
	m.SessionsTotal.Inc()
}

// SessionClosed tracks a closed detail session
func (m *Metrics) SessionClosed() {
	m.SessionsActive.Dec()
}

// SetRegistrySize records the number of known tools
func (m *Metrics) SetRegistrySize(n int) {
	m.RegistrySize.Set(float64(n))
}

// QueueDepth implements commandqueue.Observer
func (m *Metrics) QueueDepth(lane string, depth int) {
	m.ExecutionQueueDepth.WithLabelValues(lane).Set(float64(depth))
}

// QueueWait implements commandqueue.Observer
func (m *Metrics) QueueWait(lane string, wait time.Duration) {
	m.ExecutionQueueWait.WithLabelValues(lane).Observe(wait.Seconds())
}

// Middleware records request counts and latency per chi route pattern
func (m *Metrics) Middleware(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			m.HTTPRequestsTotal.WithLabelValues(service, r.Method, route, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(service, route).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
