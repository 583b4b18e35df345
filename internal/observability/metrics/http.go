// Package metrics owns the Prometheus collectors of both processes.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	xerrors "OpenMCP-Salesforce/internal/errors"
)

// Call outcomes.
const (
	OutcomeSuccess        = "success"
	OutcomeAppError       = "app_error"
	OutcomeTransportError = "transport_error"
	OutcomeError          = "error"
	OutcomeRetryableError = "retryable_error"
)

var (
	registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "openmcp_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route", "status"})

	httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "openmcp_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "route"})

	workflowRoutes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "openmcp_workflow_routes_total",
		Help: "Workflow executions by chosen route.",
	}, []string{"route"})

	remoteCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "openmcp_remote_calls_total",
		Help: "Remote data service calls by tool and outcome.",
	}, []string{"tool", "outcome"})

	remoteLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "openmcp_remote_call_duration_seconds",
		Help:    "Remote data service call duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})

	llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "openmcp_llm_calls_total",
		Help: "Language model calls by purpose and outcome.",
	}, []string{"purpose", "outcome"})
)

func init() {
	registry.MustRegister(
		httpRequests,
		httpLatency,
		workflowRoutes,
		remoteCalls,
		remoteLatency,
		llmCalls,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(route, method string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRoute counts a workflow execution on route.
func ObserveRoute(route string) {
	workflowRoutes.WithLabelValues(route).Inc()
}

// ObserveRemoteCall records one envelope round trip.
func ObserveRemoteCall(tool, outcome string, duration time.Duration) {
	remoteCalls.WithLabelValues(tool, outcome).Inc()
	remoteLatency.WithLabelValues(tool).Observe(duration.Seconds())
}

// ObserveLLMCall records one language model call. Failures a later call
// may not repeat, such as rate limiting, count as retryable_error.
func ObserveLLMCall(purpose string, err error) {
	outcome := OutcomeSuccess
	switch {
	case xerrors.RetryableError(err):
		outcome = OutcomeRetryableError
	case err != nil:
		outcome = OutcomeError
	}
	llmCalls.WithLabelValues(purpose, outcome).Inc()
}

// Handler exposes the registry in Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// Middleware records every request under its chi route pattern.
func Middleware(next http.Handler) http.Handler {
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
		ObserveHTTPRequest(route, r.Method, status, time.Since(start))
	})
}
