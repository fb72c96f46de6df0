package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordermcp_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"handler", "method", "code"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ordermcp_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"handler", "method"})

	upstreamAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordermcp_upstream_attempts_total",
		Help: "Outbound attempts made by the retrying client, by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	pipelineOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordermcp_pipeline_outcomes_total",
		Help: "Pipeline results by the path that produced them (model or fallback).",
	}, []string{"pipeline", "source"})

	jobTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordermcp_jobs_total",
		Help: "Asynchronous job state transitions by tool.",
	}, []string{"tool", "status"})
)

func init() {
	registry.MustRegister(
		httpRequests,
		httpDuration,
		upstreamAttempts,
		pipelineOutcomes,
		jobTransitions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Upstream attempt outcomes.
const (
	OutcomeResponse = "response"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
)

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveUpstreamAttempt counts a single outbound attempt.
func ObserveUpstreamAttempt(endpoint, outcome string) {
	upstreamAttempts.WithLabelValues(endpoint, outcome).Inc()
}

// ObservePipeline counts which path produced a pipeline result.
func ObservePipeline(pipeline, source string) {
	pipelineOutcomes.WithLabelValues(pipeline, source).Inc()
}

// ObserveJob counts a job status transition.
func ObserveJob(tool, status string) {
	jobTransitions.WithLabelValues(tool, status).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func Registry() *prometheus.Registry {
	return registry
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
