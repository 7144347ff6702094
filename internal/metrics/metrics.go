package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavelanni/mockinterview/internal/llm"
)

const namespace = "mockinterview"

// Completion results.
const (
	CompletionCompleted  = "completed"
	CompletionIdempotent = "idempotent"
	CompletionFailed     = "failed"
)

// Metrics owns a private registry so tests and multiple servers never collide.
// All methods are safe on a nil receiver.
type Metrics struct {
	reg *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	httpInFlight prometheus.Gauge

	oracleCalls   *prometheus.CounterVec
	oracleLatency *prometheus.HistogramVec

	completions       *prometheus.CounterVec
	reconcileRequired prometheus.Counter
	reconciled        prometheus.Counter
	versionConflicts  prometheus.Counter
	emotionSamples    prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests received",
		}, []string{"method", "route", "status"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Current number of in-flight HTTP requests",
		}),
		oracleCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_evaluations_total",
			Help:      "Answer evaluations by provider, source (oracle or fallback) and error code",
		}, []string{"provider", "source", "code"}),
		oracleLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oracle_evaluation_duration_seconds",
			Help:      "Duration of answer evaluations in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"provider"}),
		completions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interview_completions_total",
			Help:      "Interview completion attempts by result",
		}, []string{"result"}),
		reconcileRequired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_required_total",
			Help:      "Completed sessions whose interview record could not be updated",
		}),
		reconciled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_interviews_total",
			Help:      "Interview records repaired by reconciliation",
		}),
		versionConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_version_conflicts_total",
			Help:      "Optimistic concurrency conflicts on session saves",
		}),
		emotionSamples: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emotion_samples_total",
			Help:      "Emotion and confidence samples recorded",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Middleware records request count and latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(status),
		}
		m.httpRequests.With(labels).Inc()
		m.httpLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}

// ObserveOracle records one adapter outcome. It matches llm.Adapter.OnOutcome.
func (m *Metrics) ObserveOracle(provider string, o llm.Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := ""
	if o.Err != nil {
		code = o.Err.Code
	}
	m.oracleCalls.WithLabelValues(provider, string(o.Source), code).Inc()
	m.oracleLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// Completion counts one completion attempt.
func (m *Metrics) Completion(result string) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(result).Inc()
}

// ReconcileRequired counts a session left completed with a stale interview.
func (m *Metrics) ReconcileRequired() {
	if m == nil {
		return
	}
	m.reconcileRequired.Inc()
}

// Reconciled counts interviews repaired by reconciliation.
func (m *Metrics) Reconciled(n int) {
	if m == nil {
		return
	}
	m.reconciled.Add(float64(n))
}

// VersionConflict counts an optimistic concurrency retry.
func (m *Metrics) VersionConflict() {
	if m == nil {
		return
	}
	m.versionConflicts.Inc()
}

// EmotionSample counts a recorded emotion sample.
func (m *Metrics) EmotionSample() {
	if m == nil {
		return
	}
	m.emotionSamples.Inc()
}
