package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects ladder engine and HTTP instrumentation. A nil *Metrics is
// a valid no-op recorder.
type Metrics struct {
	transitions          *prometheus.CounterVec
	failures             *prometheus.CounterVec
	swaps                *prometheus.CounterVec
	cancellations        *prometheus.CounterVec
	sweeps               *prometheus.CounterVec
	notificationFailures *prometheus.CounterVec
	httpRequests         *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
	gatherer             prometheus.Gatherer
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_match_transitions_total",
			Help: "Match lifecycle transitions committed, by target status.",
		}, []string{"status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_operation_failures_total",
			Help: "Ladder operations refused or failed, by operation and error kind.",
		}, []string{"operation", "kind"}),
		swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_position_swaps_total",
			Help: "Position changes written to the ledger, by cause.",
		}, []string{"cause"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_match_cancellations_total",
			Help: "Matches cancelled by the engine, by reason.",
		}, []string{"reason"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_expiry_sweeps_total",
			Help: "Expiration sweeps that found expired challenges, by outcome.",
		}, []string{"outcome"}),
		notificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_notification_failures_total",
			Help: "Notification deliveries that failed, by transport.",
		}, []string{"transport"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.transitions,
		m.failures,
		m.swaps,
		m.cancellations,
		m.sweeps,
		m.notificationFailures,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) Failure(operation, kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(operation, kind).Inc()
}

func (m *Metrics) Swap(cause string) {
	if m == nil {
		return
	}
	m.swaps.WithLabelValues(cause).Inc()
}

func (m *Metrics) Cancelled(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.cancellations.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) Sweep(outcome string) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(outcome).Inc()
}

func (m *Metrics) NotificationFailed(transport string) {
	if m == nil {
		return
	}
	m.notificationFailures.WithLabelValues(transport).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Middleware records request counts and latency keyed by the chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m == nil {
			return
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
