package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics for the platform.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	archiveJobs     *prometheus.CounterVec
	archiveBytes    prometheus.Counter
	tokenRedeems    *prometheus.CounterVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nexio_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nexio_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	archiveJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nexio_archive_jobs_total",
		Help: "Archive jobs finished by outcome.",
	}, []string{"outcome"})
	archiveBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexio_archive_bytes_total",
		Help: "Total bytes written into completed archives.",
	})
	tokenRedeems := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nexio_download_token_redeems_total",
		Help: "Download token redemption attempts by result.",
	}, []string{"result"})
	registry.MustRegister(requests, duration, archiveJobs, archiveBytes, tokenRedeems)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		archiveJobs:     archiveJobs,
		archiveBytes:    archiveBytes,
		tokenRedeems:    tokenRedeems,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ArchiveJobFinished counts a terminal job transition.
func (m *Metrics) ArchiveJobFinished(outcome string, bytes int64) {
	if m == nil {
		return
	}
	m.archiveJobs.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		m.archiveBytes.Add(float64(bytes))
	}
}

// TokenRedeemed counts a redemption attempt result.
func (m *Metrics) TokenRedeemed(result string) {
	if m == nil {
		return
	}
	m.tokenRedeems.WithLabelValues(result).Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
