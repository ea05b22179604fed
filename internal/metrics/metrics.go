// Package metrics exposes Prometheus metrics for the viewer server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registry and collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	viewerEvents        *prometheus.CounterVec
	flights             *prometheus.CounterVec
	sessionsActive      prometheus.Gauge
	datasetLoads        *prometheus.CounterVec
	datasetLoadDuration prometheus.Histogram
}

// New creates a fresh registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "choropleth",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests served",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "choropleth",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	viewerEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "choropleth",
		Name:      "viewer_events_total",
		Help:      "Map and sidebar events handled, by kind",
	}, []string{"event"})

	flights := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "choropleth",
		Name:      "flights_total",
		Help:      "Camera flights by outcome (started, completed, interrupted)",
	}, []string{"outcome"})

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "choropleth",
		Name:      "sessions_active",
		Help:      "Number of live viewer sessions",
	})

	datasetLoads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "choropleth",
		Name:      "dataset_loads_total",
		Help:      "District dataset loads by result",
	}, []string{"result"})

	datasetLoadDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "choropleth",
		Name:      "dataset_load_duration_seconds",
		Help:      "Duration of district dataset loads",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		viewerEvents,
		flights,
		sessionsActive,
		datasetLoads,
		datasetLoadDuration,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		viewerEvents:        viewerEvents,
		flights:             flights,
		sessionsActive:      sessionsActive,
		datasetLoads:        datasetLoads,
		datasetLoadDuration: datasetLoadDuration,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// IncViewerEvent counts one handled viewer event.
func (m *Metrics) IncViewerEvent(event string) {
	if m == nil {
		return
	}
	m.viewerEvents.WithLabelValues(event).Inc()
}

// IncFlight counts a flight outcome.
func (m *Metrics) IncFlight(outcome string) {
	if m == nil {
		return
	}
	m.flights.WithLabelValues(outcome).Inc()
}

// SetSessions sets the live session gauge.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

// ObserveDatasetLoad records a dataset load and its result.
func (m *Metrics) ObserveDatasetLoad(err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.datasetLoads.WithLabelValues(result).Inc()
	m.datasetLoadDuration.Observe(duration.Seconds())
}

// Middleware records request counts and durations keyed by chi route
// pattern, so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.ObserveHTTPRequest(r.Method, path, status, time.Since(start))
	})
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
