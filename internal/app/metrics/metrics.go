// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "utility_rates",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "utility_rates",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "utility_rates",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	forecastComputations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "utility_rates",
			Subsystem: "forecast",
			Name:      "computations_total",
			Help:      "Total number of cost forecast computations.",
		},
		[]string{"mode", "success"},
	)

	forecastDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "utility_rates",
			Subsystem: "forecast",
			Name:      "computation_duration_seconds",
			Help:      "Duration of cost forecast computations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"mode"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		forecastComputations,
		forecastDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordForecastComputation records metrics for forecast computations.
func RecordForecastComputation(mode string, duration time.Duration, success bool) {
	if mode == "" {
		mode = "compute"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	result := "false"
	if success {
		result = "true"
	}
	forecastComputations.WithLabelValues(mode, result).Inc()
	forecastDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses resource identifiers so metric label cardinality
// stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) >= 2 && parts[0] == "api" {
		parts = parts[2:]
	}
	if len(parts) == 0 {
		return "/"
	}

	switch parts[0] {
	case "providers":
		switch {
		case len(parts) == 1:
			return "/providers"
		case len(parts) == 2:
			return "/providers/:provider"
		case len(parts) == 3:
			return "/providers/:provider/" + parts[2]
		default:
			return "/providers/:provider/rates/:rate"
		}
	case "users":
		if len(parts) >= 3 {
			resource := parts[2]
			if len(parts) == 3 {
				return "/users/me/" + resource
			}
			return "/users/me/" + resource + "/:id"
		}
		return "/users/me"
	default:
		return "/" + parts[0]
	}
}
