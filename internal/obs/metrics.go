package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections",
		Help: "Currently registered realtime connections.",
	})

	authRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_rejections_total",
			Help: "Session guard rejections by internal cause.",
		},
		[]string{"cause"},
	)

	cascadeWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_cascade_writes_total",
			Help: "Dependent membership rows flipped by workspace-level cascades.",
		},
		[]string{"op"},
	)
)

// Init registers the service metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		wsConnections,
		authRejections,
		cascadeWrites,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetWSConnections records the realtime connection table size.
func SetWSConnections(n int) {
	wsConnections.Set(float64(n))
}

// IncAuthRejection counts a session guard rejection by its internal cause.
func IncAuthRejection(cause string) {
	authRejections.WithLabelValues(cause).Inc()
}

// AddCascadeWrites counts dependent rows flipped by a membership cascade.
func AddCascadeWrites(op string, n int) {
	if n > 0 {
		cascadeWrites.WithLabelValues(op).Add(float64(n))
	}
}

// CanonicalPath collapses entity identifiers so metric label cardinality
// stays bounded.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if i == 0 || len(segments) <= i+1 || segments[i+1] == "" {
			continue
		}
		switch seg {
		case "workspaces", "projects", "members":
			segments[i+1] = ":id"
		case "verify-account", "reset-password":
			segments[i+1] = ":token"
		}
	}
	return strings.Join(segments, "/")
}

// Instrument wraps the handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
