// ABOUTME: Prometheus collectors for HTTP traffic and theme lifecycle events
// ABOUTME: Exposes a private registry through Handler and an HTTP instrumentation wrapper

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
			Namespace: "vitrine",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitrine",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vitrine",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	publishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitrine",
			Subsystem: "themes",
			Name:      "publishes_total",
			Help:      "Theme uploads and re-uploads by outcome.",
		},
		[]string{"kind", "result"},
	)

	extractDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vitrine",
			Subsystem: "themes",
			Name:      "extract_duration_seconds",
			Help:      "Time spent extracting and normalizing archives.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	installs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitrine",
			Subsystem: "themes",
			Name:      "installs_total",
			Help:      "Theme installations by outcome and whether the working copy was seeded.",
		},
		[]string{"kind", "result", "seeded"},
	)

	edits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitrine",
			Subsystem: "themes",
			Name:      "edits_total",
			Help:      "Saved theme file edits by outcome.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		publishes,
		extractDuration,
		installs,
		edits,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// Requests are labeled by the ServeMux pattern that matched them.
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

		route := routeLabel(r)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordPublish counts a publish or republish. kind is "catalog" or "custom".
func RecordPublish(kind string, err error) {
	publishes.WithLabelValues(kind, result(err)).Inc()
}

// ObserveExtract records how long an extraction took.
func ObserveExtract(d time.Duration) {
	extractDuration.Observe(d.Seconds())
}

// RecordInstall counts an install attempt.
func RecordInstall(isCustom, seeded bool, err error) {
	kind := "catalog"
	if isCustom {
		kind = "custom"
	}
	installs.WithLabelValues(kind, result(err), strconv.FormatBool(seeded)).Inc()
}

// RecordEdit counts a save attempt.
func RecordEdit(err error) {
	edits.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
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

// routeLabel keeps label cardinality bounded by using the matched pattern, not the raw path.
func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}
	// Patterns include the method ("GET /api/themes/{id}"); the method is its own label
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}
	return r.Pattern
}
