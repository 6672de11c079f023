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

// Metrics holds the engine's collectors. A nil *Metrics is valid and records
// nothing, so packages can take one unconditionally.
type Metrics struct {
	Assemblies      *prometheus.CounterVec
	Shortfalls      *prometheus.CounterVec
	Results         *prometheus.CounterVec
	ManualOverrides prometheus.Counter
	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. When reg is nil a
// private registry is used.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		Assemblies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_assemblies_total",
				Help: "Quiz draws by outcome",
			},
			[]string{"outcome"},
		),
		Shortfalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_inventory_shortfalls_total",
				Help: "Draws that could not be filled from the question bank, by config",
			},
			[]string{"config_id"},
		),
		Results: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_results_total",
				Help: "Submitted quiz results by status",
			},
			[]string{"status"},
		),
		ManualOverrides: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_manual_overrides_total",
			Help: "Manual score overrides accepted",
		}),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
		gatherer: reg,
	}
	reg.MustRegister(m.Assemblies, m.Shortfalls, m.Results, m.ManualOverrides, m.RequestCounter, m.RequestDuration)
	return m
}

func (m *Metrics) AssemblyDone(outcome string) {
	if m == nil {
		return
	}
	m.Assemblies.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Shortfall(configID string) {
	if m == nil {
		return
	}
	m.Shortfalls.WithLabelValues(configID).Inc()
}

func (m *Metrics) ResultSaved(status string) {
	if m == nil {
		return
	}
	m.Results.WithLabelValues(status).Inc()
}

func (m *Metrics) OverridesApplied(n int) {
	if m == nil {
		return
	}
	m.ManualOverrides.Add(float64(n))
}

// Middleware records request counts and latency keyed by the chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			endpoint = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
