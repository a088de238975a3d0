package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors.
// All methods are safe on a nil receiver so tests can run without a registry.
type Metrics struct {
	registry *prometheus.Registry

	usersAnalysed  *prometheus.CounterVec
	anomalies      *prometheus.CounterVec
	decisions      *prometheus.CounterVec
	published      *prometheus.CounterVec
	cooldownSkips  *prometheus.CounterVec
	sourceFailures *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	lastCycleUsers prometheus.Gauge
}

// NewMetrics registers the engine collectors on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}

	m.usersAnalysed = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_users_analysed_total",
		Help: "Per-user pipeline runs by outcome",
	}, []string{"outcome"})

	m.anomalies = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_anomalies_detected_total",
		Help: "Outcome metric anomalies detected",
	}, []string{"metric", "severity"})

	m.decisions = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_insight_decisions_total",
		Help: "Quality gate decisions",
	}, []string{"metric", "decision"})

	m.published = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_insights_published_total",
		Help: "Admitted insights handed to the narrative consumer",
	}, []string{"metric"})

	m.cooldownSkips = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_insights_cooldown_skipped_total",
		Help: "Admitted insights held back by the alert cooldown",
	}, []string{"metric"})

	m.sourceFailures = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_factor_source_failures_total",
		Help: "Factor sources that failed and were skipped",
	}, []string{"source"})

	m.cycleDuration = promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
		Name:    "pulse_cycle_duration_seconds",
		Help:    "Wall time of one analysis cycle over all active users",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	m.lastCycleUsers = promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Name: "pulse_last_cycle_users",
		Help: "Active users seen by the most recent cycle",
	})

	return m
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) userDone(failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	m.usersAnalysed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) anomalyDetected(metricType, severity string) {
	if m == nil {
		return
	}
	m.anomalies.WithLabelValues(metricType, severity).Inc()
}

func (m *Metrics) decided(metricType string, admitted bool) {
	if m == nil {
		return
	}
	decision := "rejected"
	if admitted {
		decision = "admitted"
	}
	m.decisions.WithLabelValues(metricType, decision).Inc()
}

func (m *Metrics) insightPublished(metricType string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(metricType).Inc()
}

func (m *Metrics) cooldownSkipped(metricType string) {
	if m == nil {
		return
	}
	m.cooldownSkips.WithLabelValues(metricType).Inc()
}

func (m *Metrics) sourceFailed(source string) {
	if m == nil {
		return
	}
	m.sourceFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) cycleFinished(users int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.lastCycleUsers.Set(float64(users))
	m.cycleDuration.Observe(elapsed.Seconds())
}

// MetricsServer exposes /metrics over HTTP
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a listener for the given address
func NewMetricsServer(addr string, metrics *Metrics) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves until Shutdown is called
func (s *MetricsServer) Start() {
	log.Printf("📈 Metrics listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("⚠️  Metrics server failed: %v", err)
	}
}

// Shutdown stops the listener
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
