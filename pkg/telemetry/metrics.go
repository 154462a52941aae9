package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for script runs. A nil *Metrics
// and a disabled one both record nothing.
type Metrics struct {
	runsStarted    prometheus.Counter
	runsCompleted  *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	stepsExecuted  *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
	loopIterations prometheus.Counter
	errorsReported *prometheus.CounterVec
	activeRuns     prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector on its own registry.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{}, nil
	}
	ns := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "runs_started_total",
			Help:      "Total number of script runs started",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "runs_completed_total",
			Help:      "Total number of script runs completed, by status",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "run_duration_seconds",
			Help:      "Duration of script runs in seconds",
			Buckets:   buckets,
		}, []string{"status"}),
		stepsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "steps_executed_total",
			Help:      "Total number of steps executed, by command and status",
		}, []string{"command", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "step_duration_seconds",
			Help:      "Duration of step execution in seconds",
			Buckets:   buckets,
		}, []string{"command"}),
		loopIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "loop_iterations_total",
			Help:      "Total number of loop body passes",
		}),
		errorsReported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "errors_reported_total",
			Help:      "Step errors recorded under the report policy",
		}, []string{"command"}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "active_runs",
			Help:      "Number of script runs in progress",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.runsStarted, m.runsCompleted, m.runDuration,
		m.stepsExecuted, m.stepDuration, m.loopIterations,
		m.errorsReported, m.activeRuns,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) enabled() bool { return m != nil && m.registry != nil }

// RecordRunStarted counts a run and marks it active.
func (m *Metrics) RecordRunStarted() {
	if !m.enabled() {
		return
	}
	m.runsStarted.Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records the final status of a run.
func (m *Metrics) RecordRunCompleted(status string, d time.Duration) {
	if !m.enabled() {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(d.Seconds())
	m.activeRuns.Dec()
}

// RecordStep records one executed step.
func (m *Metrics) RecordStep(command, status string, d time.Duration) {
	if !m.enabled() {
		return
	}
	m.stepsExecuted.WithLabelValues(command, status).Inc()
	m.stepDuration.WithLabelValues(command).Observe(d.Seconds())
}

// RecordLoopIteration counts one loop body pass.
func (m *Metrics) RecordLoopIteration() {
	if !m.enabled() {
		return
	}
	m.loopIterations.Inc()
}

// RecordErrorReported counts an error kept under the report policy.
func (m *Metrics) RecordErrorReported(command string) {
	if !m.enabled() {
		return
	}
	m.errorsReported.WithLabelValues(command).Inc()
}

// Registry exposes the underlying registry, nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
