package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helmdeck/helmdeck/pkg/engine"
)

// Metrics is the Prometheus-backed engine.Recorder. A disabled config
// returns an instance whose methods are no-ops.
type Metrics struct {
	enabled bool

	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	installAttempts    *prometheus.CounterVec
	componentsDeployed *prometheus.CounterVec
	componentDuration  *prometheus.HistogramVec

	rollbackSteps  *prometheus.CounterVec
	waiterTimeouts *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics builds a recorder with its own registry.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{}
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{
		enabled:  true,
		registry: registry,

		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "helmdeck",
				Name:      "runs_started_total",
				Help:      "Deploy runs started",
			},
			[]string{"environment"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "helmdeck",
				Name:      "runs_completed_total",
				Help:      "Deploy runs completed",
			},
			[]string{"environment", "result"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "helmdeck",
				Name:      "run_duration_seconds",
				Help:      "End-to-end deploy run duration",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"environment"},
		),
		installAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "helmdeck",
				Name:      "install_attempts_total",
				Help:      "Install attempts, including retries",
			},
			[]string{"component"},
		),
		componentsDeployed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "helmdeck",
				Name:      "components_deployed_total",
				Help:      "Component outcomes by terminal status",
			},
			[]string{"component", "status"},
		),
		componentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "helmdeck",
				Name:      "component_duration_seconds",
				Help:      "Per-component processing duration",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
			},
			[]string{"component"},
		),
		rollbackSteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "helmdeck",
				Name:      "rollback_steps_total",
				Help:      "Rollback uninstall steps by result",
			},
			[]string{"result"},
		),
		waiterTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "helmdeck",
				Name:      "waiter_timeouts_total",
				Help:      "Readiness waits that timed out",
			},
			[]string{"component"},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.installAttempts,
		m.componentsDeployed,
		m.componentDuration,
		m.rollbackSteps,
		m.waiterTimeouts,
	)
	return m
}

// RunStarted implements engine.Recorder.
func (m *Metrics) RunStarted(environment string) {
	if !m.enabled {
		return
	}
	m.runsStarted.WithLabelValues(environment).Inc()
}

// RunCompleted implements engine.Recorder.
func (m *Metrics) RunCompleted(environment string, ok, failed, rolledBack int, duration time.Duration) {
	if !m.enabled {
		return
	}
	result := "success"
	if failed > 0 || rolledBack > 0 {
		result = "failure"
	}
	m.runsCompleted.WithLabelValues(environment, result).Inc()
	m.runDuration.WithLabelValues(environment).Observe(duration.Seconds())
}

// InstallAttempt implements engine.Recorder.
func (m *Metrics) InstallAttempt(component string) {
	if !m.enabled {
		return
	}
	m.installAttempts.WithLabelValues(component).Inc()
}

// ComponentDeployed implements engine.Recorder.
func (m *Metrics) ComponentDeployed(component string, status engine.Status, attempts int, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.componentsDeployed.WithLabelValues(component, string(status)).Inc()
	m.componentDuration.WithLabelValues(component).Observe(duration.Seconds())
}

// RollbackStep implements engine.Recorder.
func (m *Metrics) RollbackStep(component string, ok bool) {
	if !m.enabled {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.rollbackSteps.WithLabelValues(result).Inc()
}

// WaiterTimeout implements engine.Recorder.
func (m *Metrics) WaiterTimeout(component string) {
	if !m.enabled {
		return
	}
	m.waiterTimeouts.WithLabelValues(component).Inc()
}

// Handler returns the /metrics handler for this recorder's registry.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Registry exposes the underlying registry, for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
