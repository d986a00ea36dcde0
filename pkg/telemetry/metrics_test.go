package telemetry

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/helmdeck/helmdeck/pkg/engine"
)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(metric *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range metric.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestMetrics_RecordsRunAndComponentCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.RunStarted("staging")
	m.InstallAttempt("api")
	m.InstallAttempt("api")
	m.ComponentDeployed("api", engine.StatusOK, 2, 3*time.Second)
	m.RollbackStep("api", false)
	m.WaiterTimeout("db")
	m.RunCompleted("staging", 1, 0, 0, 10*time.Second)

	if got := counterValue(t, m, "helmdeck_runs_started_total", map[string]string{"environment": "staging"}); got != 1 {
		t.Errorf("runs started = %v, want 1", got)
	}
	if got := counterValue(t, m, "helmdeck_install_attempts_total", map[string]string{"component": "api"}); got != 2 {
		t.Errorf("install attempts = %v, want 2", got)
	}
	if got := counterValue(t, m, "helmdeck_components_deployed_total", map[string]string{"component": "api", "status": "OK"}); got != 1 {
		t.Errorf("components deployed = %v, want 1", got)
	}
	if got := counterValue(t, m, "helmdeck_rollback_steps_total", map[string]string{"result": "failed"}); got != 1 {
		t.Errorf("rollback steps = %v, want 1", got)
	}
	if got := counterValue(t, m, "helmdeck_runs_completed_total", map[string]string{"environment": "staging", "result": "success"}); got != 1 {
		t.Errorf("runs completed = %v, want 1", got)
	}
}

func TestMetrics_FailureResultLabel(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.RunCompleted("prod", 0, 1, 2, time.Second)

	if got := counterValue(t, m, "helmdeck_runs_completed_total", map[string]string{"environment": "prod", "result": "failure"}); got != 1 {
		t.Errorf("failure runs = %v, want 1", got)
	}
}

func TestMetrics_DisabledIsNoop(t *testing.T) {
	m := NewMetrics(MetricsConfig{})

	// None of these may panic on the no-op instance.
	m.RunStarted("dev")
	m.InstallAttempt("api")
	m.ComponentDeployed("api", engine.StatusFailed, 1, time.Second)
	m.RollbackStep("api", true)
	m.WaiterTimeout("api")
	m.RunCompleted("dev", 0, 1, 0, time.Second)
}
