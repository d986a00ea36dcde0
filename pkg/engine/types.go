package engine

import (
	"fmt"
	"time"
)

// RepoSpec identifies a Helm chart repository to register before planning.
type RepoSpec struct {
	// Name is the repository alias used in chart references.
	Name string `json:"name"`

	// URL is the repository index URL.
	URL string `json:"url"`
}

// ComponentSpec describes one deployable unit: a Helm release or a raw
// manifest component. Specs are immutable once built by the config loader;
// the engine never mutates them.
type ComponentSpec struct {
	// Name uniquely identifies the component within a deployment set.
	Name string `json:"name"`

	// Namespace is the target namespace for the release and its pods.
	Namespace string `json:"namespace"`

	// Chart is the chart name within its repository. Empty means the
	// component is not Helm-backed and the Main phase is a no-op.
	Chart string `json:"chart,omitempty"`

	// Version pins the chart version; empty installs the latest.
	Version string `json:"version,omitempty"`

	// RepoName and RepoURL locate the chart repository. Ignored when
	// LocalChartDir is set.
	RepoName string `json:"repo_name,omitempty"`
	RepoURL  string `json:"repo_url,omitempty"`

	// LocalChartDir points at a vendored chart directory; when set, no
	// repository registration or chart pull happens for this component.
	LocalChartDir string `json:"local_chart_dir,omitempty"`

	// Values holds the component's merged values: referenced files first,
	// inline values last (inline wins). Engine-wide base values are merged
	// underneath at deploy time.
	Values map[string]interface{} `json:"values,omitempty"`

	// ValuesFiles records the file paths the loader merged into Values,
	// kept for reporting only.
	ValuesFiles []string `json:"values_files,omitempty"`

	// Dependencies lists component names that must deploy first.
	Dependencies []string `json:"dependencies,omitempty"`

	// Hooks lists named callbacks to invoke at the pre/post boundaries.
	// Unregistered names are skipped.
	Hooks []string `json:"hooks,omitempty"`

	// Timeout bounds the install and the optional readiness waiter.
	Timeout time.Duration `json:"timeout,omitempty"`

	// Atomic, Wait and CreateNamespace map to the corresponding
	// install flags.
	Atomic          bool `json:"atomic,omitempty"`
	Wait            bool `json:"wait,omitempty"`
	CreateNamespace bool `json:"create_namespace,omitempty"`

	// WaitForPods enables the lifecycle engine's pod readiness wait after
	// the Main phase. MinRunningPods is the readiness threshold.
	WaitForPods    bool `json:"wait_for_pods,omitempty"`
	MinRunningPods int  `json:"min_running_pods,omitempty"`
}

// HelmBacked reports whether the Main phase performs Helm operations for
// this component.
func (c ComponentSpec) HelmBacked() bool {
	return c.Chart != ""
}

// ChartRef returns the chart reference passed to the Helm collaborator:
// the local chart path when vendored, otherwise repo/chart.
func (c ComponentSpec) ChartRef() string {
	if c.LocalChartDir != "" {
		return c.LocalChartDir
	}
	if c.RepoName != "" {
		return c.RepoName + "/" + c.Chart
	}
	return c.Chart
}

// Deployment is the full in-memory deployment set consumed by the
// executor: environment identity plus repositories and components.
type Deployment struct {
	// Environment names the target environment (dev, staging, prod...).
	Environment string `json:"environment"`

	// ClusterContext is the kube context the run targets.
	ClusterContext string `json:"cluster_context,omitempty"`

	// BaseValues are engine-wide default values merged underneath every
	// Helm-backed component's values.
	BaseValues map[string]interface{} `json:"base_values,omitempty"`

	// Repos are the chart repositories registered once, up front.
	Repos []RepoSpec `json:"repos,omitempty"`

	// Components are the deployable units.
	Components []ComponentSpec `json:"components"`
}

// Status is the terminal state of one component within a run.
type Status string

const (
	StatusOK         Status = "OK"
	StatusFailed     Status = "FAILED"
	StatusRolledBack Status = "ROLLED_BACK"
)

// Outcome records what happened to one component during a run. Outcomes
// are owned by the executor for the duration of a single DeployAll call.
type Outcome struct {
	// Name and Namespace identify the component.
	Name      string `json:"name"`
	Namespace string `json:"namespace"`

	// Status starts at FAILED when processing begins and is flipped to OK
	// on success or ROLLED_BACK during the rollback sweep.
	Status Status `json:"status"`

	// Attempts counts install attempts, including the successful one.
	Attempts int `json:"attempts"`

	// Error is the human-readable failure reason, when applicable.
	Error string `json:"error,omitempty"`
}

// DeployReport accumulates outcomes for one run. It is always returned to
// the caller, including on fatal errors.
type DeployReport struct {
	// RunID correlates the report with the run's events.
	RunID string `json:"run_id"`

	// Outcomes holds one entry per processed component, in processing
	// order, plus rollback flips applied in place.
	Outcomes []Outcome `json:"outcomes"`
}

// Add appends an outcome to the report.
func (r *DeployReport) Add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// Counts returns the aggregate OK / FAILED / ROLLED_BACK totals.
func (r *DeployReport) Counts() (ok, failed, rolledBack int) {
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusOK:
			ok++
		case StatusFailed:
			failed++
		case StatusRolledBack:
			rolledBack++
		}
	}
	return ok, failed, rolledBack
}

// Summary renders the aggregate counts as the canonical one-line summary.
func (r *DeployReport) Summary() string {
	ok, failed, rolled := r.Counts()
	return fmt.Sprintf("OK=%d FAILED=%d ROLLED_BACK=%d", ok, failed, rolled)
}

// flip rewrites the status of the most recent outcome recorded for name.
// Used by the rollback sweep so a component keeps a single outcome entry.
func (r *DeployReport) flip(name string, status Status, errMsg string) {
	for i := len(r.Outcomes) - 1; i >= 0; i-- {
		if r.Outcomes[i].Name == name {
			r.Outcomes[i].Status = status
			if errMsg != "" {
				r.Outcomes[i].Error = errMsg
			}
			return
		}
	}
}

// DeployOptions tunes a single DeployAll invocation.
type DeployOptions struct {
	// Retries is the number of re-attempts after a failed install; the
	// total attempt bound is Retries+1.
	Retries int

	// Backoff is the fixed sleep between install attempts.
	Backoff time.Duration

	// UseWaiter enables the executor-level label-selector readiness
	// waiter after each successful install.
	UseWaiter bool

	// WaiterSelectorKey is the label key the waiter selector is derived
	// from; the selector is "<key>=<component name>".
	WaiterSelectorKey string
}

// DefaultDeployOptions mirrors the engine's conservative defaults.
func DefaultDeployOptions() DeployOptions {
	return DeployOptions{
		Retries:           2,
		Backoff:           2 * time.Second,
		WaiterSelectorKey: "app",
	}
}

// Phase selects a single lifecycle phase for Lifecycle.Deploy. The zero
// value runs all phases in order.
type Phase string

const (
	// PhaseAll runs PreInstall, Main and PostInstall in order.
	PhaseAll Phase = ""

	PhasePreInstall  Phase = "pre-install"
	PhaseMain        Phase = "main"
	PhasePostInstall Phase = "post-install"
)

// Pod is the minimal pod view the readiness wait needs.
type Pod struct {
	// Name is the pod name.
	Name string `json:"name"`

	// Phase is the pod phase reported by the cluster (Running, Pending...).
	Phase string `json:"phase"`

	// Ready is true when every container status reports ready.
	Ready bool `json:"ready"`
}
