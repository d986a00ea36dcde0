package engine

import (
	"context"
	"time"
)

// Helm is the chart tooling collaborator. Implementations wrap the helm
// CLI (locally or on a controller host); all calls are synchronous and
// return a *ToolError with captured output on process failure.
type Helm interface {
	// AddRepo registers a chart repository. Registering an existing
	// repository is not an error.
	AddRepo(ctx context.Context, repo RepoSpec) error

	// UpdateRepos refreshes all registered repository indexes.
	UpdateRepos(ctx context.Context) error

	// Lint validates the component's chart and values without mutating
	// cluster state.
	Lint(ctx context.Context, comp ComponentSpec, values map[string]interface{}) error

	// UpgradeInstall installs the release or upgrades it in place.
	UpgradeInstall(ctx context.Context, comp ComponentSpec, values map[string]interface{}) error

	// Uninstall removes a release. Used only by the rollback sweep.
	Uninstall(ctx context.Context, name, namespace string) error

	// ReleaseExists reports whether a release with the given name already
	// exists in the namespace. This is the engine's idempotency check.
	ReleaseExists(ctx context.Context, name, namespace string) (bool, error)

	// Diff renders the changes an install would apply, for preview output.
	Diff(ctx context.Context, comp ComponentSpec, values map[string]interface{}) (string, error)
}

// Cluster is the cluster-state collaborator consumed by the lifecycle
// engine's readiness step and by component pre/post-install logic.
type Cluster interface {
	// ApplyObjects applies raw manifest documents.
	ApplyObjects(ctx context.Context, namespace string, manifests []string) error

	// GetPods lists pods in a namespace.
	GetPods(ctx context.Context, namespace string) ([]Pod, error)

	// WaitForPodsRunning polls until minRunning pods are Running with all
	// containers ready, bounded by retries polls delay apart. The timeout
	// error includes a pod status summary.
	WaitForPodsRunning(ctx context.Context, namespace string, minRunning, retries int, delay time.Duration) error

	// ResourceExists reports whether a named resource exists.
	ResourceExists(ctx context.Context, kind, name, namespace string) (bool, error)
}

// Steps is a component's own idempotent pre/post-install logic: database
// bootstrap, secret creation, validation, ingress wiring. The engine only
// sequences these calls; their content is component business logic.
type Steps interface {
	PreInstall(ctx context.Context, comp ComponentSpec, cluster Cluster) error
	PostInstall(ctx context.Context, comp ComponentSpec, cluster Cluster) error
}

// StepResolver maps component names to their Steps. Components without
// registered steps get no-op pre/post phases.
type StepResolver interface {
	StepsFor(name string) (Steps, bool)
}

// StepMap is the trivial StepResolver backed by a map.
type StepMap map[string]Steps

func (m StepMap) StepsFor(name string) (Steps, bool) {
	s, ok := m[name]
	return s, ok
}

// Waiter is the executor-level readiness check invoked with a label
// selector derived from the component name.
type Waiter func(ctx context.Context, namespace, selector string, timeout time.Duration) error
