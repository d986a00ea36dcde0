package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Lifecycle runs the three-phase install protocol for a single component:
// PreInstall, then Main (chart handling, install-or-upgrade, readiness),
// then PostInstall. It is a pure per-component state machine: any phase
// error is returned to the caller unmodified, and retry and rollback are
// strictly the executor's business.
type Lifecycle struct {
	helm    Helm
	cluster Cluster
	steps   StepResolver

	// baseValues are engine-wide defaults merged underneath every
	// component's values; component values win on conflict.
	baseValues map[string]interface{}

	// waitRetries and waitDelay bound the pod readiness poll.
	waitRetries int
	waitDelay   time.Duration

	logger zerolog.Logger
}

// LifecycleOption tunes a Lifecycle.
type LifecycleOption func(*Lifecycle)

// WithBaseValues sets the engine-wide default chart values.
func WithBaseValues(values map[string]interface{}) LifecycleOption {
	return func(l *Lifecycle) { l.baseValues = values }
}

// WithWaitBounds overrides the readiness poll bounds.
func WithWaitBounds(retries int, delay time.Duration) LifecycleOption {
	return func(l *Lifecycle) {
		l.waitRetries = retries
		l.waitDelay = delay
	}
}

// WithLifecycleLogger sets the structured logger.
func WithLifecycleLogger(logger zerolog.Logger) LifecycleOption {
	return func(l *Lifecycle) { l.logger = logger }
}

// NewLifecycle builds a lifecycle engine over the given collaborators.
// steps may be nil, in which case every component gets no-op pre/post
// phases.
func NewLifecycle(helm Helm, cluster Cluster, steps StepResolver, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		helm:        helm,
		cluster:     cluster,
		steps:       steps,
		waitRetries: 20,
		waitDelay:   10 * time.Second,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Deploy runs the lifecycle for one component. With PhaseAll it runs
// PreInstall, Main and PostInstall strictly in that order, stopping at the
// first error; a later phase is never attempted after an earlier phase
// failed. A specific phase filter runs only that phase.
func (l *Lifecycle) Deploy(ctx context.Context, comp ComponentSpec, filter Phase) error {
	log := l.logger.With().Str("component", comp.Name).Logger()

	if filter == PhaseAll || filter == PhasePreInstall {
		log.Debug().Str("phase", string(PhasePreInstall)).Msg("running phase")
		if err := l.preInstall(ctx, comp); err != nil {
			return err
		}
	}

	if filter == PhaseAll || filter == PhaseMain {
		log.Debug().Str("phase", string(PhaseMain)).Msg("running phase")
		if err := l.main(ctx, comp); err != nil {
			return err
		}
	}

	if filter == PhaseAll || filter == PhasePostInstall {
		log.Debug().Str("phase", string(PhasePostInstall)).Msg("running phase")
		if err := l.postInstall(ctx, comp); err != nil {
			return err
		}
	}

	return nil
}

func (l *Lifecycle) preInstall(ctx context.Context, comp ComponentSpec) error {
	steps, ok := l.resolveSteps(comp.Name)
	if !ok {
		return nil
	}
	if err := steps.PreInstall(ctx, comp, l.cluster); err != nil {
		return fmt.Errorf("pre-install for %q: %w", comp.Name, err)
	}
	return nil
}

func (l *Lifecycle) postInstall(ctx context.Context, comp ComponentSpec) error {
	steps, ok := l.resolveSteps(comp.Name)
	if !ok {
		return nil
	}
	if err := steps.PostInstall(ctx, comp, l.cluster); err != nil {
		return fmt.Errorf("post-install for %q: %w", comp.Name, err)
	}
	return nil
}

// main performs the Helm work for chart-backed components. For components
// without a chart this phase is a no-op: their manifests are applied by
// their own pre/post-install steps through the Cluster collaborator.
func (l *Lifecycle) main(ctx context.Context, comp ComponentSpec) error {
	if !comp.HelmBacked() {
		return nil
	}

	if comp.LocalChartDir == "" {
		if comp.RepoName == "" || comp.RepoURL == "" {
			return fmt.Errorf("component %q is chart-backed but has no repository and no local chart dir", comp.Name)
		}
		if err := l.helm.AddRepo(ctx, RepoSpec{Name: comp.RepoName, URL: comp.RepoURL}); err != nil {
			return err
		}
		if err := l.helm.UpdateRepos(ctx); err != nil {
			return err
		}
	} else if _, err := os.Stat(comp.LocalChartDir); err != nil {
		return fmt.Errorf("local chart for %q: %w", comp.Name, err)
	}

	values := l.Values(comp)

	// Idempotency short-circuit: an existing release is not reinstalled,
	// but the readiness wait below still runs.
	exists, err := l.helm.ReleaseExists(ctx, comp.Name, comp.Namespace)
	if err != nil {
		return err
	}
	if exists {
		l.logger.Info().Str("component", comp.Name).Msg("release already exists, skipping install")
	} else {
		if err := l.helm.UpgradeInstall(ctx, comp, values); err != nil {
			return err
		}
	}

	if comp.WaitForPods {
		minRunning := comp.MinRunningPods
		if minRunning <= 0 {
			minRunning = 1
		}
		if err := l.cluster.WaitForPodsRunning(ctx, comp.Namespace, minRunning, l.waitRetries, l.waitDelay); err != nil {
			return &WaiterTimeoutError{
				Component: comp.Name,
				Namespace: comp.Namespace,
				Timeout:   time.Duration(l.waitRetries) * l.waitDelay,
				Err:       err,
			}
		}
	}

	return nil
}

// Values returns the fully layered chart values for a component: engine
// defaults underneath, the component's own values on top.
func (l *Lifecycle) Values(comp ComponentSpec) map[string]interface{} {
	return MergeValues(l.baseValues, comp.Values)
}

func (l *Lifecycle) resolveSteps(name string) (Steps, bool) {
	if l.steps == nil {
		return nil, false
	}
	return l.steps.StepsFor(name)
}
