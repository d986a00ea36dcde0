package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/helmdeck/helmdeck/pkg/events"
)

// Recorder receives execution metrics. The telemetry package provides the
// Prometheus-backed implementation; a nil Recorder disables recording.
type Recorder interface {
	RunStarted(environment string)
	RunCompleted(environment string, ok, failed, rolledBack int, duration time.Duration)
	InstallAttempt(component string)
	ComponentDeployed(component string, status Status, attempts int, duration time.Duration)
	RollbackStep(component string, ok bool)
	WaiterTimeout(component string)
}

// Executor drives the lifecycle engine across the planned order, applying
// retry policy, hook invocation and rollback-on-failure. It is strictly
// sequential: one component at a time, in plan order.
type Executor struct {
	helm      Helm
	lifecycle *Lifecycle
	hooks     *HookRegistry
	bus       *events.Bus
	waiter    Waiter

	metrics Recorder
	tracer  trace.Tracer
	logger  zerolog.Logger
}

// ExecutorOption tunes an Executor.
type ExecutorOption func(*Executor)

// WithHooks injects the hook registry. Without one, every declared hook
// name is skipped.
func WithHooks(reg *HookRegistry) ExecutorOption {
	return func(e *Executor) { e.hooks = reg }
}

// WithWaiter injects the executor-level readiness waiter used when
// DeployOptions.UseWaiter is set.
func WithWaiter(w Waiter) ExecutorOption {
	return func(e *Executor) { e.waiter = w }
}

// WithRecorder injects the metrics recorder.
func WithRecorder(r Recorder) ExecutorOption {
	return func(e *Executor) { e.metrics = r }
}

// WithTracer injects the tracer; one span is opened per component.
func WithTracer(t trace.Tracer) ExecutorOption {
	return func(e *Executor) { e.tracer = t }
}

// WithLogger sets the structured logger.
func WithLogger(logger zerolog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// NewExecutor builds an executor over the given collaborators. bus may be
// nil when no observers are attached.
func NewExecutor(helm Helm, lifecycle *Lifecycle, bus *events.Bus, opts ...ExecutorOption) *Executor {
	e := &Executor{
		helm:      helm,
		lifecycle: lifecycle,
		bus:       bus,
		tracer:    noop.NewTracerProvider().Tracer("helmdeck"),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DeployAll deploys the set in topological order. The returned report is
// never nil: it carries per-component outcomes and the aggregate counts
// whether the run succeeded or failed, and err is non-nil exactly when the
// run did not fully succeed.
func (e *Executor) DeployAll(ctx context.Context, dep Deployment, opts DeployOptions) (*DeployReport, error) {
	if opts.WaiterSelectorKey == "" {
		opts.WaiterSelectorKey = "app"
	}

	runID := uuid.New().String()
	meta := events.NewMetaBuilder(runID, dep.Environment, dep.ClusterContext)
	report := &DeployReport{RunID: runID}
	log := e.logger.With().Str("run_id", runID).Logger()
	started := time.Now()

	if e.metrics != nil {
		e.metrics.RunStarted(dep.Environment)
	}
	defer func() {
		if e.metrics != nil {
			ok, failed, rolled := report.Counts()
			e.metrics.RunCompleted(dep.Environment, ok, failed, rolled, time.Since(started))
		}
	}()

	// Chart repositories are registered once, up front. Failure here is
	// fatal before any deployment side effect.
	log.Debug().Int("repos", len(dep.Repos)).Msg("registering chart repositories")
	for _, repo := range dep.Repos {
		if err := e.helm.AddRepo(ctx, repo); err != nil {
			return report, fmt.Errorf("add repo %q: %w", repo.Name, err)
		}
		e.bus.Emit(events.RepoAdded{Meta: meta.New(), Name: repo.Name, URL: repo.URL})
	}
	if len(dep.Repos) > 0 {
		if err := e.helm.UpdateRepos(ctx); err != nil {
			return report, fmt.Errorf("update repos: %w", err)
		}
		e.bus.Emit(events.ReposUpdated{Meta: meta.New()})
	}

	ordered, err := Plan(dep.Components)
	if err != nil {
		e.bus.Emit(events.PlanFailed{Meta: meta.New(), Error: err.Error()})
		return report, err
	}
	names := make([]string, len(ordered))
	for i, c := range ordered {
		names[i] = c.Name
	}
	e.bus.Emit(events.PlanComputed{Meta: meta.New(), Order: names})
	log.Info().Strs("order", names).Msg("plan computed")

	// Components that reached OK, in completion order. Rollback walks it
	// in reverse.
	var deployed []ComponentSpec

	for _, comp := range ordered {
		if err := e.deployOne(ctx, comp, opts, meta, report); err != nil {
			e.rollback(ctx, deployed, meta, report)
			e.emitSummary(meta, report)
			return report, err
		}
		deployed = append(deployed, comp)
	}

	e.emitSummary(meta, report)
	return report, nil
}

// deployOne processes a single component end to end. On any error the
// component's FAILED outcome has already been recorded in the report.
func (e *Executor) deployOne(
	ctx context.Context,
	comp ComponentSpec,
	opts DeployOptions,
	meta events.MetaBuilder,
	report *DeployReport,
) (err error) {
	ctx, span := e.tracer.Start(ctx, "deploy "+comp.Name,
		trace.WithAttributes(
			attribute.String("component", comp.Name),
			attribute.String("namespace", comp.Namespace),
		))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := e.logger.With().Str("component", comp.Name).Logger()
	started := time.Now()

	// The outcome starts FAILED and is appended exactly once, whatever
	// path this component takes.
	outcome := Outcome{Name: comp.Name, Namespace: comp.Namespace, Status: StatusFailed}
	defer func() {
		if err != nil {
			outcome.Error = err.Error()
		}
		report.Add(outcome)
		if e.metrics != nil {
			e.metrics.ComponentDeployed(comp.Name, outcome.Status, outcome.Attempts, time.Since(started))
		}
	}()

	e.bus.Emit(events.ReleaseStarted{Meta: meta.New(), Name: comp.Name, Namespace: comp.Namespace, Chart: comp.Chart})

	if err = runHooks(ctx, e.hooks, comp, HookPre); err != nil {
		return fmt.Errorf("pre hook for %q: %w", comp.Name, err)
	}

	if err = e.lifecycle.Deploy(ctx, comp, PhasePreInstall); err != nil {
		return err
	}

	// Lint is best-effort validation but a failure is fatal and is never
	// retried: nothing was mutated by this component yet.
	if comp.HelmBacked() {
		if err = e.helm.Lint(ctx, comp, e.lifecycle.Values(comp)); err != nil {
			e.bus.Emit(events.ReleaseLinted{Meta: meta.New(), Name: comp.Name, OK: false, Error: err.Error()})
			return fmt.Errorf("lint for %q: %w", comp.Name, err)
		}
		e.bus.Emit(events.ReleaseLinted{Meta: meta.New(), Name: comp.Name, OK: true})
	}

	if err = e.installWithRetry(ctx, comp, opts, meta, &outcome); err != nil {
		return err
	}

	if opts.UseWaiter && e.waiter != nil {
		if err = e.runWaiter(ctx, comp, opts, meta); err != nil {
			return err
		}
	}

	if err = e.lifecycle.Deploy(ctx, comp, PhasePostInstall); err != nil {
		return err
	}

	if err = runHooks(ctx, e.hooks, comp, HookPost); err != nil {
		return fmt.Errorf("post hook for %q: %w", comp.Name, err)
	}

	outcome.Status = StatusOK
	log.Info().Int("attempts", outcome.Attempts).Msg("component deployed")
	return nil
}

// installWithRetry drives the Main phase under the bounded retry policy:
// up to retries+1 total attempts with a fixed backoff sleep in between.
func (e *Executor) installWithRetry(
	ctx context.Context,
	comp ComponentSpec,
	opts DeployOptions,
	meta events.MetaBuilder,
	outcome *Outcome,
) error {
	attempts := 0
	for {
		attempts++
		outcome.Attempts = attempts
		if e.metrics != nil {
			e.metrics.InstallAttempt(comp.Name)
		}
		e.bus.Emit(events.ReleaseUpgradeAttempt{Meta: meta.New(), Name: comp.Name, Attempt: attempts})

		t0 := time.Now()
		err := e.lifecycle.Deploy(ctx, comp, PhaseMain)
		if err == nil {
			e.bus.Emit(events.ReleaseSucceeded{
				Meta:       meta.New(),
				Name:       comp.Name,
				Attempts:   attempts,
				DurationMS: time.Since(t0).Milliseconds(),
			})
			return nil
		}

		if attempts > opts.Retries {
			e.bus.Emit(events.ReleaseFailed{Meta: meta.New(), Name: comp.Name, Attempts: attempts, Error: err.Error()})
			if IsWaiterTimeout(err) && e.metrics != nil {
				e.metrics.WaiterTimeout(comp.Name)
			}
			return err
		}

		e.logger.Warn().
			Str("component", comp.Name).
			Int("attempt", attempts).
			Err(err).
			Msg("install attempt failed, backing off")

		// The backoff sleep is the only cancellation point: an attempt is
		// never interrupted once started.
		select {
		case <-time.After(opts.Backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Executor) runWaiter(ctx context.Context, comp ComponentSpec, opts DeployOptions, meta events.MetaBuilder) error {
	selector := fmt.Sprintf("%s=%s", opts.WaiterSelectorKey, comp.Name)
	timeout := comp.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	e.bus.Emit(events.WaiterStarted{
		Meta:      meta.New(),
		Name:      comp.Name,
		Namespace: comp.Namespace,
		Selector:  selector,
		TimeoutS:  int(timeout.Seconds()),
	})

	if err := e.waiter(ctx, comp.Namespace, selector, timeout); err != nil {
		e.bus.Emit(events.WaiterTimedOut{Meta: meta.New(), Name: comp.Name, TimeoutS: int(timeout.Seconds())})
		if e.metrics != nil {
			e.metrics.WaiterTimeout(comp.Name)
		}
		return &WaiterTimeoutError{
			Component: comp.Name,
			Namespace: comp.Namespace,
			Selector:  selector,
			Timeout:   timeout,
			Err:       err,
		}
	}

	e.bus.Emit(events.WaiterSucceeded{Meta: meta.New(), Name: comp.Name})
	return nil
}

// rollback uninstalls previously successful components in reverse (LIFO)
// completion order. Every step is attempted: a failing uninstall is
// recorded and the sweep continues to the bottom of the stack.
func (e *Executor) rollback(ctx context.Context, deployed []ComponentSpec, meta events.MetaBuilder, report *DeployReport) {
	for i := len(deployed) - 1; i >= 0; i-- {
		comp := deployed[i]
		e.bus.Emit(events.RollbackStarted{Meta: meta.New(), Name: comp.Name, Namespace: comp.Namespace})
		e.logger.Warn().Str("component", comp.Name).Msg("rolling back")

		if err := e.helm.Uninstall(ctx, comp.Name, comp.Namespace); err != nil {
			report.flip(comp.Name, StatusFailed, err.Error())
			e.bus.Emit(events.RollbackResult{Meta: meta.New(), Name: comp.Name, Status: string(StatusFailed), Error: err.Error()})
			if e.metrics != nil {
				e.metrics.RollbackStep(comp.Name, false)
			}
			continue
		}

		report.flip(comp.Name, StatusRolledBack, "")
		e.bus.Emit(events.RollbackResult{Meta: meta.New(), Name: comp.Name, Status: string(StatusRolledBack)})
		if e.metrics != nil {
			e.metrics.RollbackStep(comp.Name, true)
		}
	}
}

func (e *Executor) emitSummary(meta events.MetaBuilder, report *DeployReport) {
	ok, failed, rolled := report.Counts()
	e.bus.Emit(events.DeploySummary{Meta: meta.New(), OK: ok, Failed: failed, RolledBack: rolled})
	e.logger.Info().Int("ok", ok).Int("failed", failed).Int("rolled_back", rolled).Msg("deploy finished")
}
