// Package helm wraps the helm CLI behind the engine.Helm interface. The
// same runner serves local and controller-host execution through the
// transports.Runner it is given.
package helm

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/helmdeck/helmdeck/pkg/engine"
	"github.com/helmdeck/helmdeck/pkg/transports"
)

// Runner executes helm commands through a transports.Runner.
type Runner struct {
	exec        transports.Runner
	bin         string
	kubeContext string
	logger      zerolog.Logger
}

// Option tunes a Runner.
type Option func(*Runner)

// WithBinary overrides the helm binary path.
func WithBinary(bin string) Option {
	return func(r *Runner) { r.bin = bin }
}

// WithKubeContext passes --kube-context on every invocation.
func WithKubeContext(kubeContext string) Option {
	return func(r *Runner) { r.kubeContext = kubeContext }
}

// WithLogger sets the structured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) { r.logger = logger.With().Str("component", "helm").Logger() }
}

// NewRunner builds a helm runner over the given transport.
func NewRunner(exec transports.Runner, opts ...Option) *Runner {
	r := &Runner{
		exec:   exec,
		bin:    "helm",
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) base() []string {
	if r.kubeContext != "" {
		return []string{"--kube-context", r.kubeContext}
	}
	return nil
}

// run executes one helm invocation and wraps failures in *engine.ToolError
// with the captured output.
func (r *Runner) run(ctx context.Context, args ...string) (string, error) {
	argv := append(r.base(), args...)
	r.logger.Debug().Strs("args", argv).Msg("helm")

	stdout, stderr, err := r.exec.Run(ctx, r.bin, argv...)
	if err != nil {
		return stdout, &engine.ToolError{
			Tool:   "helm",
			Args:   argv,
			Stdout: stdout,
			Stderr: stderr,
			Err:    err,
		}
	}
	return stdout, nil
}

// stageValues writes merged values as a YAML file on the execution host
// and returns its path plus a cleanup function.
func (r *Runner) stageValues(ctx context.Context, name string, values map[string]interface{}) (string, func(), error) {
	raw, err := yaml.Marshal(values)
	if err != nil {
		return "", nil, fmt.Errorf("marshal values for %s: %w", name, err)
	}

	p := path.Join(r.exec.TempDir(), fmt.Sprintf("helmdeck-values-%s-%s.yaml", name, uuid.New().String()[:8]))
	if err := r.exec.WriteFile(ctx, p, raw); err != nil {
		return "", nil, fmt.Errorf("stage values for %s: %w", name, err)
	}
	cleanup := func() { _ = r.exec.RemoveFile(context.Background(), p) }
	return p, cleanup, nil
}

// AddRepo implements engine.Helm. Re-adding a known repo is idempotent
// via --force-update.
func (r *Runner) AddRepo(ctx context.Context, repo engine.RepoSpec) error {
	_, err := r.run(ctx, "repo", "add", repo.Name, repo.URL, "--force-update")
	return err
}

// UpdateRepos implements engine.Helm.
func (r *Runner) UpdateRepos(ctx context.Context) error {
	_, err := r.run(ctx, "repo", "update")
	return err
}

// Lint implements engine.Helm. Vendored charts get helm lint; repository
// charts are validated by rendering them with helm template, which
// catches bad values without touching cluster state.
func (r *Runner) Lint(ctx context.Context, comp engine.ComponentSpec, values map[string]interface{}) error {
	valuesPath, cleanup, err := r.stageValues(ctx, comp.Name, values)
	if err != nil {
		return err
	}
	defer cleanup()

	if comp.LocalChartDir != "" {
		_, err = r.run(ctx, "lint", comp.LocalChartDir, "-f", valuesPath)
		return err
	}

	args := []string{"template", comp.Name, comp.ChartRef(), "-n", comp.Namespace, "-f", valuesPath}
	if comp.Version != "" {
		args = append(args, "--version", comp.Version)
	}
	_, err = r.run(ctx, args...)
	return err
}

// UpgradeInstall implements engine.Helm.
func (r *Runner) UpgradeInstall(ctx context.Context, comp engine.ComponentSpec, values map[string]interface{}) error {
	valuesPath, cleanup, err := r.stageValues(ctx, comp.Name, values)
	if err != nil {
		return err
	}
	defer cleanup()

	args := []string{"upgrade", "--install", comp.Name, comp.ChartRef(), "-n", comp.Namespace, "-f", valuesPath}
	if comp.Version != "" {
		args = append(args, "--version", comp.Version)
	}
	if comp.CreateNamespace {
		args = append(args, "--create-namespace")
	}
	if comp.Atomic {
		args = append(args, "--atomic")
	}
	if comp.Wait {
		args = append(args, "--wait")
		if comp.Timeout > 0 {
			args = append(args, "--timeout", fmt.Sprintf("%ds", int(comp.Timeout.Seconds())))
		}
	}

	_, err = r.run(ctx, args...)
	return err
}

// Uninstall implements engine.Helm.
func (r *Runner) Uninstall(ctx context.Context, name, namespace string) error {
	_, err := r.run(ctx, "uninstall", name, "-n", namespace)
	return err
}

// ReleaseExists implements engine.Helm via helm status. A "release: not
// found" failure means no, anything else is a real error.
func (r *Runner) ReleaseExists(ctx context.Context, name, namespace string) (bool, error) {
	_, err := r.run(ctx, "status", name, "-n", namespace, "-o", "json")
	if err == nil {
		return true, nil
	}

	var toolErr *engine.ToolError
	if errors.As(err, &toolErr) && strings.Contains(toolErr.Stderr, "release: not found") {
		return false, nil
	}
	return false, err
}

// Diff implements engine.Helm with a server dry run, so the preview shows
// what an install would change without applying anything.
func (r *Runner) Diff(ctx context.Context, comp engine.ComponentSpec, values map[string]interface{}) (string, error) {
	valuesPath, cleanup, err := r.stageValues(ctx, comp.Name, values)
	if err != nil {
		return "", err
	}
	defer cleanup()

	args := []string{
		"upgrade", "--install", comp.Name, comp.ChartRef(),
		"-n", comp.Namespace, "-f", valuesPath,
		"--dry-run=server",
	}
	if comp.Version != "" {
		args = append(args, "--version", comp.Version)
	}
	return r.run(ctx, args...)
}
