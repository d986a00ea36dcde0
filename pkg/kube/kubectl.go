// Package kube wraps the kubectl CLI behind the engine.Cluster interface.
package kube

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helmdeck/helmdeck/pkg/engine"
	"github.com/helmdeck/helmdeck/pkg/transports"
)

// Kubectl executes kubectl through a transports.Runner.
type Kubectl struct {
	exec        transports.Runner
	bin         string
	kubeContext string
	logger      zerolog.Logger

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option tunes a Kubectl.
type Option func(*Kubectl)

// WithBinary overrides the kubectl binary path.
func WithBinary(bin string) Option {
	return func(k *Kubectl) { k.bin = bin }
}

// WithKubeContext passes --context on every invocation.
func WithKubeContext(kubeContext string) Option {
	return func(k *Kubectl) { k.kubeContext = kubeContext }
}

// WithLogger sets the structured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(k *Kubectl) { k.logger = logger.With().Str("component", "kubectl").Logger() }
}

// NewKubectl builds a kubectl wrapper over the given transport.
func NewKubectl(exec transports.Runner, opts ...Option) *Kubectl {
	k := &Kubectl{
		exec:   exec,
		bin:    "kubectl",
		logger: zerolog.Nop(),
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *Kubectl) run(ctx context.Context, args ...string) (string, error) {
	argv := args
	if k.kubeContext != "" {
		argv = append([]string{"--context", k.kubeContext}, args...)
	}
	k.logger.Debug().Strs("args", argv).Msg("kubectl")

	stdout, stderr, err := k.exec.Run(ctx, k.bin, argv...)
	if err != nil {
		return stdout, &engine.ToolError{
			Tool:   "kubectl",
			Args:   argv,
			Stdout: stdout,
			Stderr: stderr,
			Err:    err,
		}
	}
	return stdout, nil
}

// ApplyObjects implements engine.Cluster. Manifests are staged as one
// multi-document file and applied in a single invocation.
func (k *Kubectl) ApplyObjects(ctx context.Context, namespace string, manifests []string) error {
	if len(manifests) == 0 {
		return nil
	}

	doc := strings.Join(manifests, "\n---\n")
	p := path.Join(k.exec.TempDir(), fmt.Sprintf("helmdeck-apply-%s.yaml", uuid.New().String()[:8]))
	if err := k.exec.WriteFile(ctx, p, []byte(doc)); err != nil {
		return fmt.Errorf("stage manifests: %w", err)
	}
	defer func() { _ = k.exec.RemoveFile(context.Background(), p) }()

	args := []string{"apply", "-f", p}
	if namespace != "" {
		args = append(args, "-n", namespace)
	}
	_, err := k.run(ctx, args...)
	return err
}

// podList is the subset of `kubectl get pods -o json` the readiness wait
// needs.
type podList struct {
	Items []struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
		Status struct {
			Phase             string `json:"phase"`
			ContainerStatuses []struct {
				Ready bool `json:"ready"`
				State struct {
					Waiting *struct {
						Reason string `json:"reason"`
					} `json:"waiting"`
				} `json:"state"`
			} `json:"containerStatuses"`
		} `json:"status"`
	} `json:"items"`
}

func (k *Kubectl) pods(ctx context.Context, namespace string) (podList, error) {
	var list podList
	out, err := k.run(ctx, "get", "pods", "-n", namespace, "-o", "json")
	if err != nil {
		return list, err
	}
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		return list, fmt.Errorf("parse pod list: %w", err)
	}
	return list, nil
}

// GetPods implements engine.Cluster.
func (k *Kubectl) GetPods(ctx context.Context, namespace string) ([]engine.Pod, error) {
	list, err := k.pods(ctx, namespace)
	if err != nil {
		return nil, err
	}

	pods := make([]engine.Pod, 0, len(list.Items))
	for _, item := range list.Items {
		ready := len(item.Status.ContainerStatuses) > 0
		for _, cs := range item.Status.ContainerStatuses {
			if !cs.Ready {
				ready = false
				break
			}
		}
		pods = append(pods, engine.Pod{
			Name:  item.Metadata.Name,
			Phase: item.Status.Phase,
			Ready: ready,
		})
	}
	return pods, nil
}

// WaitForPodsRunning implements engine.Cluster: poll until minRunning
// pods are Running with every container ready, bounded by retries polls
// delay apart. Progress is
// logged every third attempt; the timeout error carries a pod status
// summary.
func (k *Kubectl) WaitForPodsRunning(ctx context.Context, namespace string, minRunning, retries int, delay time.Duration) error {
	for attempt := 0; attempt < retries; attempt++ {
		running, err := k.countRunning(ctx, namespace)
		if err != nil {
			return err
		}
		if running >= minRunning {
			return nil
		}

		if attempt > 0 && attempt%3 == 0 {
			k.logger.Info().
				Str("namespace", namespace).
				Int("running", running).
				Int("min_running", minRunning).
				Str("pods", k.podSummary(ctx, namespace)).
				Msg("still waiting for pods")
		}

		if err := k.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("timed out waiting for %d running pods in namespace %q; pod status: %s",
		minRunning, namespace, k.podSummary(ctx, namespace))
}

func (k *Kubectl) countRunning(ctx context.Context, namespace string) (int, error) {
	list, err := k.pods(ctx, namespace)
	if err != nil {
		return 0, err
	}
	running := 0
	for _, item := range list.Items {
		if item.Status.Phase != "Running" {
			continue
		}
		// A Running pod only counts once every container reports ready;
		// a CrashLoopBackOff container keeps the phase Running while the
		// pod is not serving.
		ready := len(item.Status.ContainerStatuses) > 0
		for _, cs := range item.Status.ContainerStatuses {
			if !cs.Ready {
				ready = false
				break
			}
		}
		if ready {
			running++
		}
	}
	return running, nil
}

// podSummary renders one line per pod with its phase and any container
// waiting reasons (ImagePullBackOff, CrashLoopBackOff...).
func (k *Kubectl) podSummary(ctx context.Context, namespace string) string {
	list, err := k.pods(ctx, namespace)
	if err != nil {
		return "unable to fetch pods"
	}
	if len(list.Items) == 0 {
		return "no pods found"
	}

	parts := make([]string, 0, len(list.Items))
	for _, item := range list.Items {
		var reasons []string
		for _, cs := range item.Status.ContainerStatuses {
			if cs.State.Waiting != nil && cs.State.Waiting.Reason != "" {
				reasons = append(reasons, cs.State.Waiting.Reason)
			}
		}
		if len(reasons) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s (%s)", item.Metadata.Name, item.Status.Phase, strings.Join(reasons, ", ")))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", item.Metadata.Name, item.Status.Phase))
		}
	}
	return strings.Join(parts, "; ")
}

// ResourceExists implements engine.Cluster. A NotFound failure means no,
// anything else is a real error.
func (k *Kubectl) ResourceExists(ctx context.Context, kind, name, namespace string) (bool, error) {
	args := []string{"get", kind, name}
	if namespace != "" {
		args = append(args, "-n", namespace)
	}
	_, err := k.run(ctx, args...)
	if err == nil {
		return true, nil
	}
	if strings.Contains(err.Error(), "NotFound") {
		return false, nil
	}
	return false, err
}

// WaitFor builds the executor-level engine.Waiter: kubectl wait on pods
// matching a label selector.
func (k *Kubectl) WaitFor() engine.Waiter {
	return func(ctx context.Context, namespace, selector string, timeout time.Duration) error {
		_, err := k.run(ctx,
			"wait", "pods",
			"-n", namespace,
			"-l", selector,
			"--for", "condition=Ready",
			"--timeout", fmt.Sprintf("%ds", int(timeout.Seconds())),
		)
		return err
	}
}
