package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/helmdeck/helmdeck/pkg/events"
)

// fakeHelm scripts collaborator behavior per release name and counts every
// call for assertions.
type fakeHelm struct {
	mu sync.Mutex

	addRepoCalls     int
	updateCalls      int
	lintCalls        map[string]int
	installCalls     map[string]int
	uninstallCalls   []string
	existsCalls      map[string]int
	existingReleases map[string]bool

	lintFail map[string]bool
	// installFailures maps a release name to the number of leading
	// attempts that fail before one succeeds. A negative count fails
	// forever.
	installFailures map[string]int
	uninstallFail   map[string]bool
}

func newFakeHelm() *fakeHelm {
	return &fakeHelm{
		lintCalls:        map[string]int{},
		installCalls:     map[string]int{},
		existsCalls:      map[string]int{},
		existingReleases: map[string]bool{},
		lintFail:         map[string]bool{},
		installFailures:  map[string]int{},
		uninstallFail:    map[string]bool{},
	}
}

func (f *fakeHelm) AddRepo(ctx context.Context, repo RepoSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addRepoCalls++
	return nil
}

func (f *fakeHelm) UpdateRepos(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	return nil
}

func (f *fakeHelm) Lint(ctx context.Context, comp ComponentSpec, values map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lintCalls[comp.Name]++
	if f.lintFail[comp.Name] {
		return fmt.Errorf("lint failed for %s", comp.Name)
	}
	return nil
}

func (f *fakeHelm) UpgradeInstall(ctx context.Context, comp ComponentSpec, values map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installCalls[comp.Name]++
	remaining := f.installFailures[comp.Name]
	if remaining < 0 {
		return fmt.Errorf("install failed for %s", comp.Name)
	}
	if remaining > 0 {
		f.installFailures[comp.Name] = remaining - 1
		return fmt.Errorf("install failed for %s", comp.Name)
	}
	return nil
}

func (f *fakeHelm) Uninstall(ctx context.Context, name, namespace string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uninstallCalls = append(f.uninstallCalls, name)
	if f.uninstallFail[name] {
		return fmt.Errorf("uninstall failed for %s", name)
	}
	return nil
}

func (f *fakeHelm) ReleaseExists(ctx context.Context, name, namespace string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existsCalls[name]++
	return f.existingReleases[name], nil
}

func (f *fakeHelm) Diff(ctx context.Context, comp ComponentSpec, values map[string]interface{}) (string, error) {
	return "", nil
}

// fakeCluster counts readiness waits and can be scripted to time out.
type fakeCluster struct {
	mu        sync.Mutex
	waitCalls map[string]int
	waitFail  map[string]bool
	pods      map[string][]Pod
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		waitCalls: map[string]int{},
		waitFail:  map[string]bool{},
		pods:      map[string][]Pod{},
	}
}

func (f *fakeCluster) ApplyObjects(ctx context.Context, namespace string, manifests []string) error {
	return nil
}

func (f *fakeCluster) GetPods(ctx context.Context, namespace string) ([]Pod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pods[namespace], nil
}

func (f *fakeCluster) WaitForPodsRunning(ctx context.Context, namespace string, minRunning, retries int, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitCalls[namespace]++
	if f.waitFail[namespace] {
		return errors.New("timed out waiting for pods")
	}
	return nil
}

func (f *fakeCluster) ResourceExists(ctx context.Context, kind, name, namespace string) (bool, error) {
	return false, nil
}

// collectObserver records every delivered event.
type collectObserver struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *collectObserver) Notify(e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *collectObserver) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type()
	}
	return out
}

// chartComp returns a minimal chart-backed component.
func chartComp(name string, deps ...string) ComponentSpec {
	return ComponentSpec{
		Name:         name,
		Namespace:    name + "-ns",
		Chart:        name,
		RepoName:     "repo",
		RepoURL:      "https://charts.example.com",
		Dependencies: deps,
	}
}
