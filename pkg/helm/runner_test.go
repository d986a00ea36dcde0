package helm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/helmdeck/helmdeck/pkg/engine"
)

// fakeTransport records invocations and serves scripted results.
type fakeTransport struct {
	calls   [][]string
	staged  map[string][]byte
	removed []string

	// result maps a space-joined command prefix to its outcome.
	failWith map[string]fakeResult
}

type fakeResult struct {
	stdout string
	stderr string
	err    error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		staged:   map[string][]byte{},
		failWith: map[string]fakeResult{},
	}
}

func (f *fakeTransport) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	call := append([]string{name}, args...)
	f.calls = append(f.calls, call)
	joined := strings.Join(call, " ")
	for prefix, res := range f.failWith {
		if strings.HasPrefix(joined, prefix) {
			return res.stdout, res.stderr, res.err
		}
	}
	return "", "", nil
}

func (f *fakeTransport) WriteFile(ctx context.Context, path string, data []byte) error {
	f.staged[path] = data
	return nil
}

func (f *fakeTransport) RemoveFile(ctx context.Context, path string) error {
	f.removed = append(f.removed, path)
	return nil
}

func (f *fakeTransport) TempDir() string { return "/tmp" }

func (f *fakeTransport) lastCall() []string {
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

func hasArgPair(call []string, flag, value string) bool {
	for i := 0; i < len(call)-1; i++ {
		if call[i] == flag && call[i+1] == value {
			return true
		}
	}
	return false
}

func hasArg(call []string, arg string) bool {
	for _, a := range call {
		if a == arg {
			return true
		}
	}
	return false
}

func testComp() engine.ComponentSpec {
	return engine.ComponentSpec{
		Name:      "api",
		Namespace: "api-ns",
		Chart:     "api",
		RepoName:  "acme",
		RepoURL:   "https://charts.acme.io",
		Version:   "1.2.3",
	}
}

func TestRunner_UpgradeInstallArgs(t *testing.T) {
	ft := newFakeTransport()
	r := NewRunner(ft, WithKubeContext("kind-test"))

	comp := testComp()
	comp.CreateNamespace = true
	comp.Atomic = true

	if err := r.UpgradeInstall(context.Background(), comp, map[string]interface{}{"replicas": 2}); err != nil {
		t.Fatalf("UpgradeInstall: %v", err)
	}

	call := ft.lastCall()
	for _, want := range []string{"helm", "upgrade", "--install", "api", "acme/api", "--create-namespace", "--atomic"} {
		if !hasArg(call, want) {
			t.Errorf("call %v missing %s", call, want)
		}
	}
	if !hasArgPair(call, "--kube-context", "kind-test") {
		t.Errorf("call %v missing kube context", call)
	}
	if !hasArgPair(call, "-n", "api-ns") {
		t.Errorf("call %v missing namespace", call)
	}
	if !hasArgPair(call, "--version", "1.2.3") {
		t.Errorf("call %v missing version pin", call)
	}

	// A values file was staged, passed with -f, and cleaned up after.
	if len(ft.staged) != 1 {
		t.Fatalf("staged files = %d, want 1", len(ft.staged))
	}
	for path, data := range ft.staged {
		if !hasArgPair(call, "-f", path) {
			t.Errorf("call %v does not reference staged file %s", call, path)
		}
		if !strings.Contains(string(data), "replicas: 2") {
			t.Errorf("staged values = %q", data)
		}
	}
	if len(ft.removed) != 1 {
		t.Errorf("staged file not cleaned up: removed=%v", ft.removed)
	}
}

func TestRunner_LocalChartUsesPath(t *testing.T) {
	ft := newFakeTransport()
	r := NewRunner(ft)

	comp := testComp()
	comp.LocalChartDir = "/charts/api"

	if err := r.UpgradeInstall(context.Background(), comp, nil); err != nil {
		t.Fatalf("UpgradeInstall: %v", err)
	}
	if !hasArg(ft.lastCall(), "/charts/api") {
		t.Errorf("call %v does not use local chart path", ft.lastCall())
	}
}

func TestRunner_ReleaseExists(t *testing.T) {
	ft := newFakeTransport()
	r := NewRunner(ft)

	exists, err := r.ReleaseExists(context.Background(), "api", "api-ns")
	if err != nil || !exists {
		t.Fatalf("ReleaseExists = %v, %v; want true, nil", exists, err)
	}

	ft.failWith["helm status ghost"] = fakeResult{
		stderr: "Error: release: not found",
		err:    errors.New("exit status 1"),
	}
	exists, err = r.ReleaseExists(context.Background(), "ghost", "api-ns")
	if err != nil || exists {
		t.Fatalf("ReleaseExists(ghost) = %v, %v; want false, nil", exists, err)
	}

	ft.failWith["helm status broken"] = fakeResult{
		stderr: "Error: Kubernetes cluster unreachable",
		err:    errors.New("exit status 1"),
	}
	if _, err = r.ReleaseExists(context.Background(), "broken", "api-ns"); err == nil {
		t.Fatalf("expected real error for unreachable cluster")
	}
}

func TestRunner_FailureWrapsToolError(t *testing.T) {
	ft := newFakeTransport()
	ft.failWith["helm upgrade"] = fakeResult{
		stdout: "partial",
		stderr: "Error: chart not found",
		err:    errors.New("exit status 1"),
	}
	r := NewRunner(ft)

	err := r.UpgradeInstall(context.Background(), testComp(), nil)
	if err == nil {
		t.Fatalf("expected failure")
	}
	var toolErr *engine.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("error = %T, want *engine.ToolError", err)
	}
	if toolErr.Tool != "helm" || toolErr.Stderr != "Error: chart not found" {
		t.Errorf("tool error = %+v", toolErr)
	}
}

func TestRunner_LintModes(t *testing.T) {
	ft := newFakeTransport()
	r := NewRunner(ft)

	// Repo chart: validated by rendering.
	if err := r.Lint(context.Background(), testComp(), nil); err != nil {
		t.Fatalf("Lint: %v", err)
	}
	if !hasArg(ft.lastCall(), "template") {
		t.Errorf("repo chart lint call = %v, want helm template", ft.lastCall())
	}

	// Vendored chart: helm lint on the directory.
	comp := testComp()
	comp.LocalChartDir = "/charts/api"
	if err := r.Lint(context.Background(), comp, nil); err != nil {
		t.Fatalf("Lint local: %v", err)
	}
	call := ft.lastCall()
	if !hasArg(call, "lint") || !hasArg(call, "/charts/api") {
		t.Errorf("local lint call = %v", call)
	}
}

func TestRunner_AddRepoIdempotent(t *testing.T) {
	ft := newFakeTransport()
	r := NewRunner(ft)

	if err := r.AddRepo(context.Background(), engine.RepoSpec{Name: "acme", URL: "https://charts.acme.io"}); err != nil {
		t.Fatalf("AddRepo: %v", err)
	}
	call := ft.lastCall()
	if !hasArg(call, "--force-update") {
		t.Errorf("AddRepo call %v missing --force-update", call)
	}
}

func TestRunner_UninstallArgs(t *testing.T) {
	ft := newFakeTransport()
	r := NewRunner(ft)

	if err := r.Uninstall(context.Background(), "api", "api-ns"); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	want := fmt.Sprintf("%v", []string{"helm", "uninstall", "api", "-n", "api-ns"})
	if got := fmt.Sprintf("%v", ft.lastCall()); got != want {
		t.Errorf("call = %s, want %s", got, want)
	}
}
