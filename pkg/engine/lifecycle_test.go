package engine

import (
	"context"
	"errors"
	"testing"
)

type recordingSteps struct {
	pre  []string
	post []string
	fail error
}

func (s *recordingSteps) PreInstall(ctx context.Context, comp ComponentSpec, cluster Cluster) error {
	s.pre = append(s.pre, comp.Name)
	return s.fail
}

func (s *recordingSteps) PostInstall(ctx context.Context, comp ComponentSpec, cluster Cluster) error {
	s.post = append(s.post, comp.Name)
	return s.fail
}

func TestLifecycle_AllPhasesInOrder(t *testing.T) {
	helm := newFakeHelm()
	cluster := newFakeCluster()
	steps := &recordingSteps{}
	lc := NewLifecycle(helm, cluster, StepMap{"web": steps})

	comp := chartComp("web")
	if err := lc.Deploy(context.Background(), comp, PhaseAll); err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	if len(steps.pre) != 1 || len(steps.post) != 1 {
		t.Errorf("pre=%v post=%v, want one call each", steps.pre, steps.post)
	}
	if helm.installCalls["web"] != 1 {
		t.Errorf("UpgradeInstall calls = %d, want 1", helm.installCalls["web"])
	}
	if helm.addRepoCalls != 1 || helm.updateCalls != 1 {
		t.Errorf("repo calls add=%d update=%d, want 1 each", helm.addRepoCalls, helm.updateCalls)
	}
}

func TestLifecycle_PhaseFilter(t *testing.T) {
	helm := newFakeHelm()
	cluster := newFakeCluster()
	steps := &recordingSteps{}
	lc := NewLifecycle(helm, cluster, StepMap{"web": steps})

	comp := chartComp("web")
	if err := lc.Deploy(context.Background(), comp, PhaseMain); err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	if len(steps.pre) != 0 || len(steps.post) != 0 {
		t.Errorf("pre=%v post=%v, want no step calls for main-only deploy", steps.pre, steps.post)
	}
	if helm.installCalls["web"] != 1 {
		t.Errorf("UpgradeInstall calls = %d, want 1", helm.installCalls["web"])
	}
}

func TestLifecycle_ExistingReleaseSkipsInstallButWaits(t *testing.T) {
	helm := newFakeHelm()
	helm.existingReleases["web"] = true
	cluster := newFakeCluster()
	lc := NewLifecycle(helm, cluster, nil)

	comp := chartComp("web")
	comp.WaitForPods = true
	if err := lc.Deploy(context.Background(), comp, PhaseMain); err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	if helm.installCalls["web"] != 0 {
		t.Errorf("UpgradeInstall calls = %d, want 0 for an existing release", helm.installCalls["web"])
	}
	if cluster.waitCalls["web-ns"] != 1 {
		t.Errorf("WaitForPodsRunning calls = %d, want 1 even when install is skipped", cluster.waitCalls["web-ns"])
	}
}

func TestLifecycle_WaitFailureIsWaiterTimeout(t *testing.T) {
	helm := newFakeHelm()
	cluster := newFakeCluster()
	cluster.waitFail["web-ns"] = true
	lc := NewLifecycle(helm, cluster, nil)

	comp := chartComp("web")
	comp.WaitForPods = true
	err := lc.Deploy(context.Background(), comp, PhaseMain)
	if err == nil {
		t.Fatalf("expected wait failure")
	}
	var wte *WaiterTimeoutError
	if !errors.As(err, &wte) {
		t.Fatalf("error = %v, want *WaiterTimeoutError", err)
	}
	if wte.Component != "web" || wte.Namespace != "web-ns" {
		t.Errorf("timeout for %s/%s, want web/web-ns", wte.Namespace, wte.Component)
	}
}

func TestLifecycle_NonHelmComponentMainIsNoop(t *testing.T) {
	helm := newFakeHelm()
	cluster := newFakeCluster()
	steps := &recordingSteps{}
	lc := NewLifecycle(helm, cluster, StepMap{"crds": steps})

	comp := ComponentSpec{Name: "crds", Namespace: "kube-system"}
	if err := lc.Deploy(context.Background(), comp, PhaseAll); err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	if helm.installCalls["crds"] != 0 || helm.existsCalls["crds"] != 0 {
		t.Errorf("helm was consulted for a non-chart component")
	}
	if len(steps.pre) != 1 || len(steps.post) != 1 {
		t.Errorf("pre=%v post=%v, want steps to still run", steps.pre, steps.post)
	}
}

func TestLifecycle_ChartWithoutRepoOrLocalDir(t *testing.T) {
	helm := newFakeHelm()
	lc := NewLifecycle(helm, newFakeCluster(), nil)

	comp := ComponentSpec{Name: "web", Namespace: "web-ns", Chart: "web"}
	if err := lc.Deploy(context.Background(), comp, PhaseMain); err == nil {
		t.Fatalf("expected error for chart-backed component with no repo and no local dir")
	}
}

func TestLifecycle_PreInstallErrorStopsDeploy(t *testing.T) {
	helm := newFakeHelm()
	steps := &recordingSteps{fail: errors.New("namespace creation denied")}
	lc := NewLifecycle(helm, newFakeCluster(), StepMap{"web": steps})

	comp := chartComp("web")
	if err := lc.Deploy(context.Background(), comp, PhaseAll); err == nil {
		t.Fatalf("expected pre-install error to propagate")
	}
	if helm.installCalls["web"] != 0 {
		t.Errorf("UpgradeInstall ran after a failed pre-install phase")
	}
}

func TestLifecycle_BaseValuesLayering(t *testing.T) {
	lc := NewLifecycle(newFakeHelm(), newFakeCluster(), nil,
		WithBaseValues(map[string]interface{}{
			"env":      "prod",
			"replicas": 1,
		}))

	comp := chartComp("web")
	comp.Values = map[string]interface{}{"replicas": 3}

	got := lc.Values(comp)
	if got["env"] != "prod" {
		t.Errorf("env = %v, want base value prod", got["env"])
	}
	if got["replicas"] != 3 {
		t.Errorf("replicas = %v, want component override 3", got["replicas"])
	}
}
