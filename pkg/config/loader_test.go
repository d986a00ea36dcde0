package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const validDeployment = `
environment: staging
context: kind-staging
deploy:
  retries: 1
  backoff: 500ms
  use_waiter: true
repos:
  - name: bitnami
    url: https://charts.bitnami.com/bitnami
base_values:
  global:
    registry: registry.example.com
releases:
  - name: postgres
    namespace: data
    chart: postgresql
    repo: bitnami
    wait_for_pods: true
    min_running_pods: 1
  - name: api
    chart: api
    repo: bitnami
    needs: [postgres]
    values:
      replicas: 2
`

func TestLoader_LoadValidFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "deploy.yaml", validDeployment)

	loader, err := NewLoader()
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	f, err := loader.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if f.Environment != "staging" {
		t.Errorf("environment = %s, want staging", f.Environment)
	}
	if len(f.Releases) != 2 {
		t.Fatalf("releases = %d, want 2", len(f.Releases))
	}
	if f.Deploy.Retries == nil || *f.Deploy.Retries != 1 {
		t.Errorf("retries = %v, want 1", f.Deploy.Retries)
	}
	if f.Deploy.Backoff.Std() != 500*time.Millisecond {
		t.Errorf("backoff = %v, want 500ms", f.Deploy.Backoff)
	}
}

func TestLoader_RejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "deploy.yaml", `
environment: staging
relaeses:
  - name: api
`)

	loader, err := NewLoader()
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if _, err := loader.Load(context.Background(), path); err == nil {
		t.Fatalf("expected unknown-key error for misspelled releases")
	}
}

func TestLoader_RejectsMissingEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "deploy.yaml", `
releases:
  - name: api
    chart: api
`)

	loader, err := NewLoader()
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if _, err := loader.Load(context.Background(), path); err == nil {
		t.Fatalf("expected validation error for missing environment")
	}
}

func TestLoader_RejectsUppercaseReleaseName(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "deploy.yaml", `
environment: staging
releases:
  - name: Postgres
`)

	loader, err := NewLoader()
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	_, err = loader.Load(context.Background(), path)
	if err == nil {
		t.Fatalf("expected schema error for uppercase release name")
	}
	if !strings.Contains(err.Error(), "Postgres") {
		t.Errorf("error %v does not name the offending release", err)
	}
}

func TestLoader_BuildResolvesReposAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "deploy.yaml", validDeployment)

	loader, err := NewLoader()
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	f, err := loader.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	dep, err := loader.Build(context.Background(), f, dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(dep.Repos) != 1 || dep.Repos[0].Name != "bitnami" {
		t.Fatalf("repos = %+v, want bitnami", dep.Repos)
	}

	pg := dep.Components[0]
	if pg.RepoURL != "https://charts.bitnami.com/bitnami" {
		t.Errorf("postgres repo url = %s", pg.RepoURL)
	}
	api := dep.Components[1]
	if api.Namespace != "api" {
		t.Errorf("api namespace = %s, want release name fallback", api.Namespace)
	}
	if len(api.Dependencies) != 1 || api.Dependencies[0] != "postgres" {
		t.Errorf("api dependencies = %v, want [postgres]", api.Dependencies)
	}
	if dep.BaseValues["global"].(map[string]interface{})["registry"] != "registry.example.com" {
		t.Errorf("base values not carried: %v", dep.BaseValues)
	}
}

func TestLoader_BuildRejectsUndeclaredRepo(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "deploy.yaml", `
environment: staging
releases:
  - name: api
    chart: api
    repo: ghost
`)

	loader, err := NewLoader()
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	f, err := loader.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := loader.Build(context.Background(), f, dir); err == nil {
		t.Fatalf("expected undeclared repo error")
	}
}

func TestLoader_ValuesFilesMergeOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "common.yaml", `
replicas: 1
image:
  tag: stable
`)
	writeFile(t, dir, "staging.yaml", `
replicas: 2
`)
	path := writeFile(t, dir, "deploy.yaml", `
environment: staging
repos:
  - name: r
    url: https://charts.example.com
releases:
  - name: api
    chart: api
    repo: r
    values_files: [common.yaml, staging.yaml]
    values:
      image:
        tag: canary
`)

	loader, err := NewLoader()
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	f, err := loader.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	dep, err := loader.Build(context.Background(), f, dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	values := dep.Components[0].Values
	if values["replicas"] != 2 {
		t.Errorf("replicas = %v, want later file to win", values["replicas"])
	}
	if values["image"].(map[string]interface{})["tag"] != "canary" {
		t.Errorf("tag = %v, want inline values to win last", values["image"])
	}
}

func TestLoader_StarlarkValuesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "values.star", `
replicas = {"staging": 2, "prod": 5}

values = {
    "replicas": replicas.get(env, 1),
    "env_name": env,
}
`)
	path := writeFile(t, dir, "deploy.yaml", `
environment: staging
repos:
  - name: r
    url: https://charts.example.com
releases:
  - name: api
    chart: api
    repo: r
    values_files: [values.star]
`)

	loader, err := NewLoader()
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	f, err := loader.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	dep, err := loader.Build(context.Background(), f, dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	values := dep.Components[0].Values
	if values["replicas"] != 2 {
		t.Errorf("replicas = %v, want 2 from starlark env branch", values["replicas"])
	}
	if values["env_name"] != "staging" {
		t.Errorf("env_name = %v, want staging", values["env_name"])
	}
}

func TestLoader_OptionsDefaults(t *testing.T) {
	loader, err := NewLoader()
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	opts := loader.Options(&File{})
	if opts.Retries != 2 || opts.Backoff != 2*time.Second || opts.WaiterSelectorKey != "app" {
		t.Errorf("defaults = %+v", opts)
	}

	zero := 0
	opts = loader.Options(&File{Deploy: DeploySettings{Retries: &zero, UseWaiter: true}})
	if opts.Retries != 0 {
		t.Errorf("retries = %d, want explicit 0 honored", opts.Retries)
	}
	if !opts.UseWaiter {
		t.Errorf("use_waiter not carried")
	}
}
