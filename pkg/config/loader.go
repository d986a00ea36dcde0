package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/helmdeck/helmdeck/pkg/engine"
)

// Loader reads, validates and resolves deployment files.
type Loader struct {
	validate *validator.Validate
	schemas  *SchemaRegistry
	star     *StarlarkValues
	logger   zerolog.Logger
}

// LoaderOption tunes a Loader.
type LoaderOption func(*Loader)

// WithLoaderLogger sets the structured logger.
func WithLoaderLogger(logger zerolog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader builds a loader with the built-in schemas compiled.
func NewLoader(opts ...LoaderOption) (*Loader, error) {
	schemas, err := NewSchemaRegistry()
	if err != nil {
		return nil, err
	}
	l := &Loader{
		validate: validator.New(),
		schemas:  schemas,
		star:     NewStarlarkValues(0),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Load reads and validates the deployment file at path. Unknown YAML keys
// are rejected.
func (l *Loader) Load(ctx context.Context, path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deployment file: %w", err)
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := l.validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	if err := l.schemas.ValidateFile(&f); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}

	l.logger.Debug().
		Str("path", path).
		Str("environment", f.Environment).
		Int("releases", len(f.Releases)).
		Msg("deployment file loaded")
	return &f, nil
}

// Build resolves the file into the in-memory deployment set: repository
// references checked, values files evaluated and merged. Relative values
// file paths are resolved against baseDir.
func (l *Loader) Build(ctx context.Context, f *File, baseDir string) (engine.Deployment, error) {
	dep := engine.Deployment{
		Environment:    f.Environment,
		ClusterContext: f.Context,
	}

	repoByName := make(map[string]RepoEntry, len(f.Repos))
	for _, r := range f.Repos {
		if _, dup := repoByName[r.Name]; dup {
			return dep, fmt.Errorf("duplicate repo %q", r.Name)
		}
		repoByName[r.Name] = r
		dep.Repos = append(dep.Repos, engine.RepoSpec{Name: r.Name, URL: r.URL})
	}

	base := map[string]interface{}{}
	for _, vf := range f.BaseValuesFiles {
		loaded, err := l.loadValues(ctx, baseDir, vf, f.Environment)
		if err != nil {
			return dep, fmt.Errorf("base values: %w", err)
		}
		base = engine.MergeValues(base, loaded)
	}
	dep.BaseValues = engine.MergeValues(base, f.BaseValues)

	for _, rel := range f.Releases {
		comp, err := l.buildComponent(ctx, rel, repoByName, baseDir, f.Environment)
		if err != nil {
			return dep, err
		}
		dep.Components = append(dep.Components, comp)
	}
	return dep, nil
}

func (l *Loader) buildComponent(
	ctx context.Context,
	rel ReleaseEntry,
	repos map[string]RepoEntry,
	baseDir, environment string,
) (engine.ComponentSpec, error) {
	comp := engine.ComponentSpec{
		Name:            rel.Name,
		Namespace:       rel.Namespace,
		Chart:           rel.Chart,
		Version:         rel.Version,
		LocalChartDir:   rel.LocalChartDir,
		Dependencies:    rel.Needs,
		Hooks:           rel.Hooks,
		Timeout:         rel.Timeout.Std(),
		Atomic:          rel.Atomic,
		Wait:            rel.Wait,
		CreateNamespace: rel.CreateNamespace,
		WaitForPods:     rel.WaitForPods,
		MinRunningPods:  rel.MinRunningPods,
	}
	if comp.Namespace == "" {
		comp.Namespace = rel.Name
	}
	if comp.LocalChartDir != "" && !filepath.IsAbs(comp.LocalChartDir) {
		comp.LocalChartDir = filepath.Join(baseDir, comp.LocalChartDir)
	}

	if rel.Chart != "" && rel.LocalChartDir == "" {
		if rel.Repo == "" {
			return comp, fmt.Errorf("release %q: chart %q needs a repo or a local chart dir", rel.Name, rel.Chart)
		}
		repo, ok := repos[rel.Repo]
		if !ok {
			return comp, fmt.Errorf("release %q references undeclared repo %q", rel.Name, rel.Repo)
		}
		comp.RepoName = repo.Name
		comp.RepoURL = repo.URL
	}

	values := map[string]interface{}{}
	for _, vf := range rel.ValuesFiles {
		loaded, err := l.loadValues(ctx, baseDir, vf, environment)
		if err != nil {
			return comp, fmt.Errorf("release %q: %w", rel.Name, err)
		}
		values = engine.MergeValues(values, loaded)
		comp.ValuesFiles = append(comp.ValuesFiles, vf)
	}
	comp.Values = engine.MergeValues(values, rel.Values)
	return comp, nil
}

// loadValues evaluates one values file by extension: .star programs run
// under Starlark, everything else decodes as YAML.
func (l *Loader) loadValues(ctx context.Context, baseDir, path, environment string) (map[string]interface{}, error) {
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(baseDir, resolved)
	}

	if strings.EqualFold(filepath.Ext(resolved), ".star") {
		return l.star.EvalFile(ctx, resolved, environment)
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read values file: %w", err)
	}
	var values map[string]interface{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse values file %s: %w", path, err)
	}
	return values, nil
}

// Options maps the file's deploy settings onto engine options, filling
// gaps with the engine defaults.
func (l *Loader) Options(f *File) engine.DeployOptions {
	opts := engine.DefaultDeployOptions()
	if f.Deploy.Retries != nil {
		opts.Retries = *f.Deploy.Retries
	}
	if f.Deploy.Backoff > 0 {
		opts.Backoff = f.Deploy.Backoff.Std()
	}
	opts.UseWaiter = f.Deploy.UseWaiter
	if f.Deploy.WaiterSelectorKey != "" {
		opts.WaiterSelectorKey = f.Deploy.WaiterSelectorKey
	}
	return opts
}
