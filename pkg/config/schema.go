package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry holds the CUE schemas deployment files are validated
// against after YAML decoding. Struct tags catch missing fields; the CUE
// layer catches shape mistakes YAML decoding silently tolerates, like a
// scalar where a mapping belongs.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry with the built-in schemas loaded.
func NewSchemaRegistry() (*SchemaRegistry, error) {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	for name, src := range map[string]string{
		"deployment": builtinDeploymentSchema,
		"release":    builtinReleaseSchema,
	} {
		if err := sr.Register(name, src); err != nil {
			return nil, err
		}
	}
	return sr, nil
}

// Register compiles and stores a schema under name.
func (sr *SchemaRegistry) Register(name, schema string) error {
	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("compile schema %s: %w", name, err)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.schemas[name] = val
	return nil
}

// Validate unifies data with the named schema's definition and reports
// the first constraint violation.
func (sr *SchemaRegistry) Validate(name, definition string, data interface{}) error {
	sr.mu.RLock()
	schema, ok := sr.schemas[name]
	sr.mu.RUnlock()
	if !ok {
		return fmt.Errorf("schema %s not registered", name)
	}

	def := schema.LookupPath(cue.ParsePath(definition))
	if err := def.Err(); err != nil {
		return fmt.Errorf("schema %s has no definition %s: %w", name, definition, err)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("encode data: %w", err)
	}

	if err := def.Unify(dataVal).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}

// ValidateFile validates a decoded deployment file against the built-in
// deployment schema.
func (sr *SchemaRegistry) ValidateFile(f *File) error {
	// Round-trip through a generic map so CUE sees YAML-shaped data
	// rather than Go struct internals.
	data := map[string]interface{}{
		"environment": f.Environment,
	}
	releases := make([]interface{}, 0, len(f.Releases))
	for _, r := range f.Releases {
		rel := map[string]interface{}{"name": r.Name}
		if r.Chart != "" {
			rel["chart"] = r.Chart
		}
		if r.Repo != "" {
			rel["repo"] = r.Repo
		}
		if len(r.Needs) > 0 {
			needs := make([]interface{}, len(r.Needs))
			for i, n := range r.Needs {
				needs[i] = n
			}
			rel["needs"] = needs
		}
		if err := sr.Validate("release", "#Release", rel); err != nil {
			return fmt.Errorf("release %s: %w", r.Name, err)
		}
		releases = append(releases, rel)
	}
	data["releases"] = releases
	return sr.Validate("deployment", "#Deployment", data)
}

const builtinDeploymentSchema = `
#Deployment: {
	// environment names the target environment
	environment: string & =~"^[a-z0-9][a-z0-9_-]*$"

	// releases is the deployable set, at least one entry
	releases: [_, ...]
	...
}
`

const builtinReleaseSchema = `
#Release: {
	// name is the release identity, also the default namespace
	name: string & =~"^[a-z0-9][a-z0-9-]*$"

	// chart is the chart name within its repository
	chart?: string

	// repo references a declared repository alias
	repo?: string & =~"^[a-zA-Z0-9_-]+$"

	// needs lists releases that deploy first
	needs?: [...string]
	...
}
`
