package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/helmdeck/helmdeck/pkg/engine"
)

// Engine is the policy gate run before a deployment. It evaluates every
// enabled policy twice: once per release with input.release set, and
// once for the whole set with input.deployment set. Any error-severity
// violation blocks the run.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

// compiledPolicy pairs a policy with its prepared deny query.
type compiledPolicy struct {
	policy   *Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	builtins := GetBuiltinPolicies()
	for i := range builtins {
		if err := e.compileAndStorePolicy(context.Background(), &builtins[i]); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}

	return e, nil
}

// EvaluateDeployment gates one deployment set. The returned result is
// always non-nil; a policy that fails to evaluate is reported as a
// warning, never as a block.
func (e *Engine) EvaluateDeployment(ctx context.Context, dep *engine.Deployment) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	start := time.Now()

	var violations []Violation
	var warnings []string

	// Stable evaluation order keeps findings deterministic for tests
	// and for diffable CLI output.
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)

	evalCtx := &Context{Environment: dep.Environment, Timestamp: start}

	for _, name := range names {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}

		for i := range dep.Components {
			input := &Input{Release: &dep.Components[i], Context: evalCtx}
			found, err := e.evaluatePolicy(ctx, cp, input)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("policy %s failed on release %s: %v", cp.policy.Name, dep.Components[i].Name, err))
				continue
			}
			violations = append(violations, found...)
		}

		input := &Input{Deployment: dep, Context: evalCtx}
		found, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("policy %s failed on deployment: %v", cp.policy.Name, err))
			continue
		}
		violations = append(violations, found...)
	}

	allowed := true
	for i := range violations {
		if violations[i].Severity == SeverityError {
			allowed = false
			break
		}
	}

	e.logger.Debug().
		Str("environment", dep.Environment).
		Int("violations", len(violations)).
		Bool("allowed", allowed).
		Dur("duration", time.Since(start)).
		Msg("policy gate evaluated")

	return &Result{
		Allowed:     allowed,
		Violations:  violations,
		Warnings:    warnings,
		EvaluatedAt: start,
	}, nil
}

// LoadPolicies compiles and registers policies from the given file or
// directory paths, alongside the built-ins.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	for i := range policies {
		if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().Int("count", len(policies)).Msg("policies loaded")
	return nil
}

// evaluatePolicy runs one policy's prepared deny query against the input.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, e.buildViolation(cp.policy, d, input))
			}
		}
	}

	return violations, nil
}

// buildViolation converts one deny result into a Violation. A string
// result carries only a message; an object result may override the
// policy's default severity and name the offending release.
func (e *Engine) buildViolation(policy *Policy, result interface{}, input *Input) Violation {
	v := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}
	if input.Release != nil {
		v.Release = input.Release.Name
	}

	switch r := result.(type) {
	case string:
		v.Message = r
	case map[string]interface{}:
		if msg, ok := r["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := r["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
		if rel, ok := r["release"].(string); ok {
			v.Release = rel
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}

	return v
}

// compileAndStorePolicy prepares the policy's deny query for reuse.
func (e *Engine) compileAndStorePolicy(ctx context.Context, policy *Policy) error {
	query := fmt.Sprintf("data.%s.deny", extractPackageName(policy.Rego))

	r := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(query),
	)

	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	e.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		query:    prepared,
		compiled: time.Now(),
	}

	e.logger.Debug().Str("policy", policy.Name).Msg("policy compiled")
	return nil
}

// extractPackageName extracts the package name from Rego code.
func extractPackageName(src string) string {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "helmdeck.policies"
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns all registered policies, sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, *cp.policy)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })
	return policies
}

// SetEnabled flips a policy on or off by name.
func (e *Engine) SetEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("policy toggled")
	return nil
}
