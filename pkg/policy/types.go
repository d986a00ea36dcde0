package policy

import (
	"time"

	"github.com/helmdeck/helmdeck/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed but do not
	// block a run.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block the run.
	SeverityError Severity = "error"
)

// Policy is one named Rego rule set evaluated against the deployment.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations the rule emits
	// without one of its own.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`
}

// Violation is a single policy finding.
type Violation struct {
	// Policy is the name of the policy that produced the finding.
	Policy string `json:"policy"`

	// Release is the release the finding applies to, empty for
	// deployment-level findings.
	Release string `json:"release,omitempty"`

	// Message is a human-readable description of the finding.
	Message string `json:"message"`

	// Severity is the finding's severity level.
	Severity Severity `json:"severity"`
}

// Result is the outcome of gating one deployment.
type Result struct {
	// Allowed is false when any error-severity violation was found.
	Allowed bool `json:"allowed"`

	// Violations lists every finding, blocking or not.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists evaluation problems (a policy that failed to run),
	// which never block.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the gate ran.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Blocking returns only the violations that prevent the run.
func (r *Result) Blocking() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityError {
			out = append(out, v)
		}
	}
	return out
}

// Input is the document handed to every Rego evaluation. Release-level
// rules read input.release; deployment-level rules read input.deployment.
type Input struct {
	// Release is the release under evaluation, nil for the
	// deployment-level pass.
	Release *engine.ComponentSpec `json:"release,omitempty"`

	// Deployment is the full deployment set, only present on the
	// deployment-level pass.
	Deployment *engine.Deployment `json:"deployment,omitempty"`

	// Context carries run identity shared by both passes.
	Context *Context `json:"context"`
}

// Context provides run identity for policy evaluation.
type Context struct {
	// Environment is the target environment (dev, staging, prod...).
	Environment string `json:"environment"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}
