package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// UnknownDependencyError reports a dependency edge pointing at a component
// name that does not exist in the deployment set.
type UnknownDependencyError struct {
	// Component is the component declaring the dependency.
	Component string

	// Missing is the dependency name that could not be resolved.
	Missing string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("component %q depends on unknown component %q", e.Component, e.Missing)
}

// CyclicDependencyError reports a cycle in the dependency graph. Remaining
// lists the components that could not be ordered, sorted by name.
type CyclicDependencyError struct {
	Remaining []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency detected among components: %s", strings.Join(e.Remaining, ", "))
}

// WaiterTimeoutError reports that pod readiness was not reached within the
// configured bound. The lifecycle engine returns it unmodified; whether it
// triggers a rollback is the executor's decision.
type WaiterTimeoutError struct {
	// Component is the component whose readiness wait timed out.
	Component string

	// Namespace is the namespace that was polled.
	Namespace string

	// Selector is the label selector used, when the executor-level waiter
	// produced the timeout; empty for the lifecycle engine's pod count wait.
	Selector string

	// Timeout is the effective bound that was exceeded.
	Timeout time.Duration

	// Err carries the collaborator's error, typically including a pod
	// status summary.
	Err error
}

func (e *WaiterTimeoutError) Error() string {
	if e.Selector != "" {
		return fmt.Sprintf("readiness wait timed out for %q (namespace=%s, selector=%s, timeout=%s): %v",
			e.Component, e.Namespace, e.Selector, e.Timeout, e.Err)
	}
	return fmt.Sprintf("readiness wait timed out for %q (namespace=%s, timeout=%s): %v",
		e.Component, e.Namespace, e.Timeout, e.Err)
}

func (e *WaiterTimeoutError) Unwrap() error {
	return e.Err
}

// ToolError is raised by CLI collaborators (helm, kubectl) and carries the
// captured process output for diagnosis.
type ToolError struct {
	// Tool is the binary that failed.
	Tool string

	// Args is the argument vector that was executed.
	Args []string

	// Stdout and Stderr are the captured process streams.
	Stdout string
	Stderr string

	// Err is the underlying execution error.
	Err error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s %s failed: %v", e.Tool, strings.Join(e.Args, " "), e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// IsPlanningError reports whether err is one of the pre-execution planner
// failures, which are guaranteed to have caused no side effects.
func IsPlanningError(err error) bool {
	var unknown *UnknownDependencyError
	var cyclic *CyclicDependencyError
	return errors.As(err, &unknown) || errors.As(err, &cyclic)
}

// IsWaiterTimeout reports whether err is a readiness timeout.
func IsWaiterTimeout(err error) bool {
	var wt *WaiterTimeoutError
	return errors.As(err, &wt)
}
