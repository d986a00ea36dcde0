// Package events defines the deployment lifecycle event catalogue and the
// fan-out bus that delivers events to observers.
package events

import (
	"time"
)

// Event is any lifecycle event emitted during a run. Events are immutable
// records: built once, never mutated after emission.
type Event interface {
	// Type is the stable dotted event name used in structured output.
	Type() string

	// EventMeta returns the common fields shared by every event in a run.
	// Named so the promoted method is not shadowed by the embedded Meta
	// field on the variants.
	EventMeta() Meta
}

// Meta carries the fields common to every event. It is embedded into each
// variant so construction gets compile-time field checking, and the run
// correlation ID is threaded through every emission.
type Meta struct {
	// Timestamp is when the event was created.
	Timestamp time.Time `json:"ts"`

	// RunID correlates all events of a single deploy invocation.
	RunID string `json:"run_id"`

	// Env is the target environment name.
	Env string `json:"env"`

	// Context is the kube context of the run, when known.
	Context string `json:"context,omitempty"`
}

// EventMeta implements Event for every variant that embeds Meta.
func (m Meta) EventMeta() Meta { return m }

// MetaBuilder stamps a run's identity onto every event it builds. The run
// ID is generated once at run start and reused for every emission.
type MetaBuilder struct {
	runID   string
	env     string
	context string
}

// NewMetaBuilder returns a builder bound to one run.
func NewMetaBuilder(runID, env, clusterContext string) MetaBuilder {
	return MetaBuilder{runID: runID, env: env, context: clusterContext}
}

// New returns a Meta with a fresh timestamp and the run's identity.
func (b MetaBuilder) New() Meta {
	return Meta{
		Timestamp: time.Now().UTC(),
		RunID:     b.runID,
		Env:       b.env,
		Context:   b.context,
	}
}

// RunID returns the run correlation ID the builder was created with.
func (b MetaBuilder) RunID() string { return b.runID }

// Planner events.

// PlanComputed reports the total deployment order the planner produced.
type PlanComputed struct {
	Meta
	Order []string `json:"order"`
}

func (PlanComputed) Type() string { return "plan.computed" }

// PlanFailed reports a planning failure; no deployment was attempted.
type PlanFailed struct {
	Meta
	Error string `json:"error"`
}

func (PlanFailed) Type() string { return "plan.failed" }

// Repository events.

// RepoAdded reports a chart repository registration.
type RepoAdded struct {
	Meta
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (RepoAdded) Type() string { return "repo.added" }

// ReposUpdated reports that all repository indexes were refreshed.
type ReposUpdated struct {
	Meta
}

func (ReposUpdated) Type() string { return "repo.updated" }

// Release lifecycle events.

// ReleaseStarted marks the beginning of one component's processing.
type ReleaseStarted struct {
	Meta
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Chart     string `json:"chart,omitempty"`
}

func (ReleaseStarted) Type() string { return "release.started" }

// ReleaseLinted reports a lint result. A failed lint is fatal for the run.
type ReleaseLinted struct {
	Meta
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (ReleaseLinted) Type() string { return "release.linted" }

// ReleaseUpgradeAttempt marks the start of one install attempt.
type ReleaseUpgradeAttempt struct {
	Meta
	Name    string `json:"name"`
	Attempt int    `json:"attempt"`
}

func (ReleaseUpgradeAttempt) Type() string { return "release.upgrade_attempt" }

// ReleaseSucceeded reports a successful install, with the attempt count
// and the duration of the succeeding attempt.
type ReleaseSucceeded struct {
	Meta
	Name       string `json:"name"`
	Attempts   int    `json:"attempts"`
	DurationMS int64  `json:"duration_ms"`
}

func (ReleaseSucceeded) Type() string { return "release.succeeded" }

// ReleaseFailed reports install failure after exhausting retries.
type ReleaseFailed struct {
	Meta
	Name     string `json:"name"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

func (ReleaseFailed) Type() string { return "release.failed" }

// Waiter events.

// WaiterStarted marks the start of the executor-level readiness wait.
type WaiterStarted struct {
	Meta
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Selector  string `json:"selector"`
	TimeoutS  int    `json:"timeout_s"`
}

func (WaiterStarted) Type() string { return "waiter.started" }

// WaiterSucceeded reports that readiness was reached.
type WaiterSucceeded struct {
	Meta
	Name string `json:"name"`
}

func (WaiterSucceeded) Type() string { return "waiter.succeeded" }

// WaiterTimedOut reports that readiness was not reached within the bound.
type WaiterTimedOut struct {
	Meta
	Name     string `json:"name"`
	TimeoutS int    `json:"timeout_s"`
}

func (WaiterTimedOut) Type() string { return "waiter.timed_out" }

// Rollback and summary events.

// RollbackStarted marks the start of one rollback step.
type RollbackStarted struct {
	Meta
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

func (RollbackStarted) Type() string { return "rollback.started" }

// RollbackResult reports the outcome of one rollback step. A failed step
// never stops the sweep.
type RollbackResult struct {
	Meta
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (RollbackResult) Type() string { return "rollback.result" }

// DeploySummary is the final event of every run, success or failure.
type DeploySummary struct {
	Meta
	OK         int `json:"ok"`
	Failed     int `json:"failed"`
	RolledBack int `json:"rolled_back"`
}

func (DeploySummary) Type() string { return "deploy.summary" }
