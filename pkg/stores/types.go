package stores

import (
	"time"
)

// RunRecord is one row of the run history. A row is created when the
// first event of a run is recorded and finalized by CompleteRun.
type RunRecord struct {
	// ID is the run correlation ID stamped on every event of the run.
	ID string `json:"id"`

	// Environment and Context identify the deploy target.
	Environment string `json:"environment"`
	Context     string `json:"context,omitempty"`

	// StartedAt is when the run record was first written, FinishedAt is
	// set by CompleteRun and nil while the run is in flight.
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// OK, Failed and RolledBack are the aggregate outcome counts.
	OK         int `json:"ok"`
	Failed     int `json:"failed"`
	RolledBack int `json:"rolled_back"`

	// Error is the run-level failure reason, empty on success.
	Error string `json:"error,omitempty"`
}

// OutcomeRecord is the persisted terminal state of one component within
// a run.
type OutcomeRecord struct {
	RunID     string `json:"run_id"`
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error,omitempty"`
}

// EventRecord is one persisted lifecycle event. Payload holds the full
// flattened event as JSON, the way the JSONL observer writes it.
type EventRecord struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"ts"`
	Payload   string    `json:"payload"`
}
