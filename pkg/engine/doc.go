// Package engine implements the deployment orchestration core: the
// dependency planner, the per-component lifecycle engine, and the release
// executor with retry and rollback handling.
//
// The engine is deliberately sequential. Components are deployed one at a
// time in the exact order produced by Plan, even when the dependency graph
// would allow independent branches to proceed concurrently. Cluster
// bring-up is dominated by a handful of long serial chains (storage before
// databases before services), and a serial executor keeps failure
// attribution and rollback ordering trivial to reason about. A bounded
// worker pool over the zero-indegree frontier is the natural extension if
// that trade-off ever changes.
//
// The engine holds no durable state between runs. Idempotency is decided
// by querying the live cluster (release-exists checks, pod readiness), so
// a re-run after a partial failure converges without a local ledger.
package engine
