package stores

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/helmdeck/helmdeck/pkg/events"
)

// RunRecorder is an event observer that mirrors every lifecycle event
// into the store. The first event of a run creates the run row. Storage
// failures are logged and swallowed so a broken audit database never
// aborts a deployment.
type RunRecorder struct {
	store   *SQLiteStore
	logger  zerolog.Logger
	timeout time.Duration
}

// NewRunRecorder wraps the store as an observer.
func NewRunRecorder(store *SQLiteStore, logger zerolog.Logger) *RunRecorder {
	return &RunRecorder{
		store:   store,
		logger:  logger.With().Str("component", "run-recorder").Logger(),
		timeout: 5 * time.Second,
	}
}

// Notify persists one event. The deploy pipeline never waits on the
// audit database longer than the recorder timeout.
func (r *RunRecorder) Notify(e events.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	meta := e.EventMeta()

	if err := r.store.SaveRun(ctx, RunRecord{
		ID:          meta.RunID,
		Environment: meta.Env,
		Context:     meta.Context,
		StartedAt:   meta.Timestamp,
	}); err != nil {
		r.logger.Warn().Err(err).Str("run_id", meta.RunID).Msg("failed to save run row")
		return err
	}

	payload, err := events.MarshalEvent(e)
	if err != nil {
		r.logger.Warn().Err(err).Str("type", e.Type()).Msg("failed to marshal event")
		return err
	}

	if err := r.store.AppendEvent(ctx, EventRecord{
		RunID:     meta.RunID,
		Type:      e.Type(),
		Timestamp: meta.Timestamp,
		Payload:   string(payload),
	}); err != nil {
		r.logger.Warn().Err(err).Str("type", e.Type()).Msg("failed to append event")
		return err
	}

	return nil
}
