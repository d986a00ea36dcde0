package events

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// ConsoleObserver prints a one-line human-readable rendering of each event.
type ConsoleObserver struct {
	Out io.Writer
}

// NewConsoleObserver writes to stdout.
func NewConsoleObserver() *ConsoleObserver {
	return &ConsoleObserver{Out: os.Stdout}
}

func (c *ConsoleObserver) Notify(e Event) error {
	out := c.Out
	if out == nil {
		out = os.Stdout
	}

	var line string
	switch ev := e.(type) {
	case PlanComputed:
		line = fmt.Sprintf("plan: %v", ev.Order)
	case PlanFailed:
		line = fmt.Sprintf("plan failed: %s", ev.Error)
	case RepoAdded:
		line = fmt.Sprintf("repo added: %s (%s)", ev.Name, ev.URL)
	case ReposUpdated:
		line = "repos updated"
	case ReleaseStarted:
		line = fmt.Sprintf("deploying %s -> %s", ev.Name, ev.Namespace)
	case ReleaseLinted:
		if ev.OK {
			line = fmt.Sprintf("lint ok: %s", ev.Name)
		} else {
			line = fmt.Sprintf("lint FAILED: %s: %s", ev.Name, ev.Error)
		}
	case ReleaseUpgradeAttempt:
		line = fmt.Sprintf("install %s (attempt %d)", ev.Name, ev.Attempt)
	case ReleaseSucceeded:
		line = fmt.Sprintf("installed %s (attempts=%d, %dms)", ev.Name, ev.Attempts, ev.DurationMS)
	case ReleaseFailed:
		line = fmt.Sprintf("install FAILED: %s after %d attempts: %s", ev.Name, ev.Attempts, ev.Error)
	case WaiterStarted:
		line = fmt.Sprintf("waiting for %s (%s, timeout %ds)", ev.Name, ev.Selector, ev.TimeoutS)
	case WaiterSucceeded:
		line = fmt.Sprintf("ready: %s", ev.Name)
	case WaiterTimedOut:
		line = fmt.Sprintf("wait TIMED OUT: %s after %ds", ev.Name, ev.TimeoutS)
	case RollbackStarted:
		line = fmt.Sprintf("rolling back %s", ev.Name)
	case RollbackResult:
		line = fmt.Sprintf("rollback %s: %s", ev.Name, ev.Status)
	case DeploySummary:
		line = fmt.Sprintf("summary: OK=%d FAILED=%d ROLLED_BACK=%d", ev.OK, ev.Failed, ev.RolledBack)
	default:
		line = e.Type()
	}

	_, err := fmt.Fprintf(out, "[%s] %s\n", e.EventMeta().Timestamp.Format("15:04:05"), line)
	return err
}

// LogObserver forwards events to a zerolog logger as structured records.
// Failure events log at error level, everything else at info.
type LogObserver struct {
	Logger zerolog.Logger
}

// NewLogObserver binds an observer to the given logger.
func NewLogObserver(logger zerolog.Logger) *LogObserver {
	return &LogObserver{Logger: logger.With().Str("component", "events").Logger()}
}

func (l *LogObserver) Notify(e Event) error {
	evt := l.Logger.Info()
	switch e.(type) {
	case PlanFailed, ReleaseFailed, WaiterTimedOut:
		evt = l.Logger.Error()
	case ReleaseLinted:
		if !e.(ReleaseLinted).OK {
			evt = l.Logger.Error()
		}
	}
	evt.
		Str("type", e.Type()).
		Str("run_id", e.EventMeta().RunID).
		Str("env", e.EventMeta().Env).
		Interface("event", e).
		Msg(e.Type())
	return nil
}

// JSONLObserver appends one JSON object per event to a file: the event's
// fields flattened, plus a "type" discriminator. The file is an append-only
// audit log of the run.
type JSONLObserver struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// NewJSONLObserver opens (creating if needed) the audit file for append.
func NewJSONLObserver(path string) (*JSONLObserver, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &JSONLObserver{w: f}, nil
}

// NewJSONLObserverTo writes to an arbitrary sink, used by tests.
func NewJSONLObserverTo(w io.WriteCloser) *JSONLObserver {
	return &JSONLObserver{w: w}
}

func (j *JSONLObserver) Notify(e Event) error {
	line, err := MarshalEvent(e)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.w.Write(append(line, '\n'))
	return err
}

// Close closes the underlying file.
func (j *JSONLObserver) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.w.Close()
}

// MarshalEvent renders an event as a single JSON object with a "type"
// field alongside the event's own (embedded Meta included) fields.
func MarshalEvent(e Event) ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var flat map[string]interface{}
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, err
	}
	flat["type"] = e.Type()
	return json.Marshal(flat)
}
