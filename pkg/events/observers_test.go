package events

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

type closableBuffer struct {
	bytes.Buffer
	closed bool
}

func (b *closableBuffer) Close() error {
	b.closed = true
	return nil
}

func TestJSONLObserver_OneFlatObjectPerLine(t *testing.T) {
	buf := &closableBuffer{}
	obs := NewJSONLObserverTo(buf)

	meta := Meta{Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), RunID: "run-7", Env: "staging"}
	if err := obs.Notify(ReleaseSucceeded{Meta: meta, Name: "web", Attempts: 2, DurationMS: 1500}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := obs.Notify(DeploySummary{Meta: meta, OK: 1}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}

	var first map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 0 is not valid JSON: %v", err)
	}
	if first["type"] != "release.succeeded" {
		t.Errorf("type = %v, want release.succeeded", first["type"])
	}
	if first["run_id"] != "run-7" {
		t.Errorf("run_id = %v, want run-7 flattened to the top level", first["run_id"])
	}
	if first["attempts"] != float64(2) {
		t.Errorf("attempts = %v, want 2", first["attempts"])
	}

	if err := obs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !buf.closed {
		t.Errorf("Close did not close the sink")
	}
}

func TestMarshalEvent_TypeDiscriminator(t *testing.T) {
	meta := Meta{Timestamp: time.Now(), RunID: "r", Env: "e"}
	raw, err := MarshalEvent(WaiterTimedOut{Meta: meta, Name: "db", TimeoutS: 300})
	if err != nil {
		t.Fatalf("MarshalEvent: %v", err)
	}

	var flat map[string]interface{}
	if err := json.Unmarshal(raw, &flat); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if flat["type"] != "waiter.timed_out" {
		t.Errorf("type = %v, want waiter.timed_out", flat["type"])
	}
	if flat["name"] != "db" {
		t.Errorf("name = %v, want db", flat["name"])
	}
}

func TestConsoleObserver_HumanLines(t *testing.T) {
	var buf bytes.Buffer
	obs := &ConsoleObserver{Out: &buf}

	meta := Meta{Timestamp: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC), RunID: "r"}
	events := []Event{
		PlanComputed{Meta: meta, Order: []string{"a", "b"}},
		ReleaseStarted{Meta: meta, Name: "a", Namespace: "a-ns"},
		DeploySummary{Meta: meta, OK: 2, Failed: 0, RolledBack: 0},
	}
	for _, e := range events {
		if err := obs.Notify(e); err != nil {
			t.Fatalf("Notify(%s): %v", e.Type(), err)
		}
	}

	out := buf.String()
	for _, want := range []string{
		"[09:30:00] plan: [a b]",
		"deploying a -> a-ns",
		"summary: OK=2 FAILED=0 ROLLED_BACK=0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
