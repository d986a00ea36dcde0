package transports

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalRunner_RunCapturesOutput(t *testing.T) {
	r := &LocalRunner{}
	stdout, stderr, err := r.Run(context.Background(), "sh", "-c", "echo out; echo err >&2")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stdout != "out" {
		t.Errorf("stdout = %q, want out", stdout)
	}
	if stderr != "err" {
		t.Errorf("stderr = %q, want err", stderr)
	}
}

func TestLocalRunner_RunReportsExitError(t *testing.T) {
	r := &LocalRunner{}
	stdout, _, err := r.Run(context.Background(), "sh", "-c", "echo partial; exit 3")
	if err == nil {
		t.Fatalf("expected exit error")
	}
	if stdout != "partial" {
		t.Errorf("stdout = %q, want output kept on failure", stdout)
	}
}

func TestLocalRunner_FileLifecycle(t *testing.T) {
	r := &LocalRunner{}
	path := filepath.Join(t.TempDir(), "staged", "values.yaml")

	if err := r.WriteFile(context.Background(), path, []byte("a: 1\n")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "a: 1\n" {
		t.Errorf("content = %q", data)
	}

	if err := r.RemoveFile(context.Background(), path); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}
	// Removing again must be silent.
	if err := r.RemoveFile(context.Background(), path); err != nil {
		t.Errorf("RemoveFile on missing file: %v", err)
	}
}
