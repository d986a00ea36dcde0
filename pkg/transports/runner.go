// Package transports abstracts where helm and kubectl processes run: on
// the operator's machine or on a remote controller host over SSH.
package transports

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Runner executes external tools and stages files for them. The deploy
// tooling passes data to helm and kubectl through files rather than
// stdin, so one interface covers the local and the SSH case.
type Runner interface {
	// Run executes name with args and returns captured stdout and
	// stderr. A non-zero exit is returned as an error with the output
	// still populated.
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)

	// WriteFile stages data at path on the host the tools run on.
	WriteFile(ctx context.Context, path string, data []byte) error

	// RemoveFile deletes a staged file. Missing files are not an error.
	RemoveFile(ctx context.Context, path string) error

	// TempDir returns the scratch directory for staged files.
	TempDir() string
}

// LocalRunner runs tools as child processes on this machine.
type LocalRunner struct {
	// Env entries are appended to the inherited environment.
	Env []string
}

// Run implements Runner.
func (l *LocalRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return strings.TrimRight(stdout.String(), "\n"), strings.TrimRight(stderr.String(), "\n"), err
}

// WriteFile implements Runner.
func (l *LocalRunner) WriteFile(_ context.Context, path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// RemoveFile implements Runner.
func (l *LocalRunner) RemoveFile(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// TempDir implements Runner.
func (l *LocalRunner) TempDir() string {
	return os.TempDir()
}
