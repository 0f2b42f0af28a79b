// Package process runs external tools (capture utility, OCR binaries) as
// blocking subprocesses and locates/terminates foreign processes by identity.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// ErrTimeout is returned when a subprocess outlives its deadline.
var ErrTimeout = errors.New("subprocess timed out")

// ErrNotFound is returned when the executable cannot be resolved.
var ErrNotFound = errors.New("executable not found")

// Result is what a finished subprocess left behind. ExitCode is -1 when the
// process never produced one (not started, killed by a signal).
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Elapsed  time.Duration
}

// Runner executes a command to completion.
type Runner interface {
	// Run blocks until the command exits or ctx expires. A non-zero exit is not
	// an error; it is reported in Result.ExitCode. Errors are reserved for
	// ErrNotFound, ErrTimeout and start failures.
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner is the os/exec backed Runner.
type ExecRunner struct{}

// NewRunner returns the default Runner.
func NewRunner() Runner { return ExecRunner{} }

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	res := Result{ExitCode: -1}

	path, err := exec.LookPath(name)
	if err != nil {
		return res, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Don't let a wedged child keep the pipes (and us) alive after the kill.
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	err = cmd.Run()
	res.Elapsed = time.Since(start)
	res.Stdout = stdout.Bytes()
	res.Stderr = stderr.Bytes()

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.DeadlineExceeded) {
		slog.Warn("subprocess deadline exceeded", "cmd", name, "elapsed", res.Elapsed)
		return res, fmt.Errorf("%w: %s after %s", ErrTimeout, name, res.Elapsed.Round(time.Millisecond))
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("running %s: %w", name, err)
	}

	slog.Debug("subprocess finished", "cmd", name, "exit", res.ExitCode, "elapsed", res.Elapsed)
	return res, nil
}

// WithTimeout derives a context bounded by d; d <= 0 leaves ctx unbounded.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
