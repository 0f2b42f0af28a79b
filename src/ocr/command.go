package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"screen-ocr-clip/src/process"
)

const (
	BackendBinary = "binary"
	BackendScript = "script"
)

// scriptErrorPrefix marks a helper script reporting failure on stdout.
const scriptErrorPrefix = "ERROR:"

// CommandBackend runs an external recognizer. Candidates are tried in order and
// the first one that resolves is used; absolute candidates must exist on disk,
// bare names go through the search path.
type CommandBackend struct {
	name       string
	candidates []string
	args       func(imagePath string) []string
	runner     process.Runner
	timeout    time.Duration
}

// NewTesseractBackend prints recognized text to stdout via the tesseract CLI.
func NewTesseractBackend(candidates []string, language string, runner process.Runner, timeout time.Duration) *CommandBackend {
	return &CommandBackend{
		name:       BackendBinary,
		candidates: candidates,
		args: func(imagePath string) []string {
			args := []string{imagePath, "stdout"}
			if language != "" {
				args = append(args, "-l", language)
			}
			return args
		},
		runner:  runner,
		timeout: timeout,
	}
}

// NewScriptBackend runs a helper script that prints the text, or a line
// starting with "ERROR:" when it could not recognize anything.
func NewScriptBackend(script string, runner process.Runner, timeout time.Duration) *CommandBackend {
	return &CommandBackend{
		name:       BackendScript,
		candidates: []string{"python3"},
		args: func(imagePath string) []string {
			return []string{script, imagePath}
		},
		runner:  runner,
		timeout: timeout,
	}
}

func (b *CommandBackend) Name() string { return b.name }

func (b *CommandBackend) Attempt(ctx context.Context, imagePath string) Outcome {
	bin, ok := b.resolve()
	if !ok {
		slog.Debug("no candidate executable", "backend", b.name, "candidates", b.candidates)
		return FallThrough()
	}

	ctx, cancel := process.WithTimeout(ctx, b.timeout)
	defer cancel()

	res, err := b.runner.Run(ctx, bin, b.args(imagePath)...)
	switch {
	case errors.Is(err, process.ErrTimeout):
		return Failed(fmt.Errorf("%w: %v", ErrTimeout, err))
	case err != nil:
		slog.Debug("recognizer did not run", "backend", b.name, "bin", bin, "err", err)
		return FallThrough()
	case res.ExitCode != 0:
		slog.Debug("recognizer exited non-zero", "backend", b.name, "exit", res.ExitCode,
			"stderr", strings.TrimSpace(string(res.Stderr)))
		return FallThrough()
	}

	text := string(res.Stdout)
	if strings.HasPrefix(strings.TrimSpace(text), scriptErrorPrefix) {
		slog.Debug("recognizer reported an error", "backend", b.name, "output", strings.TrimSpace(text))
		return FallThrough()
	}
	return Extracted(text)
}

func (b *CommandBackend) resolve() (string, bool) {
	for _, c := range b.candidates {
		if c == "" {
			continue
		}
		if filepath.IsAbs(c) {
			if st, err := os.Stat(c); err == nil && !st.IsDir() {
				return c, true
			}
			continue
		}
		return c, true
	}
	return "", false
}
