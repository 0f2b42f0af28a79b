package screenshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"screen-ocr-clip/src/process"
)

var (
	ErrCancelled        = errors.New("capture cancelled by user")
	ErrCaptureFailed    = errors.New("capture failed")
	ErrToolUnavailable  = errors.New("capture tool unavailable")
	ErrTimeout          = errors.New("capture timed out")
	ErrPermissionDenied = errors.New("screen capture permission denied")
)

const (
	filePrefix = "screenshot_"
	fileExt    = ".png"
)

// Mode selects what the external capture tool grabs.
type Mode int

const (
	ModeFull Mode = iota
	ModeWindow
	ModeArea
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeWindow:
		return "window"
	case ModeArea:
		return "area"
	default:
		return "unknown"
	}
}

// Interactive reports whether the user picks the target (and may cancel).
func (m Mode) Interactive() bool { return m == ModeWindow || m == ModeArea }

// ParseMode accepts the names printed by String plus a few aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "fullscreen", "screen":
		return ModeFull, nil
	case "window", "active-window":
		return ModeWindow, nil
	case "area", "region", "selection", "rect":
		return ModeArea, nil
	default:
		return ModeFull, fmt.Errorf("unknown capture mode %q", s)
	}
}

// Request is one capture invocation.
type Request struct {
	Mode       Mode
	OutputPath string
}

// Status is the kind of a Result.
type Status int

const (
	StatusOK Status = iota
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// Result of a capture. For StatusOK the file at Path existed with SizeBytes > 0
// when the result was produced. Err wraps one of the package sentinels for the
// other statuses; Reason is the human-readable text (stderr of the tool).
type Result struct {
	Status    Status
	Path      string
	SizeBytes int64
	Reason    string
	Err       error
}

func (r Result) OK() bool { return r.Status == StatusOK }

func cancelled() Result {
	return Result{Status: StatusCancelled, Reason: "cancelled", Err: ErrCancelled}
}

func failed(err error, reason string) Result {
	if reason == "" {
		reason = err.Error()
	}
	return Result{Status: StatusFailed, Reason: reason, Err: err}
}

// NativeCapturer writes a full-screen PNG to path without the external tool.
type NativeCapturer func(path string) error

type Options struct {
	Dir                string
	Tool               string
	CancelCode         int
	Timeout            time.Duration // full-screen and permission checks
	InteractiveTimeout time.Duration // window and area captures
	Runner             process.Runner
	Native             NativeCapturer // optional full-screen fallback
	Now                func() time.Time
}

// Invoker drives the platform capture tool.
type Invoker struct {
	dir                string
	tool               string
	cancelCode         int
	timeout            time.Duration
	interactiveTimeout time.Duration
	runner             process.Runner
	native             NativeCapturer
	now                func() time.Time

	mu         sync.Mutex
	lastMillis int64
}

func NewInvoker(opts Options) *Invoker {
	inv := &Invoker{
		dir:                opts.Dir,
		tool:               opts.Tool,
		cancelCode:         opts.CancelCode,
		timeout:            opts.Timeout,
		interactiveTimeout: opts.InteractiveTimeout,
		runner:             opts.Runner,
		native:             opts.Native,
		now:                opts.Now,
	}
	if inv.dir == "" {
		inv.dir = filepath.Join(os.TempDir(), "screenshots")
	}
	if inv.tool == "" {
		inv.tool = "screencapture"
	}
	if inv.runner == nil {
		inv.runner = process.NewRunner()
	}
	if inv.now == nil {
		inv.now = time.Now
	}
	return inv
}

// Dir returns the scratch directory.
func (i *Invoker) Dir() string { return i.dir }

// EnsureDir creates the scratch directory if needed.
func (i *Invoker) EnsureDir() error {
	if err := os.MkdirAll(i.dir, 0o755); err != nil {
		return fmt.Errorf("creating scratch dir %s: %w", i.dir, err)
	}
	return nil
}

// NewPath returns a fresh screenshot_<epoch-millis>.png path. Millis never
// repeat within the process, and an existing file is skipped.
func (i *Invoker) NewPath() (string, error) {
	if err := i.EnsureDir(); err != nil {
		return "", err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	ms := i.now().UnixMilli()
	if ms <= i.lastMillis {
		ms = i.lastMillis + 1
	}
	for {
		path := filepath.Join(i.dir, fmt.Sprintf("%s%d%s", filePrefix, ms, fileExt))
		if _, err := os.Lstat(path); os.IsNotExist(err) {
			i.lastMillis = ms
			return path, nil
		}
		ms++
	}
}

func (i *Invoker) CaptureFullScreen(ctx context.Context) Result {
	return i.Capture(ctx, ModeFull)
}

func (i *Invoker) CaptureActiveWindow(ctx context.Context) Result {
	return i.Capture(ctx, ModeWindow)
}

func (i *Invoker) CaptureSelectedArea(ctx context.Context) Result {
	return i.Capture(ctx, ModeArea)
}

// Capture runs the external tool for mode and validates its output.
func (i *Invoker) Capture(ctx context.Context, mode Mode) Result {
	path, err := i.NewPath()
	if err != nil {
		return failed(fmt.Errorf("%w: %v", ErrCaptureFailed, err), "")
	}
	return i.run(ctx, Request{Mode: mode, OutputPath: path})
}

func (i *Invoker) run(ctx context.Context, req Request) Result {
	timeout := i.timeout
	if req.Mode.Interactive() {
		timeout = i.interactiveTimeout
	}
	runCtx, cancel := process.WithTimeout(ctx, timeout)
	defer cancel()

	slog.Info("capture starting", "mode", req.Mode.String(), "path", req.OutputPath)
	res, err := i.runner.Run(runCtx, i.tool, captureArgs(req)...)
	switch {
	case errors.Is(err, process.ErrNotFound):
		return i.fallback(req, err)
	case errors.Is(err, process.ErrTimeout):
		_ = os.Remove(req.OutputPath)
		return failed(fmt.Errorf("%w: %v", ErrTimeout, err), "timeout")
	case err != nil:
		return failed(fmt.Errorf("%w: %v", ErrCaptureFailed, err), "")
	}

	if res.ExitCode == 0 {
		return validate(req.OutputPath)
	}
	if req.Mode.Interactive() && res.ExitCode == i.cancelCode {
		slog.Info("capture cancelled", "mode", req.Mode.String())
		_ = os.Remove(req.OutputPath)
		return cancelled()
	}

	reason := strings.TrimSpace(string(res.Stderr))
	if reason == "" {
		reason = fmt.Sprintf("%s exited with code %d", i.tool, res.ExitCode)
	}
	slog.Warn("capture failed", "mode", req.Mode.String(), "exit", res.ExitCode, "stderr", reason)
	_ = os.Remove(req.OutputPath)

	if !i.HasPermission(ctx) {
		return failed(fmt.Errorf("%w: %s", ErrPermissionDenied, reason), reason)
	}
	return failed(fmt.Errorf("%w: %s", ErrCaptureFailed, reason), reason)
}

func (i *Invoker) fallback(req Request, cause error) Result {
	if req.Mode != ModeFull || i.native == nil {
		return failed(fmt.Errorf("%w: %v", ErrToolUnavailable, cause), "")
	}
	slog.Info("capture tool missing, using native capture", "tool", i.tool)
	if err := i.native(req.OutputPath); err != nil {
		_ = os.Remove(req.OutputPath)
		return failed(fmt.Errorf("%w: native capture: %v", ErrCaptureFailed, err), "")
	}
	return validate(req.OutputPath)
}

func validate(path string) Result {
	st, err := os.Stat(path)
	if err != nil {
		return failed(fmt.Errorf("%w: output missing: %v", ErrCaptureFailed, err), "")
	}
	if st.Size() == 0 {
		_ = os.Remove(path)
		return failed(fmt.Errorf("%w: output file is empty", ErrCaptureFailed), "")
	}
	return Result{Status: StatusOK, Path: path, SizeBytes: st.Size()}
}

// captureArgs builds the tool command line: silent, PNG, mode flag, path last.
func captureArgs(req Request) []string {
	args := []string{"-x", "-t", "png"}
	switch req.Mode {
	case ModeWindow:
		args = append(args, "-w")
	case ModeArea:
		args = append(args, "-i")
	}
	return append(args, req.OutputPath)
}
