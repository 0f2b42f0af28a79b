package screenshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screen-ocr-clip/src/process"
)

// fakeRunner scripts the capture tool. write controls what lands at the
// output path (the last argument) on a zero exit.
type fakeRunner struct {
	mu        sync.Mutex
	calls     [][]string
	exitCode  int
	stderr    string
	err       error
	write     []byte
	checkExit int
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (process.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))

	if isPermissionCheck(args) {
		if f.err != nil {
			return process.Result{ExitCode: -1}, f.err
		}
		return process.Result{ExitCode: f.checkExit}, nil
	}
	if f.err != nil {
		return process.Result{ExitCode: -1}, f.err
	}
	if f.exitCode == 0 && f.write != nil {
		if err := os.WriteFile(args[len(args)-1], f.write, 0o644); err != nil {
			return process.Result{}, err
		}
	}
	return process.Result{ExitCode: f.exitCode, Stderr: []byte(f.stderr)}, nil
}

func isPermissionCheck(args []string) bool {
	for _, a := range args {
		if strings.HasPrefix(a, "-R") {
			return true
		}
	}
	return false
}

func newTestInvoker(t *testing.T, r process.Runner) *Invoker {
	t.Helper()
	return NewInvoker(Options{
		Dir:                filepath.Join(t.TempDir(), "screenshots"),
		Tool:               "screencapture",
		CancelCode:         1,
		Timeout:            time.Second,
		InteractiveTimeout: time.Second,
		Runner:             r,
	})
}

func TestCaptureSuccessValidatesFile(t *testing.T) {
	r := &fakeRunner{write: []byte("png-bytes")}
	inv := newTestInvoker(t, r)

	res := inv.CaptureFullScreen(context.Background())
	require.True(t, res.OK(), "result: %+v", res)
	assert.Equal(t, int64(len("png-bytes")), res.SizeBytes)
	assert.FileExists(t, res.Path)
	assert.True(t, IsCapture(res.Path))

	require.Len(t, r.calls, 1)
	assert.Equal(t, []string{"screencapture", "-x", "-t", "png", res.Path}, r.calls[0])
}

func TestCaptureModeFlags(t *testing.T) {
	tests := []struct {
		mode Mode
		flag string
	}{
		{ModeWindow, "-w"},
		{ModeArea, "-i"},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			r := &fakeRunner{write: []byte("x")}
			inv := newTestInvoker(t, r)
			res := inv.Capture(context.Background(), tt.mode)
			require.True(t, res.OK())
			call := r.calls[0]
			assert.Equal(t, tt.flag, call[len(call)-2])
			assert.Equal(t, res.Path, call[len(call)-1])
		})
	}
}

func TestCaptureInteractiveCancelCode(t *testing.T) {
	for _, mode := range []Mode{ModeWindow, ModeArea} {
		r := &fakeRunner{exitCode: 1}
		inv := newTestInvoker(t, r)
		res := inv.Capture(context.Background(), mode)
		assert.Equal(t, StatusCancelled, res.Status, mode.String())
		assert.True(t, errors.Is(res.Err, ErrCancelled))
		// no permission check on cancellation
		assert.Len(t, r.calls, 1)
	}
}

func TestCaptureFullScreenExitOneIsFailure(t *testing.T) {
	r := &fakeRunner{exitCode: 1, stderr: "could not create image from display"}
	inv := newTestInvoker(t, r)

	res := inv.CaptureFullScreen(context.Background())
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "could not create image from display", res.Reason)
	assert.True(t, errors.Is(res.Err, ErrCaptureFailed))
}

func TestCaptureFailureWithDeniedPermission(t *testing.T) {
	r := &fakeRunner{exitCode: 2, stderr: "not authorized", checkExit: 1}
	inv := newTestInvoker(t, r)

	res := inv.CaptureSelectedArea(context.Background())
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, errors.Is(res.Err, ErrPermissionDenied))
	assert.Len(t, r.calls, 2)
}

func TestCaptureEmptyFileFails(t *testing.T) {
	r := &fakeRunner{write: []byte{}}
	inv := newTestInvoker(t, r)

	res := inv.CaptureFullScreen(context.Background())
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, errors.Is(res.Err, ErrCaptureFailed))
}

func TestCaptureMissingFileFails(t *testing.T) {
	r := &fakeRunner{}
	inv := newTestInvoker(t, r)

	res := inv.CaptureActiveWindow(context.Background())
	assert.Equal(t, StatusFailed, res.Status)
}

func TestCaptureTimeout(t *testing.T) {
	r := &fakeRunner{err: fmt.Errorf("%w: screencapture", process.ErrTimeout)}
	inv := newTestInvoker(t, r)

	res := inv.CaptureSelectedArea(context.Background())
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "timeout", res.Reason)
	assert.True(t, errors.Is(res.Err, ErrTimeout))
}

func TestCaptureToolMissingUsesNativeForFullScreen(t *testing.T) {
	r := &fakeRunner{err: fmt.Errorf("%w: screencapture", process.ErrNotFound)}
	inv := newTestInvoker(t, r)
	inv.native = func(path string) error { return os.WriteFile(path, []byte("native"), 0o644) }

	res := inv.CaptureFullScreen(context.Background())
	require.True(t, res.OK(), "result: %+v", res)
	assert.Equal(t, int64(6), res.SizeBytes)

	res = inv.CaptureSelectedArea(context.Background())
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, errors.Is(res.Err, ErrToolUnavailable))
}

func TestNewPathIsMonotonic(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	inv := NewInvoker(Options{Dir: t.TempDir(), Now: func() time.Time { return fixed }})

	seen := map[string]bool{}
	var last int64
	for n := 0; n < 5; n++ {
		p, err := inv.NewPath()
		require.NoError(t, err)
		assert.False(t, seen[p])
		seen[p] = true
		ms, ok := CaptureMillis(p)
		require.True(t, ok)
		assert.Greater(t, ms, last)
		last = ms
	}
}

func TestHasPermission(t *testing.T) {
	r := &fakeRunner{checkExit: 0}
	inv := newTestInvoker(t, r)
	assert.True(t, inv.HasPermission(context.Background()))

	require.Len(t, r.calls, 1)
	checkPath := r.calls[0][len(r.calls[0])-1]
	assert.Contains(t, r.calls[0], "-R0,0,1,1")
	assert.NoFileExists(t, checkPath)

	r.checkExit = 1
	assert.False(t, inv.HasPermission(context.Background()))

	r.err = process.ErrNotFound
	assert.False(t, inv.HasPermission(context.Background()))
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"full": ModeFull, "Window": ModeWindow, "region": ModeArea, " area ": ModeArea} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("lasso")
	assert.Error(t, err)
}
