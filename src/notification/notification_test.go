package notification

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screen-ocr-clip/src/pipeline"
	"screen-ocr-clip/src/process"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (process.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	return process.Result{}, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestDarwinCommandEscapesQuotes(t *testing.T) {
	d := &Desktop{goos: "darwin"}
	name, args, ok := d.command(pipeline.Notice{Title: "Text copied", Message: `say "hi"`})
	require.True(t, ok)
	assert.Equal(t, "osascript", name)
	assert.Equal(t, `display notification "say \"hi\"" with title "Screen OCR: Text copied"`, args[1])
}

func TestLinuxCommand(t *testing.T) {
	d := &Desktop{goos: "linux"}
	name, args, ok := d.command(pipeline.Notice{Title: "No text found", Message: strings.Repeat("x", 300)})
	require.True(t, ok)
	assert.Equal(t, "notify-send", name)
	assert.Equal(t, "No text found", args[2])
	assert.Len(t, args[3], maxBodyLen+3)

	_, _, ok = (&Desktop{goos: "plan9"}).command(pipeline.Notice{})
	assert.False(t, ok)
}

func TestNotifySkipsCancelled(t *testing.T) {
	r := &fakeRunner{}
	d := NewDesktop(r)
	d.goos = "linux"

	d.Notify(pipeline.Notice{Kind: pipeline.NoticeCancelled, Title: "Capture cancelled"})
	d.Notify(pipeline.Notice{Kind: pipeline.NoticeCopied, Title: "Text copied", Message: "Copied 3 characters"})

	assert.Eventually(t, func() bool { return r.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "notify-send", r.calls[0][0])
}
