package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screen-ocr-clip/src/process"
)

type stubBackend struct {
	name  string
	out   Outcome
	calls int
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Attempt(context.Context, string) Outcome {
	s.calls++
	return s.out
}

type watcherState bool

func (w watcherState) Active() bool { return bool(w) }

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"   \n\t\n ", ""},
		{"Hello   World", "Hello World"},
		{"  Hello World  ", "Hello World"},
		{"a\t\tb", "a b"},
		{"line one\n\n\n\nline two", "line one\nline two"},
		{"  first  \r\n  second\r\n", "first\nsecond"},
		{"x  y", "x y"},
	}
	for _, tc := range tests {
		got := Normalize(tc.in)
		assert.Equal(t, tc.want, got, "Normalize(%q)", tc.in)
		assert.Equal(t, got, Normalize(got), "not idempotent for %q", tc.in)
	}
}

func TestChainStopsAtFirstDecisive(t *testing.T) {
	first := &stubBackend{name: "a", out: FallThrough()}
	second := &stubBackend{name: "b", out: Extracted("  Hello   World \n")}
	third := &stubBackend{name: "c", out: Extracted("never")}

	out := NewChain(first, second, third).Extract(context.Background(), "img.png")

	assert.Equal(t, KindExtracted, out.Kind)
	assert.Equal(t, "Hello World", out.Text)
	assert.Equal(t, "b", out.Backend)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 0, third.calls)
}

func TestChainWhitespaceOnlyFallsThrough(t *testing.T) {
	blank := &stubBackend{name: "blank", out: Extracted(" \n\t ")}
	next := &stubBackend{name: "next", out: Extracted("text")}

	out := NewChain(blank, next).Extract(context.Background(), "img.png")
	assert.Equal(t, "text", out.Text)
	assert.Equal(t, 1, next.calls)
}

func TestChainExhaustedIsNoText(t *testing.T) {
	out := NewChain(&stubBackend{name: "a"}, &stubBackend{name: "b"}).Extract(context.Background(), "img.png")
	assert.Equal(t, KindNoText, out.Kind)
	assert.ErrorIs(t, out.Err, ErrNoTextFound)

	text, ok := NewChain().ExtractText(context.Background(), "img.png")
	assert.False(t, ok)
	assert.Empty(t, text)
}

func TestChainFailureIsDecisive(t *testing.T) {
	failing := &stubBackend{name: "slow", out: Failed(ErrTimeout)}
	next := &stubBackend{name: "next", out: Extracted("text")}

	out := NewChain(failing, next).Extract(context.Background(), "img.png")
	assert.Equal(t, KindFailed, out.Kind)
	assert.ErrorIs(t, out.Err, ErrTimeout)
	assert.Equal(t, 0, next.calls)
}

func TestHandoffDefersWhenWatcherActive(t *testing.T) {
	local := &stubBackend{name: "local", out: Extracted("text")}

	out := NewChain(NewHandoffBackend(watcherState(true)), local).Extract(context.Background(), "img.png")
	assert.Equal(t, KindDeferred, out.Kind)
	assert.Equal(t, BackendHandoff, out.Backend)
	assert.Equal(t, 0, local.calls)

	out = NewChain(NewHandoffBackend(watcherState(false)), local).Extract(context.Background(), "img.png")
	assert.Equal(t, KindExtracted, out.Kind)
}

func TestClaimBackend(t *testing.T) {
	img := filepath.Join(t.TempDir(), "screenshot_1.png")
	require.NoError(t, os.WriteFile(img, []byte("png"), 0o644))

	first := ClaimBackend{}.Attempt(context.Background(), img)
	assert.Equal(t, KindNone, first.Kind)

	second := ClaimBackend{}.Attempt(context.Background(), img)
	assert.Equal(t, KindDeferred, second.Kind)
}

func TestWithout(t *testing.T) {
	c := NewChain(&stubBackend{name: BackendHandoff}, &stubBackend{name: BackendEngine}, &stubBackend{name: BackendBinary})
	assert.Equal(t, []string{BackendEngine, BackendBinary}, c.Without(BackendHandoff).Backends())
	assert.Len(t, c.Backends(), 3)
}

func TestBuildInsertsClaimAfterHandoff(t *testing.T) {
	c := Build(BuildOptions{
		Backends:     []string{"handoff", "engine", "script", "binary", "bogus"},
		Watcher:      watcherState(false),
		Binaries:     []string{"tesseract"},
		HelperScript: "",
		Runner:       &fakeRunner{},
	})
	assert.Equal(t, []string{BackendHandoff, BackendClaim, BackendEngine, BackendBinary}, c.Backends())

	c = Build(BuildOptions{Backends: []string{"binary"}, Binaries: []string{"tesseract"}, Runner: &fakeRunner{}})
	assert.Equal(t, []string{BackendBinary}, c.Backends())
}

type engineFunc func(string) (string, error)

func (f engineFunc) Recognize(p string) (string, error) { return f(p) }

func TestEngineBackend(t *testing.T) {
	b := &EngineBackend{engine: engineFunc(func(string) (string, error) { return "Hello", nil })}
	assert.Equal(t, Extracted("Hello"), b.Attempt(context.Background(), "img.png"))

	b.engine = engineFunc(func(string) (string, error) { return "", ErrBackendUnavailable })
	assert.Equal(t, KindNone, b.Attempt(context.Background(), "img.png").Kind)

	b.engine = engineFunc(func(string) (string, error) { panic("boom") })
	assert.Equal(t, KindNone, b.Attempt(context.Background(), "img.png").Kind)
}

func TestEngineBackendTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	b := &EngineBackend{
		timeout: 20 * time.Millisecond,
		engine: engineFunc(func(string) (string, error) {
			<-release
			return "late", nil
		}),
	}
	out := b.Attempt(context.Background(), "img.png")
	assert.Equal(t, KindFailed, out.Kind)
	assert.ErrorIs(t, out.Err, ErrTimeout)
}

type fakeRunner struct {
	res   process.Result
	err   error
	names []string
	args  [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (process.Result, error) {
	f.names = append(f.names, name)
	f.args = append(f.args, args)
	return f.res, f.err
}

func TestTesseractBackend(t *testing.T) {
	r := &fakeRunner{res: process.Result{Stdout: []byte("Hello World\n")}}
	b := NewTesseractBackend([]string{"/definitely/missing/tesseract", "tesseract"}, "eng", r, time.Second)

	out := b.Attempt(context.Background(), "/tmp/img.png")
	assert.Equal(t, KindExtracted, out.Kind)
	assert.Equal(t, "Hello World\n", out.Text)
	require.Len(t, r.names, 1)
	assert.Equal(t, "tesseract", r.names[0])
	assert.Equal(t, []string{"/tmp/img.png", "stdout", "-l", "eng"}, r.args[0])
}

func TestCommandBackendFallThrough(t *testing.T) {
	tests := []struct {
		name string
		r    *fakeRunner
		want Kind
	}{
		{"not found", &fakeRunner{err: process.ErrNotFound}, KindNone},
		{"start error", &fakeRunner{err: errors.New("exec format error")}, KindNone},
		{"non-zero exit", &fakeRunner{res: process.Result{ExitCode: 1}}, KindNone},
		{"script error line", &fakeRunner{res: process.Result{Stdout: []byte("ERROR: no text\n")}}, KindNone},
		{"timeout", &fakeRunner{err: process.ErrTimeout}, KindFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := NewScriptBackend("/opt/ocr_helper.py", tc.r, time.Second)
			assert.Equal(t, tc.want, b.Attempt(context.Background(), "img.png").Kind)
		})
	}
}

func TestCommandBackendNoCandidates(t *testing.T) {
	r := &fakeRunner{}
	b := NewTesseractBackend([]string{"/definitely/missing/tesseract"}, "", r, time.Second)
	assert.Equal(t, KindNone, b.Attempt(context.Background(), "img.png").Kind)
	assert.Empty(t, r.names)
}
