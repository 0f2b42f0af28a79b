// Package pipeline drives capture, text extraction and clipboard delivery as
// one run, and owns the visible status of that run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"screen-ocr-clip/src/logutil"
	"screen-ocr-clip/src/ocr"
	"screen-ocr-clip/src/screenshot"
)

// ErrBusy is returned when a run is already in flight.
var ErrBusy = errors.New("capture already in progress")

// Capturer produces an image file for a mode.
type Capturer interface {
	Capture(ctx context.Context, mode screenshot.Mode) screenshot.Result
}

// Extractor turns an image into an outcome.
type Extractor interface {
	Extract(ctx context.Context, imagePath string) ocr.Outcome
}

// WatcherReleaser tears down an external watcher on quit.
type WatcherReleaser interface {
	ReleaseWatcher(ctx context.Context)
}

// Janitor trims the scratch directory to the newest keep captures.
type Janitor func(keep int) (int, error)

type Options struct {
	Capturer  Capturer
	Extractor Extractor
	Target    Target // default delivery for Run
	Notifier  Notifier
	Watcher   WatcherReleaser
	Cleanup   Janitor
	Keep      int
}

// Report describes how a run ended.
type Report struct {
	Kind      NoticeKind
	Text      string
	ImagePath string
	Err       error
}

// Coordinator runs at most one pipeline at a time.
type Coordinator struct {
	opts Options
	busy atomic.Bool

	mu     sync.Mutex
	status Status
	subs   map[int]func(Status)
	nextID int
}

func New(opts Options) *Coordinator {
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	return &Coordinator{opts: opts, subs: make(map[int]func(Status))}
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Busy reports whether a run is in flight.
func (c *Coordinator) Busy() bool { return c.busy.Load() }

// Subscribe calls fn with the current status and then on every transition.
// fn runs on the pipeline goroutine and must not block.
func (c *Coordinator) Subscribe(fn func(Status)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	current := c.status
	c.mu.Unlock()

	fn(current)
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Coordinator) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	subs := make([]func(Status), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	slog.Debug("pipeline status", "state", s.State.String())
	for _, fn := range subs {
		fn(s)
	}
}

// Run captures with mode and delivers to the default target.
func (c *Coordinator) Run(ctx context.Context, mode screenshot.Mode) Report {
	return c.RunTo(ctx, mode, c.opts.Target)
}

// RunTo is Run with an explicit target. A concurrent call returns ErrBusy
// without touching the status.
func (c *Coordinator) RunTo(ctx context.Context, mode screenshot.Mode, target Target) (report Report) {
	if !c.busy.CompareAndSwap(false, true) {
		return Report{Kind: NoticeFailed, Err: ErrBusy}
	}
	defer c.busy.Store(false)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("pipeline panic: %v", r)
			slog.Error("pipeline panicked", "mode", mode.String(), "panic", r)
			report = Report{Kind: NoticeFailed, ImagePath: report.ImagePath, Err: err}
			c.finish(report, target)
		}
	}()

	report = c.run(ctx, mode, target)
	c.finish(report, target)
	return report
}

func (c *Coordinator) run(ctx context.Context, mode screenshot.Mode, target Target) Report {
	if c.opts.Capturer == nil || c.opts.Extractor == nil {
		return Report{Kind: NoticeFailed, Err: errors.New("pipeline not configured")}
	}

	c.setStatus(Status{State: StateCapturing})
	capture := c.opts.Capturer.Capture(ctx, mode)
	switch capture.Status {
	case screenshot.StatusCancelled:
		slog.Info("capture cancelled", "mode", mode.String())
		return Report{Kind: NoticeCancelled, Err: capture.Err}
	case screenshot.StatusFailed:
		slog.Warn("capture failed", "mode", mode.String(), "reason", capture.Reason, "err", capture.Err)
		return Report{Kind: NoticeFailed, Err: captureError(capture)}
	}

	slog.Info("capture complete", "mode", mode.String(), "path", capture.Path, "size", capture.SizeBytes)
	c.setStatus(Status{State: StateProcessing})

	out := c.opts.Extractor.Extract(ctx, capture.Path)
	switch out.Kind {
	case ocr.KindExtracted:
		if target == nil {
			return Report{Kind: NoticeFailed, ImagePath: capture.Path, Err: errors.New("no delivery target")}
		}
		if err := target.OnSuccess(out.Text); err != nil {
			slog.Warn("delivery failed", "err", err)
			return Report{Kind: NoticeFailed, ImagePath: capture.Path, Err: err}
		}
		slog.Info("text delivered", "backend", out.Backend, "chars", utf8.RuneCountInString(out.Text),
			"preview", logutil.SanitizeForLogging(out.Text))
		return Report{Kind: NoticeCopied, Text: out.Text, ImagePath: capture.Path}
	case ocr.KindDeferred:
		slog.Info("extraction deferred", "backend", out.Backend, "reason", out.Reason)
		return Report{Kind: NoticeDeferred, ImagePath: capture.Path, Err: ErrDeferred}
	case ocr.KindFailed:
		return Report{Kind: NoticeFailed, ImagePath: capture.Path, Err: out.Err}
	default:
		return Report{Kind: NoticeNoText, ImagePath: capture.Path, Err: ocr.ErrNoTextFound}
	}
}

// finish shows the notice, walks the status back to Ready and trims the
// scratch directory.
func (c *Coordinator) finish(r Report, target Target) {
	switch r.Kind {
	case NoticeCopied:
		chars := utf8.RuneCountInString(r.Text)
		c.setStatus(Status{State: StateSucceeded, CharCount: chars})
		c.opts.Notifier.Notify(Notice{Kind: r.Kind, Title: "Text copied", Message: fmt.Sprintf("Copied %d characters", chars)})
	case NoticeNoText, NoticeFailed:
		if target != nil {
			_ = target.OnFailure(r.Err)
		}
		title := "Capture failed"
		if c.Status().State == StateProcessing {
			c.setStatus(Status{State: StateFailed, Reason: reason(r.Err)})
			title = "Text recognition failed"
		}
		if r.Kind == NoticeNoText {
			title = "No text found"
		}
		c.opts.Notifier.Notify(Notice{Kind: r.Kind, Title: title, Message: reason(r.Err)})
	case NoticeDeferred:
		if target != nil {
			_ = target.OnFailure(ErrDeferred)
		}
		c.opts.Notifier.Notify(Notice{Kind: r.Kind, Title: "Handed off", Message: "The OCR watcher will copy the text"})
	case NoticeCancelled:
		if target != nil {
			_ = target.OnFailure(screenshot.ErrCancelled)
		}
		c.opts.Notifier.Notify(Notice{Kind: r.Kind, Title: "Capture cancelled"})
	}

	if c.Status().State != StateReady {
		c.setStatus(Status{State: StateReady})
	}

	if c.opts.Cleanup != nil && c.opts.Keep > 0 {
		if n, err := c.opts.Cleanup(c.opts.Keep); err != nil {
			slog.Debug("capture cleanup failed", "err", err)
		} else if n > 0 {
			slog.Debug("old captures removed", "count", n)
		}
	}
}

// Shutdown releases the external watcher. It never blocks exit for long; the
// watcher release is bounded on its own.
func (c *Coordinator) Shutdown(ctx context.Context) {
	if c.opts.Watcher != nil {
		c.opts.Watcher.ReleaseWatcher(ctx)
	}
}

func captureError(r screenshot.Result) error {
	if r.Err == nil {
		return fmt.Errorf("%w: %s", screenshot.ErrCaptureFailed, r.Reason)
	}
	if r.Reason != "" && r.Reason != r.Err.Error() {
		return fmt.Errorf("%w: %s", r.Err, r.Reason)
	}
	return r.Err
}

func reason(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
