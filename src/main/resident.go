package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"screen-ocr-clip/src/eventloop"
	"screen-ocr-clip/src/hotkey"
	"screen-ocr-clip/src/pipeline"
	"screen-ocr-clip/src/runtimeinit"
	"screen-ocr-clip/src/screenshot"
	"screen-ocr-clip/src/singleinstance"
	"screen-ocr-clip/src/tray"
)

var errAlreadyRunning = errors.New("another instance is already running")

const shutdownBound = 5 * time.Second

// runTray blocks running the tray; replaced in tests.
var runTray = tray.Run

// quitSequence stops the resident exactly once. The watcher is released
// while the tray is still up, then the context is cancelled and the tray
// is asked to quit.
type quitSequence struct {
	release  func(ctx context.Context)
	cancel   context.CancelFunc
	quitTray func()

	once sync.Once
}

func (q *quitSequence) quit() {
	q.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownBound)
		q.release(ctx)
		cancel()
		q.cancel()
		q.quitTray()
	})
}

// runResident is the long-lived tray instance: hotkey and tray triggers, the
// delegation server and the watcher teardown on quit.
func runResident(parent context.Context, opts *mainOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	detectCtx, cancelDetect := context.WithTimeout(parent, 2*time.Second)
	port, running := singleinstance.DetectResidentPort(detectCtx)
	cancelDetect()
	if running {
		return fmt.Errorf("%w (port %d)", errAlreadyRunning, port)
	}

	app, err := bootstrap(opts, runtimeinit.Options{})
	if err != nil {
		return err
	}
	defer app.Close()
	ports := singleinstance.Ports()
	slog.Debug("resident port range", "start", ports.Start, "end", ports.End)

	if !app.Invoker.HasPermission(parent) {
		slog.Warn("screen capture permission missing; captures will fail until it is granted")
	}

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var (
		mu   sync.Mutex
		icon *tray.Tray
	)
	withTray := func(fn func(*tray.Tray)) {
		mu.Lock()
		defer mu.Unlock()
		if icon != nil {
			fn(icon)
		}
	}

	reader, _ := app.Clipboard.(eventloop.ClipboardReader)
	loop := eventloop.New(eventloop.Options{
		Coordinator: app.Coordinator,
		History:     app.History,
		Clipboard:   reader,
		Server:      singleinstance.NewServer(),
		OnListen: func(port int) {
			withTray(func(t *tray.Tray) { t.SetAboutExtra(fmt.Sprintf("Port: %d", port)) })
		},
	})

	unsubscribe := app.Coordinator.Subscribe(func(s pipeline.Status) {
		withTray(func(t *tray.Tray) {
			t.SetStatus(s)
			t.SetHasHistory(app.History.Len() > 0)
		})
	})
	defer unsubscribe()

	go func() {
		if err := hotkey.Listen(ctx, app.Config.Hotkey, func() {
			loop.Trigger(screenshot.ModeArea, "hotkey")
		}); err != nil {
			slog.Error("hotkey unavailable", "hotkey", app.Config.Hotkey, "err", err)
		}
	}()

	loopDone := make(chan error, 1)
	go func() {
		err := loop.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("event loop stopped", "err", err)
			cancel()
		}
		loopDone <- err
	}()

	q := &quitSequence{
		release:  app.Coordinator.Shutdown,
		cancel:   cancel,
		quitTray: tray.Quit,
	}
	go func() {
		<-ctx.Done()
		q.quit()
	}()

	slog.Info("resident instance started", "hotkey", app.Config.Hotkey, "scratch", app.Config.ScratchDir)
	runTray(tray.Actions{
		Capture: func(mode screenshot.Mode) { loop.Trigger(mode, "tray") },
		CopyLast: func() {
			if err := loop.CopyLast(); err != nil {
				slog.Warn("copy last failed", "err", err)
			}
		},
		Quit: q.quit,
	}, func(t *tray.Tray) {
		mu.Lock()
		icon = t
		mu.Unlock()
		t.SetStatus(app.Coordinator.Status())
		t.SetHasHistory(app.History.Len() > 0)
	}, cancel)

	// The tray can exit on its own; make sure the watcher is still released.
	q.quit()
	loopCtx, cancelLoop := context.WithTimeout(context.Background(), shutdownBound)
	defer cancelLoop()

	select {
	case err := <-loopDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	case <-loopCtx.Done():
		slog.Warn("event loop did not stop in time")
	}
	slog.Info("resident instance stopped")
	return nil
}
