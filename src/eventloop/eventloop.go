// Package eventloop funnels hotkey, tray and IPC triggers into the pipeline,
// one run at a time.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"screen-ocr-clip/src/clipboard"
	"screen-ocr-clip/src/history"
	"screen-ocr-clip/src/pipeline"
	"screen-ocr-clip/src/screenshot"
	"screen-ocr-clip/src/singleinstance"
	"screen-ocr-clip/src/worker"
)

// Loop is the single-threaded dispatcher for resident-mode triggers.
type Loop struct {
	coord   *pipeline.Coordinator
	history *history.History
	pool    *worker.Pool
	srv     singleinstance.Server
	target  pipeline.Target

	clip     ClipboardReader
	triggers chan request
	onListen func(port int)
}

// ClipboardReader lets CopyLast skip a write when the clipboard already holds
// the text.
type ClipboardReader interface {
	Read() (clipboard.Content, error)
}

type request struct {
	mode   screenshot.Mode
	target pipeline.Target
	conn   singleinstance.Conn
	source string
}

type Options struct {
	Coordinator *pipeline.Coordinator
	History     *history.History
	// Server is optional; without one only local triggers are served.
	Server    singleinstance.Server
	OnListen  func(port int)
	Clipboard ClipboardReader
}

func New(opts Options) *Loop {
	return &Loop{
		coord:    opts.Coordinator,
		history:  opts.History,
		pool:     worker.New(1),
		srv:      opts.Server,
		target:   pipeline.ClipboardTarget{History: opts.History},
		triggers: make(chan request, 4),
		onListen: opts.OnListen,
		clip:     opts.Clipboard,
	}
}

// Trigger posts a capture from a local surface (hotkey, tray). It never
// blocks; a trigger arriving while the queue is full is dropped.
func (l *Loop) Trigger(mode screenshot.Mode, source string) {
	select {
	case l.triggers <- request{mode: mode, target: l.target, source: source}:
	default:
		slog.Info("trigger dropped, loop busy", "source", source, "mode", mode.String())
	}
}

// CopyLast re-copies the newest history entry without re-recording it. The
// history is reloaded first so entries recorded by a watcher count.
func (l *Loop) CopyLast() error {
	if err := l.history.Load(context.Background()); err != nil {
		slog.Warn("history reload failed", "err", err)
	}
	latest, ok := l.history.Latest()
	if !ok {
		return errors.New("history is empty")
	}
	if l.clip != nil {
		if current, err := l.clip.Read(); err == nil && current.Text == latest.Content {
			slog.Debug("clipboard already holds the latest entry")
			return nil
		}
	}
	return l.history.CopyText(latest.Content, false)
}

// Run processes triggers until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.pool.Close()

	var connCh chan singleinstance.Conn
	if l.srv != nil {
		if err := l.srv.Start(ctx); err != nil {
			return fmt.Errorf("starting resident endpoint: %w", err)
		}
		defer l.srv.Close()
		if p := l.srv.Port(); p > 0 {
			slog.Info("resident listening", "addr", fmt.Sprintf("127.0.0.1:%d", p))
			if l.onListen != nil {
				l.onListen(p)
			}
		}

		// Accept loop in background to avoid blocking trigger handling
		connCh = make(chan singleinstance.Conn, 4)
		go l.acceptLoop(ctx, connCh)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-l.triggers:
			l.start(ctx, req)
		case conn, ok := <-connCh:
			if !ok {
				connCh = nil
				continue
			}
			l.handleConn(ctx, conn)
		}
	}
}

// acceptLoop forwards connections until ctx ends. A connection that cannot
// be handed over once the loop has stopped is closed.
func (l *Loop) acceptLoop(ctx context.Context, connCh chan<- singleinstance.Conn) {
	defer close(connCh)
	for {
		conn, err := l.srv.Next(ctx)
		if err != nil {
			return
		}
		select {
		case connCh <- conn:
		case <-ctx.Done():
			_ = conn.Close()
			return
		}
	}
}

func (l *Loop) handleConn(ctx context.Context, conn singleinstance.Conn) {
	mode, err := screenshot.ParseMode(conn.Request().Mode)
	if err != nil {
		_ = conn.RespondError(err.Error())
		_ = conn.Close()
		return
	}
	l.start(ctx, request{
		mode:   mode,
		target: pipeline.DelegatedTarget{Conn: conn, History: l.history},
		conn:   conn,
		source: "ipc",
	})
}

func (l *Loop) start(ctx context.Context, req request) {
	if l.coord.Busy() {
		l.rejectBusy(req)
		if req.conn != nil {
			_ = req.conn.Close()
		}
		return
	}

	submitted := l.pool.Submit(ctx, "capture-"+req.mode.String(), func(ctx context.Context) {
		if req.conn != nil {
			defer req.conn.Close()
		}
		report := l.coord.RunTo(ctx, req.mode, req.target)
		if errors.Is(report.Err, pipeline.ErrBusy) {
			l.rejectBusy(request{conn: req.conn, source: req.source, mode: req.mode})
			return
		}
		slog.Info("capture finished", "source", req.source, "mode", req.mode.String(), "result", report.Kind.String())
	})
	if !submitted {
		l.rejectBusy(req)
		if req.conn != nil {
			_ = req.conn.Close()
		}
	}
}

func (l *Loop) rejectBusy(req request) {
	slog.Info("capture rejected, busy", "source", req.source, "mode", req.mode.String())
	if req.conn != nil {
		_ = req.conn.RespondError("Busy, please retry")
	}
}
