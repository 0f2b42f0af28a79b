// Package watcher is the independently running OCR service: it owns the
// watcher flag, watches the scratch directory for new captures and copies
// their text to the clipboard itself.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"screen-ocr-clip/src/handshake"
	"screen-ocr-clip/src/logutil"
	"screen-ocr-clip/src/ocr"
	"screen-ocr-clip/src/screenshot"
)

const defaultSettle = 400 * time.Millisecond

// Extractor turns an image into an outcome; local backends only.
type Extractor interface {
	Extract(ctx context.Context, imagePath string) ocr.Outcome
}

// Copier delivers extracted text.
type Copier interface {
	CopyText(text string, record bool) error
}

type Options struct {
	Dir       string
	Flag      *handshake.Flag
	Extractor Extractor
	Copier    Copier
	// Settle is how long a capture must stay unchanged before it is read.
	Settle time.Duration
	// OnProcessed is called after each capture; used by tests and logging.
	OnProcessed func(path string, out ocr.Outcome)
}

type Service struct {
	opts Options

	mu      sync.Mutex
	pending map[string]*time.Timer
	ready   chan string
}

func New(opts Options) *Service {
	if opts.Settle <= 0 {
		opts.Settle = defaultSettle
	}
	return &Service{
		opts:    opts,
		pending: make(map[string]*time.Timer),
		ready:   make(chan string, 16),
	}
}

// Run holds the flag and processes new captures until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if s.opts.Flag == nil || s.opts.Extractor == nil || s.opts.Copier == nil {
		return fmt.Errorf("watcher not configured")
	}
	if err := os.MkdirAll(s.opts.Dir, 0o755); err != nil {
		return fmt.Errorf("creating scratch directory: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsWatcher.Close()
	if err := fsWatcher.Add(s.opts.Dir); err != nil {
		return fmt.Errorf("failed to add directory %s to watcher: %w", s.opts.Dir, err)
	}

	if err := s.opts.Flag.Acquire(); err != nil {
		return err
	}
	defer s.opts.Flag.Drop()
	defer s.stopTimers()

	slog.Info("watcher started", "dir", s.opts.Dir, "flag", s.opts.Flag.Path())
	for {
		select {
		case <-ctx.Done():
			slog.Info("watcher stopping")
			return nil
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
				if screenshot.IsCapture(event.Name) {
					s.schedule(event.Name)
				}
			}
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("fsnotify watcher error", "err", err)
		case path := <-s.ready:
			s.process(ctx, path)
		}
	}
}

// schedule (re)arms the settle timer for path.
func (s *Service) schedule(path string) {
	if handshake.Claimed(path) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pending[path]; ok {
		t.Reset(s.opts.Settle)
		return
	}
	s.pending[path] = time.AfterFunc(s.opts.Settle, func() {
		s.mu.Lock()
		delete(s.pending, path)
		s.mu.Unlock()
		select {
		case s.ready <- path:
		default:
			slog.Warn("watcher queue full, dropped capture", "path", path)
		}
	})
}

func (s *Service) stopTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, t := range s.pending {
		t.Stop()
		delete(s.pending, path)
	}
}

func (s *Service) process(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		// Still being written or already gone; a later write re-arms it.
		return
	}

	ok, err := handshake.Claim(path)
	if err != nil {
		slog.Warn("claim marker failed", "path", path, "err", err)
	} else if !ok {
		slog.Debug("capture already claimed", "path", filepath.Base(path))
		return
	}

	out := s.opts.Extractor.Extract(ctx, path)
	switch out.Kind {
	case ocr.KindExtracted:
		if err := s.opts.Copier.CopyText(out.Text, true); err != nil {
			slog.Warn("watcher copy failed", "path", path, "err", err)
			out = ocr.Failed(err)
		} else {
			slog.Info("watcher copied text", "path", filepath.Base(path), "backend", out.Backend,
				"preview", logutil.SanitizeForLogging(out.Text))
		}
	case ocr.KindFailed:
		slog.Warn("watcher extraction failed", "path", path, "err", out.Err)
	default:
		slog.Info("watcher found no text", "path", filepath.Base(path), "outcome", out.Kind.String())
	}

	if s.opts.OnProcessed != nil {
		s.opts.OnProcessed(path, out)
	}
}
