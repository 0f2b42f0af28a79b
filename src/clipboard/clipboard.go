// Package clipboard wraps the system clipboard. Writes are plain text and
// replace the whole clipboard content.
package clipboard

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.design/x/clipboard"
)

var (
	ErrUnavailable = errors.New("clipboard unavailable")
	ErrWriteFailed = errors.New("clipboard write failed")
)

// Content is what the clipboard currently holds.
type Content struct {
	Text  string
	Image []byte
}

// System is the process-wide clipboard. Calls are serialized.
type System struct {
	mu      sync.Mutex
	initErr error
	verify  bool
}

var (
	initOnce sync.Once
	initErr  error
)

// New initializes the platform clipboard. When the display environment is
// missing the returned System reports ErrUnavailable on every call instead of
// failing here, so CLI sub-commands that never touch the clipboard still run.
func New() *System {
	initOnce.Do(func() {
		initErr = clipboard.Init()
		if initErr != nil {
			slog.Warn("clipboard unavailable", "err", initErr)
		}
	})
	return &System{initErr: initErr, verify: true}
}

func (s *System) Available() bool { return s.initErr == nil }

// WriteText replaces the clipboard with text and reads it back to confirm.
func (s *System) WriteText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initErr != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, s.initErr)
	}
	clipboard.Write(clipboard.FmtText, []byte(text))
	if s.verify && string(clipboard.Read(clipboard.FmtText)) != text {
		return ErrWriteFailed
	}
	return nil
}

// Read returns the current clipboard content.
func (s *System) Read() (Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initErr != nil {
		return Content{}, fmt.Errorf("%w: %v", ErrUnavailable, s.initErr)
	}
	return Content{
		Text:  string(clipboard.Read(clipboard.FmtText)),
		Image: clipboard.Read(clipboard.FmtImage),
	}, nil
}
