// Package tray is the menu bar / system tray surface of the resident instance.
package tray

import (
	"log/slog"
	"sync"

	"github.com/getlantern/systray"

	"screen-ocr-clip/src/pipeline"
	"screen-ocr-clip/src/screenshot"
)

const defaultTooltip = "Screen OCR"

// Actions are invoked from the tray's click goroutine; they should post work
// elsewhere and return.
type Actions struct {
	Capture  func(mode screenshot.Mode)
	CopyLast func()
	Quit     func()
}

// Tray owns the menu items once systray is ready.
type Tray struct {
	mu       sync.Mutex
	captures []*systray.MenuItem
	about    *systray.MenuItem
	copyLast *systray.MenuItem
}

// Run blocks on the platform UI loop until Quit. onReady receives the tray
// after the menu is built.
func Run(actions Actions, onReady func(*Tray), onExit func()) {
	systray.Run(func() {
		t := build(actions)
		if onReady != nil {
			onReady(t)
		}
	}, func() {
		if onExit != nil {
			onExit()
		}
	})
}

// Quit ends the UI loop started by Run.
func Quit() { systray.Quit() }

func build(actions Actions) *Tray {
	if icon := iconBytes(); icon != nil {
		systray.SetIcon(icon)
	} else {
		systray.SetTitle("OCR")
	}
	systray.SetTooltip(defaultTooltip)

	t := &Tray{}
	modes := []struct {
		mode  screenshot.Mode
		title string
	}{
		{screenshot.ModeArea, "Capture Area"},
		{screenshot.ModeWindow, "Capture Window"},
		{screenshot.ModeFull, "Capture Full Screen"},
	}
	for _, m := range modes {
		item := systray.AddMenuItem(m.title, "Recognize text and copy it")
		t.captures = append(t.captures, item)
		go clicks(item, func() {
			if actions.Capture != nil {
				actions.Capture(m.mode)
			}
		})
	}

	systray.AddSeparator()
	t.copyLast = systray.AddMenuItem("Copy Last Text", "Copy the newest history entry again")
	go clicks(t.copyLast, func() {
		if actions.CopyLast != nil {
			actions.CopyLast()
		}
	})

	t.about = systray.AddMenuItem(defaultTooltip, "")
	t.about.Disable()

	systray.AddSeparator()
	quit := systray.AddMenuItem("Quit", "Stop the resident instance")
	go clicks(quit, func() {
		if actions.Quit != nil {
			actions.Quit()
		}
	})
	return t
}

func clicks(item *systray.MenuItem, fn func()) {
	for range item.ClickedCh {
		fn()
	}
}

// SetStatus mirrors a pipeline status: tooltip text, and capture items
// disabled while a run is in flight.
func (t *Tray) SetStatus(s pipeline.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tooltip := defaultTooltip
	if s.State != pipeline.StateReady {
		tooltip = defaultTooltip + ": " + s.Label()
	}
	systray.SetTooltip(tooltip)

	for _, item := range t.captures {
		if s.State == pipeline.StateReady {
			item.Enable()
		} else {
			item.Disable()
		}
	}
	slog.Debug("tray status", "state", s.State.String())
}

// SetAboutExtra shows a line of resident info in the disabled about item.
func (t *Tray) SetAboutExtra(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.about != nil {
		t.about.SetTitle(defaultTooltip + " (" + text + ")")
	}
}

// SetHasHistory enables "Copy Last Text" only when there is something to copy.
func (t *Tray) SetHasHistory(ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.copyLast == nil {
		return
	}
	if ok {
		t.copyLast.Enable()
	} else {
		t.copyLast.Disable()
	}
}
