// Package hotkey registers the global capture shortcut.
package hotkey

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	hook "github.com/robotn/gohook"
)

var (
	// gohook has a single process-wide event loop.
	hookMu      sync.Mutex
	hookRunning bool
)

// Listen registers combo (e.g. "Ctrl+Shift+O") and calls callback on every
// press until ctx is done. The callback runs on the hook goroutine and should
// only post work elsewhere.
func Listen(ctx context.Context, combo string, callback func()) error {
	keys, err := parseHotkey(combo)
	if err != nil {
		return err
	}

	hookMu.Lock()
	defer hookMu.Unlock()
	if hookRunning {
		return fmt.Errorf("hotkey listener already running")
	}

	hook.Register(hook.KeyDown, keys, func(hook.Event) {
		slog.Debug("hotkey pressed", "combo", combo)
		if callback != nil {
			callback()
		}
	})
	hookRunning = true
	slog.Info("hotkey registered", "combo", combo, "keys", keys)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("hotkey loop panicked", "panic", r)
			}
		}()
		evChan := hook.Start()
		done := hook.Process(evChan)
		select {
		case <-ctx.Done():
			hook.End()
		case <-done:
		}
		hookMu.Lock()
		hookRunning = false
		hookMu.Unlock()
		slog.Debug("hotkey loop stopped")
	}()
	return nil
}

// parseHotkey converts a hotkey string like "Ctrl+Alt+q" to the key names
// gohook expects.
func parseHotkey(combo string) ([]string, error) {
	if strings.TrimSpace(combo) == "" {
		return nil, fmt.Errorf("empty hotkey")
	}
	var keys []string
	hasKey := false
	for _, part := range strings.Split(strings.ToLower(combo), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "ctrl", "control":
			keys = append(keys, "ctrl")
		case "alt", "option", "opt":
			keys = append(keys, "alt")
		case "shift":
			keys = append(keys, "shift")
		case "win", "cmd", "command", "super", "meta":
			keys = append(keys, "cmd")
		default:
			name, ok := keyName(part)
			if !ok {
				return nil, fmt.Errorf("unknown key %q in hotkey %q", part, combo)
			}
			keys = append(keys, name)
			hasKey = true
		}
	}
	if !hasKey {
		return nil, fmt.Errorf("hotkey %q has no non-modifier key", combo)
	}
	return keys, nil
}

func keyName(part string) (string, bool) {
	switch {
	case len(part) == 1 && (part[0] >= 'a' && part[0] <= 'z' || part[0] >= '0' && part[0] <= '9'):
		return part, true
	case len(part) >= 2 && len(part) <= 3 && part[0] == 'f':
		var n int
		if _, err := fmt.Sscanf(part[1:], "%d", &n); err == nil && n >= 1 && n <= 24 && fmt.Sprint(n) == part[1:] {
			return part, true
		}
		return "", false
	}
	switch part {
	case "space", "tab", "backspace", "delete", "insert", "home", "end", "pageup", "pagedown",
		"up", "down", "left", "right":
		return part, true
	case "enter", "return":
		return "enter", true
	case "esc", "escape":
		return "esc", true
	case "del":
		return "delete", true
	case "pgup":
		return "pageup", true
	case "pgdn":
		return "pagedown", true
	}
	return "", false
}
