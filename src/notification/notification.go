// Package notification shows desktop notifications for pipeline notices.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"screen-ocr-clip/src/pipeline"
	"screen-ocr-clip/src/process"
)

const (
	appTitle    = "Screen OCR"
	maxBodyLen  = 200
	sendTimeout = 3 * time.Second
)

// Desktop sends notices through the platform notifier, falling back to the
// log when none is available.
type Desktop struct {
	runner process.Runner
	goos   string
	quiet  map[pipeline.NoticeKind]bool
}

func NewDesktop(runner process.Runner) *Desktop {
	if runner == nil {
		runner = process.NewRunner()
	}
	return &Desktop{
		runner: runner,
		goos:   runtime.GOOS,
		// A cancelled capture is the user's own doing.
		quiet: map[pipeline.NoticeKind]bool{pipeline.NoticeCancelled: true},
	}
}

// Notify does not block the caller.
func (d *Desktop) Notify(n pipeline.Notice) {
	slog.Info("notice", "kind", n.Kind.String(), "title", n.Title, "message", n.Message)
	if d.quiet[n.Kind] {
		return
	}
	name, args, ok := d.command(n)
	if !ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		res, err := d.runner.Run(ctx, name, args...)
		if err != nil {
			slog.Debug("notification not shown", "cmd", name, "err", err)
		} else if res.ExitCode != 0 {
			slog.Debug("notification command failed", "cmd", name, "exit", res.ExitCode)
		}
	}()
}

func (d *Desktop) command(n pipeline.Notice) (string, []string, bool) {
	title := n.Title
	if title == "" {
		title = appTitle
	}
	body := truncate(n.Message, maxBodyLen)

	switch d.goos {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", appleScriptString(body), appleScriptString(appTitle+": "+title))
		return "osascript", []string{"-e", script}, true
	case "linux", "freebsd", "openbsd":
		return "notify-send", []string{"--app-name", appTitle, title, body}, true
	default:
		return "", nil, false
	}
}

func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
