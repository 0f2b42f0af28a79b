// Package handshake implements the flag-file protocol shared with an
// independently running OCR watcher.
//
// The flag's existence means "a watcher owns OCR for the scratch directory".
// Watchers started by this project create it atomically (O_EXCL) and write
// their PID into it, so a flag left behind by a crashed watcher can be told
// apart from a live one. Flags written by foreign watchers may be empty; those
// count as active for as long as they exist.
//
// The protocol is advisory: the flag can appear or vanish between a check and
// the watcher's own directory scan. Claim closes the resulting window for
// cooperating processes by letting exactly one of them own a given image.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"screen-ocr-clip/src/process"
)

// ErrHeld is returned by Acquire when a live watcher already owns the flag.
var ErrHeld = errors.New("watcher flag held by another process")

// ClaimSuffix is appended to an image path to form its claim marker.
const ClaimSuffix = ".claim"

const releaseBound = 3 * time.Second

// Flag is the watcher flag at a fixed path.
type Flag struct {
	path  string
	match string // process name/cmdline fragment identifying watcher processes
}

func New(path, match string) *Flag {
	return &Flag{path: path, match: match}
}

func (f *Flag) Path() string { return f.path }

// Active reports whether the flag exists. A flag naming a dead PID is stale
// and reported inactive.
func (f *Flag) Active() bool {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return !os.IsNotExist(err) && exists(f.path)
	}
	if pid, ok := parsePID(data); ok {
		return process.Alive(pid)
	}
	return true
}

// Owner returns the PID written in the flag, if any.
func (f *Flag) Owner() (int, bool) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return 0, false
	}
	return parsePID(data)
}

// Acquire creates the flag for the calling process. A stale flag (dead owner)
// is replaced; a live one yields ErrHeld.
func (f *Flag) Acquire() error {
	for attempt := 0; attempt < 2; attempt++ {
		file, err := os.OpenFile(f.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := file.WriteString(strconv.Itoa(os.Getpid()) + "\n")
			cerr := file.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(f.path)
				return fmt.Errorf("writing watcher flag: %w", errors.Join(werr, cerr))
			}
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("creating watcher flag: %w", err)
		}
		if f.Active() {
			return ErrHeld
		}
		slog.Info("removing stale watcher flag", "path", f.path)
		_ = os.Remove(f.path)
	}
	return ErrHeld
}

// Drop removes the flag if the calling process owns it.
func (f *Flag) Drop() {
	if pid, ok := f.Owner(); ok && pid == os.Getpid() {
		_ = os.Remove(f.path)
	}
}

// ReleaseWatcher terminates watcher processes and deletes the flag. It is
// teardown-only: errors are logged and swallowed, and it gives up after a
// short bound.
func (f *Flag) ReleaseWatcher(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, releaseBound)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.release(ctx)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("watcher release timed out", "path", f.path)
	}
}

func (f *Flag) release(ctx context.Context) {
	pids := map[int]bool{}
	if pid, ok := f.Owner(); ok {
		if f.isWatcher(ctx, pid) {
			pids[pid] = true
		} else {
			slog.Info("flag owner is not a running watcher, leaving it alone", "pid", pid)
		}
	}
	if found, err := process.FindByMatch(ctx, f.match); err != nil {
		slog.Debug("watcher lookup failed", "err", err)
	} else {
		for _, pid := range found {
			pids[pid] = true
		}
	}
	for pid := range pids {
		if err := process.Terminate(ctx, pid); err != nil {
			slog.Debug("watcher terminate failed", "pid", pid, "err", err)
		} else {
			slog.Info("watcher terminated", "pid", pid)
		}
	}
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		slog.Debug("watcher flag removal failed", "path", f.path, "err", err)
	}
}

// WatchSubcommand is the CLI subcommand that runs this project's watcher.
const WatchSubcommand = "watch"

// isWatcher guards against PID reuse: a flag left by a crashed watcher may
// name an unrelated live process.
func (f *Flag) isWatcher(ctx context.Context, pid int) bool {
	if pid == os.Getpid() || !process.Alive(pid) {
		return false
	}
	id, ok := process.Describe(ctx, pid)
	if !ok {
		return false
	}
	if id.Matches(f.match) {
		return true
	}
	exe, err := os.Executable()
	return err == nil && id.Runs(exe, WatchSubcommand)
}

// Claim atomically marks imagePath as being processed by the caller. It
// returns false when another process claimed it first.
func Claim(imagePath string) (bool, error) {
	f, err := os.OpenFile(imagePath+ClaimSuffix, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	return true, f.Close()
}

// Claimed reports whether someone already claimed imagePath.
func Claimed(imagePath string) bool {
	return exists(imagePath + ClaimSuffix)
}

func parsePID(data []byte) (int, bool) {
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, false
	}
	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
