package screenshot

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// CaptureMillis extracts the epoch millis from a screenshot file name.
func CaptureMillis(name string) (int64, bool) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, filePrefix) || !strings.HasSuffix(base, fileExt) {
		return 0, false
	}
	ms, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(base, filePrefix), fileExt), 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

// IsCapture reports whether path names a capture produced by an Invoker.
func IsCapture(path string) bool {
	_, ok := CaptureMillis(path)
	return ok
}

type capture struct {
	path string
	ms   int64
}

func (i *Invoker) captures() ([]capture, error) {
	entries, err := os.ReadDir(i.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []capture
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ms, ok := CaptureMillis(e.Name()); ok {
			out = append(out, capture{path: filepath.Join(i.dir, e.Name()), ms: ms})
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ms > out[b].ms })
	return out, nil
}

// RecentCaptures returns up to limit capture paths, newest first. limit <= 0
// returns all of them.
func (i *Invoker) RecentCaptures(limit int) ([]string, error) {
	caps, err := i.captures()
	if err != nil {
		return nil, fmt.Errorf("listing captures: %w", err)
	}
	if limit > 0 && len(caps) > limit {
		caps = caps[:limit]
	}
	paths := make([]string, len(caps))
	for n, c := range caps {
		paths[n] = c.path
	}
	return paths, nil
}

// CleanupOld keeps the newest keepCount captures and removes the rest together
// with their claim markers. It returns how many captures were removed.
func (i *Invoker) CleanupOld(keepCount int) (int, error) {
	if keepCount < 0 {
		keepCount = 0
	}
	caps, err := i.captures()
	if err != nil {
		return 0, fmt.Errorf("listing captures: %w", err)
	}
	if len(caps) <= keepCount {
		return 0, nil
	}
	removed := 0
	for _, c := range caps[keepCount:] {
		if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
			slog.Warn("cleanup: remove failed", "path", c.path, "err", err)
			continue
		}
		_ = os.Remove(c.path + ".claim")
		removed++
	}
	slog.Debug("cleanup finished", "removed", removed, "kept", keepCount)
	return removed, nil
}

// FormatFileSize renders a byte count: "N B" below 1 KiB, then KB/MB/GB with
// one decimal.
func FormatFileSize(size int64) string {
	const unit = 1024
	switch {
	case size < unit:
		return fmt.Sprintf("%d B", size)
	case size < unit*unit:
		return fmt.Sprintf("%.1f KB", float64(size)/unit)
	case size < unit*unit*unit:
		return fmt.Sprintf("%.1f MB", float64(size)/(unit*unit))
	default:
		return fmt.Sprintf("%.1f GB", float64(size)/(unit*unit*unit))
	}
}
