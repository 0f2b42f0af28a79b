package screenshot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// HasPermission issues a 1x1 full-screen capture to a throwaway file and
// reports whether the tool exited cleanly. The test capture is always removed.
func (i *Invoker) HasPermission(ctx context.Context) bool {
	if err := i.EnsureDir(); err != nil {
		slog.Warn("permission check: scratch dir unavailable", "err", err)
		return false
	}
	path := filepath.Join(i.dir, fmt.Sprintf("permission_check_%d%s", i.now().UnixNano(), fileExt))
	defer func() { _ = os.Remove(path) }()

	runCtx, cancel := context.WithTimeout(ctx, checkTimeout(i.timeout))
	defer cancel()

	res, err := i.runner.Run(runCtx, i.tool, "-x", "-t", "png", "-R0,0,1,1", path)
	if err != nil {
		slog.Debug("permission check failed to run", "err", err)
		return false
	}
	return res.ExitCode == 0
}

// checkTimeout bounds the check; it never waits longer than 5s.
func checkTimeout(captureTimeout time.Duration) time.Duration {
	const maxCheck = 5 * time.Second
	if captureTimeout <= 0 || captureTimeout > maxCheck {
		return maxCheck
	}
	return captureTimeout
}
