package ocr

import (
	"context"
	"log/slog"

	"screen-ocr-clip/src/handshake"
)

const (
	BackendHandoff = "handoff"
	BackendClaim   = "claim"
)

// WatcherState reports whether an external watcher owns OCR.
type WatcherState interface {
	Active() bool
}

// HandoffBackend defers to a running watcher, which observes the same scratch
// directory and does extraction and clipboard copy itself.
type HandoffBackend struct {
	watcher WatcherState
}

func NewHandoffBackend(w WatcherState) *HandoffBackend { return &HandoffBackend{watcher: w} }

func (b *HandoffBackend) Name() string { return BackendHandoff }

func (b *HandoffBackend) Attempt(_ context.Context, imagePath string) Outcome {
	if b.watcher == nil || !b.watcher.Active() {
		return FallThrough()
	}
	slog.Info("external watcher active, deferring", "image", imagePath)
	return Deferred("external watcher active")
}

// ClaimBackend takes exclusive ownership of the image before local engines
// run. Losing the claim means another process is already on it.
type ClaimBackend struct{}

func (ClaimBackend) Name() string { return BackendClaim }

func (ClaimBackend) Attempt(_ context.Context, imagePath string) Outcome {
	ok, err := handshake.Claim(imagePath)
	if err != nil {
		// Unclaimable (read-only dir etc.) still gets processed locally.
		slog.Warn("claim marker failed", "image", imagePath, "err", err)
		return FallThrough()
	}
	if !ok {
		slog.Info("image already claimed by another process", "image", imagePath)
		return Deferred("claimed by another process")
	}
	return FallThrough()
}
