package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const BackendEngine = "engine"

// recognizer is the in-process engine; the implementation depends on cgo.
type recognizer interface {
	Recognize(imagePath string) (string, error)
}

// EngineBackend runs the on-device recognizer with the chain deadline. A
// recognizer that cannot start falls through so the binary backends get a go.
type EngineBackend struct {
	engine  recognizer
	timeout time.Duration
}

func NewEngineBackend(language string, timeout time.Duration) *EngineBackend {
	return &EngineBackend{engine: newRecognizer(language), timeout: timeout}
}

func (b *EngineBackend) Name() string { return BackendEngine }

func (b *EngineBackend) Attempt(ctx context.Context, imagePath string) Outcome {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	type result struct {
		text string
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resCh <- result{err: fmt.Errorf("engine panic: %v", r)}
			}
		}()
		text, err := b.engine.Recognize(imagePath)
		resCh <- result{text, err}
	}()

	select {
	case r := <-resCh:
		if r.err != nil {
			slog.Debug("engine unavailable, falling through", "err", r.err)
			return FallThrough()
		}
		return Extracted(r.text)
	case <-ctx.Done():
		// The engine keeps running in the background; its result is dropped.
		return Failed(fmt.Errorf("%w: engine after %s", ErrTimeout, b.timeout))
	}
}
