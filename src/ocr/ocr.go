// Package ocr extracts text from capture images through an ordered chain of
// backends. Each backend either decides the outcome or falls through to the
// next one.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	ErrBackendUnavailable = errors.New("ocr backend unavailable")
	ErrNoTextFound        = errors.New("no text found")
	ErrTimeout            = errors.New("ocr timed out")
)

// Kind tags an Outcome.
type Kind int

const (
	// KindNone means the backend had nothing to say; the chain moves on.
	KindNone Kind = iota
	KindExtracted
	KindDeferred
	KindNoText
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindExtracted:
		return "extracted"
	case KindDeferred:
		return "deferred"
	case KindNoText:
		return "no_text"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of one extraction. Text is non-empty exactly when
// Kind is KindExtracted.
type Outcome struct {
	Kind    Kind
	Text    string
	Backend string
	Reason  string
	Err     error
}

func FallThrough() Outcome { return Outcome{} }

func Extracted(text string) Outcome { return Outcome{Kind: KindExtracted, Text: text} }

func Deferred(reason string) Outcome { return Outcome{Kind: KindDeferred, Reason: reason} }

func NoText() Outcome {
	return Outcome{Kind: KindNoText, Reason: ErrNoTextFound.Error(), Err: ErrNoTextFound}
}

func Failed(err error) Outcome {
	return Outcome{Kind: KindFailed, Reason: err.Error(), Err: err}
}

// Decisive reports whether the chain stops at this outcome.
func (o Outcome) Decisive() bool {
	return o.Kind == KindExtracted || o.Kind == KindDeferred || o.Kind == KindFailed
}

// Backend is one extraction strategy.
type Backend interface {
	Name() string
	// Attempt returns FallThrough() when it produced nothing usable. It must
	// not panic on bad input and must not touch the clipboard.
	Attempt(ctx context.Context, imagePath string) Outcome
}

// Chain tries backends in order until one is decisive.
type Chain struct {
	backends []Backend
}

func NewChain(backends ...Backend) *Chain {
	return &Chain{backends: backends}
}

// Backends returns the names of the configured backends in order.
func (c *Chain) Backends() []string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return names
}

// Without returns a chain minus the named backends.
func (c *Chain) Without(names ...string) *Chain {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	var kept []Backend
	for _, b := range c.backends {
		if !skip[b.Name()] {
			kept = append(kept, b)
		}
	}
	return &Chain{backends: kept}
}

// Extract runs the chain on imagePath. Extracted text is normalized; a backend
// whose text normalizes to nothing is treated as having fallen through.
func (c *Chain) Extract(ctx context.Context, imagePath string) Outcome {
	for _, b := range c.backends {
		if err := ctx.Err(); err != nil {
			return Failed(fmt.Errorf("%w: %v", ErrTimeout, err))
		}

		start := time.Now()
		out := b.Attempt(ctx, imagePath)
		out.Backend = b.Name()
		if out.Kind == KindExtracted {
			out.Text = Normalize(out.Text)
			if out.Text == "" {
				out = FallThrough()
			}
		}
		slog.Debug("ocr backend attempted", "backend", b.Name(), "outcome", out.Kind.String(), "elapsed", time.Since(start))

		if out.Decisive() {
			out.Backend = b.Name()
			return out
		}
	}
	return NoText()
}

// ExtractText is the outward (text, ok) form of Extract.
func (c *Chain) ExtractText(ctx context.Context, imagePath string) (string, bool) {
	out := c.Extract(ctx, imagePath)
	if out.Kind != KindExtracted {
		return "", false
	}
	return out.Text, true
}
