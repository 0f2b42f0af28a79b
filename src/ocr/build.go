package ocr

import (
	"log/slog"
	"strings"
	"time"

	"screen-ocr-clip/src/process"
)

// BuildOptions describes a chain in configuration terms.
type BuildOptions struct {
	Backends     []string // names in order: handoff, engine, script, binary
	Watcher      WatcherState
	Language     string
	Binaries     []string
	HelperScript string
	Timeout      time.Duration
	Runner       process.Runner
}

// Build assembles a chain. A claim step is placed in front of the first local
// backend whenever a handoff precedes it, so a watcher that appears late and a
// local engine never both process the same image. Unknown names are skipped.
func Build(opts BuildOptions) *Chain {
	if opts.Runner == nil {
		opts.Runner = process.NewRunner()
	}

	var backends []Backend
	handoff, claimed := false, false
	local := func(b Backend) {
		if handoff && !claimed {
			backends = append(backends, ClaimBackend{})
			claimed = true
		}
		backends = append(backends, b)
	}

	for _, name := range opts.Backends {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case BackendHandoff:
			if opts.Watcher != nil && !handoff {
				backends = append(backends, NewHandoffBackend(opts.Watcher))
				handoff = true
			}
		case BackendEngine:
			local(NewEngineBackend(opts.Language, opts.Timeout))
		case BackendScript:
			if opts.HelperScript != "" {
				local(NewScriptBackend(opts.HelperScript, opts.Runner, opts.Timeout))
			}
		case BackendBinary:
			if len(opts.Binaries) > 0 {
				local(NewTesseractBackend(opts.Binaries, opts.Language, opts.Runner, opts.Timeout))
			}
		default:
			slog.Warn("unknown ocr backend ignored", "name", name)
		}
	}
	return NewChain(backends...)
}
