// Package runtimeinit builds every component once from configuration and
// hands out references.
package runtimeinit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"screen-ocr-clip/src/clipboard"
	"screen-ocr-clip/src/config"
	"screen-ocr-clip/src/handshake"
	"screen-ocr-clip/src/history"
	"screen-ocr-clip/src/notification"
	"screen-ocr-clip/src/ocr"
	"screen-ocr-clip/src/pipeline"
	"screen-ocr-clip/src/process"
	"screen-ocr-clip/src/screenshot"
	"screen-ocr-clip/src/storage"
)

type Options struct {
	LoadOptions  config.LoadOptions
	SetupLogging func(cfg *config.Config)
	// Clipboard overrides the system clipboard (tests, headless runs).
	Clipboard history.Clipboard
	// Notifier overrides desktop notifications.
	Notifier pipeline.Notifier
	// SkipHistoryStore keeps the history in memory only.
	SkipHistoryStore bool
}

// App is the wired component graph.
type App struct {
	Config      *config.Config
	Runner      process.Runner
	Invoker     *screenshot.Invoker
	Flag        *handshake.Flag
	Chain       *ocr.Chain
	History     *history.History
	Clipboard   history.Clipboard
	Coordinator *pipeline.Coordinator
	Notifier    pipeline.Notifier

	store *storage.Store
}

func Bootstrap(opts Options) (*App, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg)
	}

	runner := process.NewRunner()
	app := &App{Config: cfg, Runner: runner}

	app.Invoker = screenshot.NewInvoker(screenshot.Options{
		Dir:                cfg.ScratchDir,
		Tool:               cfg.CaptureTool,
		CancelCode:         cfg.CaptureCancelCode,
		Timeout:            time.Duration(cfg.CaptureTimeoutSec) * time.Second,
		InteractiveTimeout: time.Duration(cfg.InteractiveTimeoutSec) * time.Second,
		Runner:             runner,
		Native:             screenshot.NativeFullScreen,
	})
	if err := app.Invoker.EnsureDir(); err != nil {
		return nil, err
	}

	app.Flag = handshake.New(cfg.WatcherFlag, cfg.WatcherMatch)
	app.Chain = ocr.Build(ocr.BuildOptions{
		Backends:     cfg.OCRBackends,
		Watcher:      app.Flag,
		Language:     cfg.OCRLanguage,
		Binaries:     cfg.OCRBinaries,
		HelperScript: cfg.OCRHelperScript,
		Timeout:      time.Duration(cfg.OCRTimeoutSec) * time.Second,
		Runner:       runner,
	})
	slog.Debug("ocr chain", "backends", app.Chain.Backends())

	clip := opts.Clipboard
	if clip == nil {
		clip = clipboard.New()
	}
	app.Clipboard = clip

	var store history.Store
	if !opts.SkipHistoryStore && cfg.HistoryDB != "" {
		s, err := storage.Open(cfg.HistoryDB)
		if err != nil {
			// History is a convenience; run without persistence.
			slog.Warn("history store unavailable, keeping history in memory", "path", cfg.HistoryDB, "err", err)
		} else {
			app.store = s
			store = s
		}
	}
	app.History = history.New(history.Options{
		Capacity:  cfg.HistoryCapacity,
		Clipboard: clip,
		Store:     store,
	})
	if err := app.History.Load(context.Background()); err != nil {
		slog.Warn("history load failed", "err", err)
	}

	app.Notifier = opts.Notifier
	if app.Notifier == nil {
		app.Notifier = notification.NewDesktop(runner)
	}

	app.Coordinator = pipeline.New(pipeline.Options{
		Capturer:  app.Invoker,
		Extractor: app.Chain,
		Target:    pipeline.ClipboardTarget{History: app.History},
		Notifier:  app.Notifier,
		Watcher:   app.Flag,
		Cleanup:   app.Invoker.CleanupOld,
		Keep:      cfg.KeepCaptures,
	})
	return app, nil
}

// LocalChain is the chain without handoff and claim steps, for the watcher
// process which claims images itself.
func (a *App) LocalChain() *ocr.Chain {
	return a.Chain.Without(ocr.BackendHandoff, ocr.BackendClaim)
}

// Close releases the history database.
func (a *App) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
