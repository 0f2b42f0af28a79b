package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"screen-ocr-clip/src/handshake"
	"screen-ocr-clip/src/ocr"
	"screen-ocr-clip/src/runtimeinit"
	"screen-ocr-clip/src/watcher"
)

func newWatchCmd(opts *mainOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the OCR watcher on the scratch directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap(opts, runtimeinit.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			svc := watcher.New(watcher.Options{
				Dir:       app.Invoker.Dir(),
				Flag:      app.Flag,
				Extractor: app.LocalChain(),
				Copier:    app.History,
				OnProcessed: func(path string, out ocr.Outcome) {
					slog.Debug("watcher outcome", "path", path, "outcome", out.Kind.String())
				},
			})
			err = svc.Run(ctx)
			switch {
			case errors.Is(err, handshake.ErrHeld):
				return fmt.Errorf("a watcher is already running (flag %s)", app.Flag.Path())
			case err == nil, errors.Is(err, context.Canceled):
				return nil
			default:
				return err
			}
		},
	}
}
