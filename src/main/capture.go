package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"screen-ocr-clip/src/pipeline"
	"screen-ocr-clip/src/runtimeinit"
	"screen-ocr-clip/src/screenshot"
	"screen-ocr-clip/src/singleinstance"
)

type captureOptions struct {
	mode   string
	stdout bool
}

func newCaptureCmd(opts *mainOptions) *cobra.Command {
	co := &captureOptions{}
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture once, via the resident instance when one is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := screenshot.ParseMode(co.mode)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			req := singleinstance.Request{Mode: mode.String(), OutputToStdout: co.stdout}
			return handleCaptureWithDelegation(ctx, req, singleinstance.NewClient(), cmd.OutOrStdout(),
				func(ctx context.Context) error {
					return runCaptureStandalone(ctx, opts, mode, co.stdout, cmd.OutOrStdout())
				})
		},
	}
	cmd.Flags().StringVar(&co.mode, "mode", screenshot.ModeArea.String(), modeNames())
	cmd.Flags().BoolVar(&co.stdout, "stdout", false, "Print the text instead of copying it")
	return cmd
}

// handleCaptureWithDelegation hands the capture to a resident instance and
// only runs fallback when none answered. Errors reported by a resident are
// returned as-is so an interactive selection is never prompted twice.
func handleCaptureWithDelegation(ctx context.Context, req singleinstance.Request, client singleinstance.Client, out io.Writer, fallback func(context.Context) error) error {
	if client != nil {
		delegated, text, err := client.TryCapture(ctx, req)
		switch {
		case delegated && err == nil:
			slog.Info("capture delegated to resident instance", "mode", req.Mode)
			if req.OutputToStdout {
				_, werr := fmt.Fprintln(out, text)
				return werr
			}
			return nil
		case errors.Is(err, singleinstance.ErrDeferred):
			slog.Info("resident handed the capture to an external watcher")
			return nil
		case delegated:
			return fmt.Errorf("resident instance: %w", err)
		case err != nil:
			slog.Warn("delegation failed, running standalone", "err", err)
		}
	}
	if fallback == nil {
		return errors.New("no resident instance and no standalone fallback")
	}
	return fallback(ctx)
}

func runCaptureStandalone(ctx context.Context, opts *mainOptions, mode screenshot.Mode, toStdout bool, out io.Writer) error {
	app, err := bootstrap(opts, runtimeinit.Options{})
	if err != nil {
		return err
	}
	defer app.Close()

	var target pipeline.Target = pipeline.ClipboardTarget{History: app.History}
	if toStdout {
		target = pipeline.StdoutTarget{Writer: out}
	}
	report := app.Coordinator.RunTo(ctx, mode, target)
	return reportError(report)
}

// reportError maps a run to the process exit: cancel and handoff are not
// failures.
func reportError(r pipeline.Report) error {
	switch r.Kind {
	case pipeline.NoticeCopied, pipeline.NoticeCancelled, pipeline.NoticeDeferred:
		return nil
	case pipeline.NoticeNoText:
		return errors.New("no text found in capture")
	default:
		if r.Err == nil {
			return errors.New("capture failed")
		}
		return r.Err
	}
}

func newPermissionCmd(opts *mainOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "permission",
		Short: "Report whether screen capture is authorized",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap(opts, runtimeinit.Options{SkipHistoryStore: true})
			if err != nil {
				return err
			}
			defer app.Close()

			if !app.Invoker.HasPermission(cmd.Context()) {
				fmt.Fprintln(cmd.OutOrStdout(), "denied")
				return screenshot.ErrPermissionDenied
			}
			fmt.Fprintln(cmd.OutOrStdout(), "authorized")
			return nil
		},
	}
}

func modeNames() string {
	names := make([]string, 0, 3)
	for _, m := range []screenshot.Mode{screenshot.ModeFull, screenshot.ModeWindow, screenshot.ModeArea} {
		names = append(names, m.String())
	}
	return strings.Join(names, "|")
}
