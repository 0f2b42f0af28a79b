package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"screen-ocr-clip/src/config"
	"screen-ocr-clip/src/logutil"
	"screen-ocr-clip/src/runtimeinit"
)

func init() {
	// systray and the capture tool's UI callbacks want the main thread.
	runtime.LockOSThread()
}

type mainOptions struct {
	scratchDir string
	historyDB  string
	logLevel   string
}

func main() {
	enableDPIAwareness()

	cmd := newRootCmd(&mainOptions{})
	cmd.SetArgs(normalizeLegacyArgs(os.Args)[1:])
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "screen-ocr-clip",
		Short:         "Capture the screen, recognize text and copy it to the clipboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResident(cmd.Context(), opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.scratchDir, "scratch-dir", "", "Directory for capture files (overrides SCRATCH_DIR)")
	flags.StringVar(&opts.historyDB, "history-db", "", "Clipboard history database (overrides HISTORY_DB)")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug|info|warn|error (overrides LOG_LEVEL)")

	cmd.AddCommand(
		newCaptureCmd(opts),
		newWatchCmd(opts),
		newPermissionCmd(opts),
		newHistoryCmd(opts),
		newCapturesCmd(opts),
		newCleanupCmd(opts),
	)
	return cmd
}

// normalizeLegacyArgs turns single-dash long flags into cobra's double-dash
// form and maps the old --run-once[-std] switches onto the capture subcommand.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return []string{"screen-ocr-clip"}
	}
	out := []string{args[0]}
	for _, arg := range args[1:] {
		if len(arg) > 2 && arg[0] == '-' && arg[1] != '-' {
			arg = "-" + arg
		}
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		switch {
		case name == "run-once" && (!hasValue || value == "true"):
			out = append(out, "capture")
		case name == "run-once-std" && (!hasValue || value == "true"):
			out = append(out, "capture", "--stdout")
		default:
			out = append(out, arg)
		}
	}
	return out
}

func bootstrap(opts *mainOptions, extra runtimeinit.Options) (*runtimeinit.App, error) {
	extra.LoadOptions = config.LoadOptions{
		ScratchDirOverride: opts.scratchDir,
		HistoryDBOverride:  opts.historyDB,
		LogLevelOverride:   opts.logLevel,
	}
	if extra.SetupLogging == nil {
		extra.SetupLogging = setupLogging
	}
	return runtimeinit.Bootstrap(extra)
}

func setupLogging(cfg *config.Config) {
	dir := "."
	if exe, err := os.Executable(); err == nil {
		dir = filepath.Dir(exe)
	}
	logutil.Setup(logutil.Options{
		FileLogging: cfg.EnableFileLogging,
		Dir:         dir,
		Format:      cfg.LogFormat,
		Level:       cfg.LogLevel,
	})
}
