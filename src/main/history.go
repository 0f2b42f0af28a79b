package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"screen-ocr-clip/src/history"
	"screen-ocr-clip/src/runtimeinit"
	"screen-ocr-clip/src/screenshot"
)

const previewRunes = 60

func newHistoryCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the clipboard history",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent entries, newest first",
		Args:  cobra.NoArgs,
		RunE: withHistory(opts, func(cmd *cobra.Command, args []string, h *history.History) error {
			entries := h.Entries()
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}
			return printEntries(cmd.OutOrStdout(), entries, time.Now())
		}),
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show (0 for all)")

	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Case-insensitive substring search",
		Args:  cobra.ExactArgs(1),
		RunE: withHistory(opts, func(cmd *cobra.Command, args []string, h *history.History) error {
			return printEntries(cmd.OutOrStdout(), h.Search(args[0]), time.Now())
		}),
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show history statistics",
		Args:  cobra.NoArgs,
		RunE: withHistory(opts, func(cmd *cobra.Command, args []string, h *history.History) error {
			return printStats(cmd.OutOrStdout(), h.Statistics(), time.Now())
		}),
	}

	var output string
	export := &cobra.Command{
		Use:   "export",
		Short: "Export the history as plain text",
		Args:  cobra.NoArgs,
		RunE: withHistory(opts, func(cmd *cobra.Command, args []string, h *history.History) error {
			text := h.ExportAsText()
			if output == "" || output == "-" {
				_, err := io.WriteString(cmd.OutOrStdout(), text)
				return err
			}
			if err := os.WriteFile(output, []byte(text), 0o644); err != nil {
				return fmt.Errorf("writing export: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d entries to %s\n", h.Len(), output)
			return nil
		}),
	}
	export.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry",
		Args:  cobra.NoArgs,
		RunE: withHistory(opts, func(cmd *cobra.Command, args []string, h *history.History) error {
			n := h.Len()
			h.Clear()
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d entries\n", n)
			return nil
		}),
	}

	cmd.AddCommand(list, search, stats, export, clearCmd)
	return cmd
}

type historyRunE func(cmd *cobra.Command, args []string, h *history.History) error

func withHistory(opts *mainOptions, fn historyRunE) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := bootstrap(opts, runtimeinit.Options{})
		if err != nil {
			return err
		}
		defer app.Close()
		return fn(cmd, args, app.History)
	}
}

func printEntries(w io.Writer, entries []history.Entry, now time.Time) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "no entries")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, humanize.RelTime(e.Timestamp, now, "ago", "from now"), e.Kind, e.Preview(previewRunes))
	}
	return tw.Flush()
}

func printStats(w io.Writer, s history.Stats, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "entries\t%s\n", humanize.Comma(int64(s.Count)))
	fmt.Fprintf(tw, "characters\t%s\n", humanize.Comma(int64(s.TotalChars)))
	if s.Count > 0 {
		fmt.Fprintf(tw, "newest\t%s\n", humanize.RelTime(s.Newest, now, "ago", "from now"))
		fmt.Fprintf(tw, "oldest\t%s\n", humanize.RelTime(s.Oldest, now, "ago", "from now"))
	}
	kinds := make([]string, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(tw, "kind %s\t%d\n", k, s.ByKind[history.Kind(k)])
	}
	return tw.Flush()
}

func newCapturesCmd(opts *mainOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "captures",
		Short: "List recent capture files, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap(opts, runtimeinit.Options{SkipHistoryStore: true})
			if err != nil {
				return err
			}
			defer app.Close()

			paths, err := app.Invoker.RecentCaptures(limit)
			if err != nil {
				return err
			}
			return printCaptures(cmd.OutOrStdout(), paths, time.Now())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum captures to show")
	return cmd
}

func printCaptures(w io.Writer, paths []string, now time.Time) error {
	if len(paths) == 0 {
		_, err := fmt.Fprintln(w, "no captures")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, p := range paths {
		size, when := "?", "?"
		if info, err := os.Stat(p); err == nil {
			size = screenshot.FormatFileSize(info.Size())
			when = humanize.RelTime(info.ModTime(), now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p, size, when)
	}
	return tw.Flush()
}

func newCleanupCmd(opts *mainOptions) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete all but the newest captures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap(opts, runtimeinit.Options{SkipHistoryStore: true})
			if err != nil {
				return err
			}
			defer app.Close()

			if !cmd.Flags().Changed("keep") {
				keep = app.Config.KeepCaptures
			}
			removed, err := app.Invoker.CleanupOld(keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d captures, kept up to %d\n", removed, keep)
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 20, "Number of newest captures to keep")
	return cmd
}
