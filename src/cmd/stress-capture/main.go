package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"screen-ocr-clip/src/screenshot"
	"screen-ocr-clip/src/singleinstance"
)

type stressOptions struct {
	n        int
	output   string
	capture  string
	deadline time.Duration
}

type tally struct {
	ok, busy, deferred, missing, failed atomic.Int32
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	return cmd.Execute()
}

func newRootCmd(opts *stressOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stress-capture",
		Short:         "Stress test capture delegation to the resident instance",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request()
			if err != nil {
				return err
			}
			newClient := func() singleinstance.Client { return singleinstance.NewClient() }
			return runWithOptions(cmd.OutOrStdout(), *opts, req, newClient)
		},
	}

	cmd.Flags().IntVar(&opts.n, "n", 50, "number of clients to launch")
	cmd.Flags().StringVar(&opts.output, "output", "std", "std|clip: print text (STDOUT) or copy it (CLIPBOARD)")
	cmd.Flags().StringVar(&opts.capture, "capture", "full", "capture mode requested by every client")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 5*time.Second, "per-client timeout")

	return cmd
}

func (o stressOptions) request() (singleinstance.Request, error) {
	mode, err := screenshot.ParseMode(o.capture)
	if err != nil {
		return singleinstance.Request{}, err
	}
	switch o.output {
	case "std", "clip":
	default:
		return singleinstance.Request{}, fmt.Errorf("unknown output %q (want std or clip)", o.output)
	}
	return singleinstance.Request{Mode: mode.String(), OutputToStdout: o.output == "std"}, nil
}

func runWithOptions(w io.Writer, opts stressOptions, req singleinstance.Request, newClient func() singleinstance.Client) error {
	var wg sync.WaitGroup
	var t tally

	start := time.Now()
	for i := 0; i < opts.n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), opts.deadline)
			defer cancel()
			delegated, _, err := newClient().TryCapture(ctx, req)
			t.record(delegated, err)
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)
	fmt.Fprintf(w, "launched=%d ok=%d busy=%d deferred=%d no_resident=%d err=%d elapsed=%s\n",
		opts.n, t.ok.Load(), t.busy.Load(), t.deferred.Load(), t.missing.Load(), t.failed.Load(), elapsed)
	return nil
}

func (t *tally) record(delegated bool, err error) {
	switch {
	case errors.Is(err, singleinstance.ErrDeferred):
		t.deferred.Add(1)
	case err != nil && strings.Contains(strings.ToLower(err.Error()), "busy"):
		t.busy.Add(1)
	case err != nil:
		t.failed.Add(1)
	case delegated:
		t.ok.Add(1)
	default:
		t.missing.Add(1)
	}
}
