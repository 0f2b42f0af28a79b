package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"screen-ocr-clip/src/config"
	"screen-ocr-clip/src/logutil"
	"screen-ocr-clip/src/ocr"
	"screen-ocr-clip/src/process"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

type cliOptions struct {
	filePath   string
	jsonOutput bool
	verbose    bool
	backends   []string
	language   string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(normalizeLegacyArgs(os.Args))
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"ocr-tool"}
	}

	opts := &cliOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ocr-tool",
		Short:         "Run the local OCR chain on PNG input",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithOptions(cmd.Context(), *opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.filePath, "file", "", "Path to PNG file (use '-' for stdin)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	cmd.Flags().StringSliceVar(&opts.backends, "backend", nil, "OCR backends in order (overrides OCR_BACKENDS)")
	cmd.Flags().StringVar(&opts.language, "lang", "", "Recognition language (overrides OCR_LANGUAGE)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runWithOptions(ctx context.Context, opts cliOptions, stdin io.Reader, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	level := "error"
	if opts.verbose {
		level = "debug"
	}
	logutil.Setup(logutil.Options{Level: level})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if len(opts.backends) > 0 {
		cfg.OCRBackends = opts.backends
	}
	if opts.language != "" {
		cfg.OCRLanguage = opts.language
	}

	chain := ocr.Build(ocr.BuildOptions{
		Backends:     cfg.OCRBackends,
		Language:     cfg.OCRLanguage,
		Binaries:     cfg.OCRBinaries,
		HelperScript: cfg.OCRHelperScript,
		Timeout:      time.Duration(cfg.OCRTimeoutSec) * time.Second,
		Runner:       process.NewRunner(),
	}).Without(ocr.BackendHandoff, ocr.BackendClaim)

	return processOCR(ctx, chain, opts.filePath, stdin, stdout, opts.jsonOutput)
}

// normalizeLegacyArgs accepts the single-dash spellings older scripts use.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range []string{"file", "json", "verbose", "backend", "lang"} {
			if arg == "-"+name || strings.HasPrefix(arg, "-"+name+"=") {
				normalized[i] = "-" + arg
				break
			}
		}
	}

	return normalized
}

// readImage loads the PNG from path, or stdin for "-", and validates it.
func readImage(path string, stdin io.Reader) ([]byte, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(io.LimitReader(stdin, maxFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", path, err)
		}
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("input file is empty")
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	if len(data) < len(pngMagic) || !bytes.Equal(data[:len(pngMagic)], pngMagic) {
		return nil, fmt.Errorf("input is not a valid PNG file (invalid magic number)")
	}
	return data, nil
}

// Extractor is the part of ocr.Chain the tool needs.
type Extractor interface {
	Extract(ctx context.Context, imagePath string) ocr.Outcome
}

func processOCR(ctx context.Context, chain Extractor, filePath string, stdin io.Reader, stdout io.Writer, jsonOutput bool) error {
	data, err := readImage(filePath, stdin)
	if err != nil {
		return err
	}

	// Backends work on files, so stdin input is spooled to a temp file.
	imagePath := filePath
	if filePath == "-" {
		dir, err := os.MkdirTemp("", "ocr-tool-")
		if err != nil {
			return fmt.Errorf("failed to create temp dir: %w", err)
		}
		defer os.RemoveAll(dir)
		imagePath = filepath.Join(dir, "stdin.png")
		if err := os.WriteFile(imagePath, data, 0o600); err != nil {
			return fmt.Errorf("failed to spool stdin: %w", err)
		}
	}

	start := time.Now()
	out := chain.Extract(ctx, imagePath)
	elapsed := time.Since(start)

	switch out.Kind {
	case ocr.KindExtracted:
		return outputResult(stdout, out.Text, out.Backend, filePath, elapsed, jsonOutput)
	case ocr.KindFailed:
		return fmt.Errorf("OCR failed: %w", out.Err)
	default:
		return fmt.Errorf("OCR failed: %w", ocr.ErrNoTextFound)
	}
}

type OCRResult struct {
	Text      string  `json:"text"`
	Source    string  `json:"source"`
	Backend   string  `json:"backend"`
	Timestamp string  `json:"timestamp"`
	Duration  float64 `json:"duration_seconds"`
	CharCount int     `json:"character_count"`
}

func outputResult(w io.Writer, text, backend, sourcePath string, elapsed time.Duration, jsonOutput bool) error {
	if !jsonOutput {
		_, err := fmt.Fprintln(w, text)
		return err
	}

	result := OCRResult{
		Text:      text,
		Source:    sourcePath,
		Backend:   backend,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Duration:  elapsed.Seconds(),
		CharCount: utf8.RuneCountInString(text),
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}
