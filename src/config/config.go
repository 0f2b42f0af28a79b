package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	ConfigPathEnvVar = "SCREEN_OCR_CLIP"

	DefaultHotkey          = "Ctrl+Shift+O"
	DefaultWatcherFlag     = "/tmp/ocr_service_running.flag"
	DefaultWatcherMatch    = "ocr_service"
	DefaultHistoryCapacity = 100
	DefaultKeepCaptures    = 20
)

// DefaultOCRBinaries lists well-known tesseract install locations, tried in order
// before falling back to $PATH resolution of the last entry.
var DefaultOCRBinaries = []string{
	"/opt/homebrew/bin/tesseract",
	"/usr/local/bin/tesseract",
	"/usr/bin/tesseract",
	"tesseract",
}

// DefaultOCRBackends is the extraction order. The script backend is skipped
// unless OCR_HELPER_SCRIPT is set.
var DefaultOCRBackends = []string{"handoff", "engine", "script", "binary"}

type LoadOptions struct {
	ScratchDirOverride string
	HistoryDBOverride  string
	LogLevelOverride   string
}

type Config struct {
	ScratchDir string

	CaptureTool           string
	CaptureCancelCode     int
	CaptureTimeoutSec     int
	InteractiveTimeoutSec int
	KeepCaptures          int

	OCRTimeoutSec   int
	OCRBinaries     []string
	OCRLanguage     string
	OCRHelperScript string
	OCRBackends     []string

	WatcherFlag  string
	WatcherMatch string

	HistoryDB       string
	HistoryCapacity int

	Hotkey            string
	EnableFileLogging bool
	LogFormat         string
	LogLevel          string
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Sources in priority order:
	// 1) .env in the executable directory
	// 2) file named by SCREEN_OCR_CLIP
	// Values already present in the process environment are never overwritten.
	if envPath := resolveEnvPath(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	cfg := &Config{
		ScratchDir:            getEnvWithDefault("SCRATCH_DIR", filepath.Join(os.TempDir(), "screenshots")),
		CaptureTool:           getEnvWithDefault("CAPTURE_TOOL", defaultCaptureTool()),
		CaptureCancelCode:     getEnvInt("CAPTURE_CANCEL_CODE", 1),
		CaptureTimeoutSec:     getEnvPositiveInt("CAPTURE_TIMEOUT_SEC", 15),
		InteractiveTimeoutSec: getEnvPositiveInt("INTERACTIVE_TIMEOUT_SEC", 120),
		KeepCaptures:          getEnvPositiveInt("KEEP_CAPTURES", DefaultKeepCaptures),
		OCRTimeoutSec:         getEnvPositiveInt("OCR_TIMEOUT_SEC", 30),
		OCRBinaries:           getEnvList("OCR_BINARIES", DefaultOCRBinaries),
		OCRLanguage:           getEnvWithDefault("OCR_LANGUAGE", "eng"),
		OCRHelperScript:       strings.TrimSpace(os.Getenv("OCR_HELPER_SCRIPT")),
		OCRBackends:           getEnvList("OCR_BACKENDS", DefaultOCRBackends),
		WatcherFlag:           getEnvWithDefault("WATCHER_FLAG", defaultWatcherFlag()),
		WatcherMatch:          getEnvWithDefault("WATCHER_MATCH", DefaultWatcherMatch),
		HistoryDB:             getEnvWithDefault("HISTORY_DB", defaultHistoryDB()),
		HistoryCapacity:       getEnvPositiveInt("HISTORY_CAPACITY", DefaultHistoryCapacity),
		Hotkey:                getEnvWithDefault("HOTKEY", DefaultHotkey),
		EnableFileLogging:     strings.ToLower(os.Getenv("ENABLE_FILE_LOGGING")) == "true",
		LogFormat:             getEnvWithDefault("LOG_FORMAT", "auto"),
		LogLevel:              os.Getenv("LOG_LEVEL"),
	}

	if v := strings.TrimSpace(opts.ScratchDirOverride); v != "" {
		cfg.ScratchDir = v
	}
	if v := strings.TrimSpace(opts.HistoryDBOverride); v != "" {
		cfg.HistoryDB = v
	}
	if v := strings.TrimSpace(opts.LogLevelOverride); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}

func resolveEnvPath() string {
	if execPath, err := os.Executable(); err == nil {
		exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(exeEnv); err == nil {
			return exeEnv
		}
	}

	if alt := os.Getenv(ConfigPathEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func defaultCaptureTool() string {
	if runtime.GOOS == "darwin" {
		return "/usr/sbin/screencapture"
	}
	return "screencapture"
}

func defaultWatcherFlag() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.TempDir(), "ocr_service_running.flag")
	}
	return DefaultWatcherFlag
}

func defaultHistoryDB() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "screen-ocr-clip", "history.db")
	}
	return filepath.Join(dir, "screen-ocr-clip", "history.db")
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvPositiveInt(key string, defaultValue int) int {
	if n := getEnvInt(key, defaultValue); n > 0 {
		return n
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultValue...)
	}
	return out
}
