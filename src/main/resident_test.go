package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screen-ocr-clip/src/handshake"
	"screen-ocr-clip/src/pipeline"
)

func TestQuitSequenceReleasesWatcherBeforeTray(t *testing.T) {
	var calls []string
	q := &quitSequence{
		release:  func(context.Context) { calls = append(calls, "release") },
		cancel:   func() { calls = append(calls, "cancel") },
		quitTray: func() { calls = append(calls, "tray") },
	}

	q.quit()
	q.quit()

	assert.Equal(t, []string{"release", "cancel", "tray"}, calls)
}

func TestQuitSequenceRemovesFlagWhileTrayIsUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watcher.flag")
	require.NoError(t, os.WriteFile(path, []byte("999999999"), 0o644))
	flag := handshake.New(path, "screen-ocr-clip-test-no-such-watcher")
	coord := pipeline.New(pipeline.Options{Watcher: flag})

	flagGoneAtTrayQuit := false
	ctx, cancel := context.WithCancel(context.Background())
	q := &quitSequence{
		release: coord.Shutdown,
		cancel:  cancel,
		quitTray: func() {
			_, err := os.Stat(path)
			flagGoneAtTrayQuit = os.IsNotExist(err)
		},
	}

	q.quit()

	assert.True(t, flagGoneAtTrayQuit)
	assert.Error(t, ctx.Err())
}
