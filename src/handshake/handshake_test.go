package handshake

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const deadPID = 2147483646

func newFlag(t *testing.T) *Flag {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "ocr_service_running.flag"), "")
}

func TestActiveMissingFlag(t *testing.T) {
	assert.False(t, newFlag(t).Active())
}

func TestForeignEmptyFlagIsActive(t *testing.T) {
	f := newFlag(t)
	require.NoError(t, os.WriteFile(f.Path(), nil, 0o644))
	assert.True(t, f.Active())

	require.NoError(t, os.WriteFile(f.Path(), []byte("running since monday"), 0o644))
	assert.True(t, f.Active())
}

func TestAcquireWritesPID(t *testing.T) {
	f := newFlag(t)
	require.NoError(t, f.Acquire())

	pid, ok := f.Owner()
	require.True(t, ok)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, f.Active())

	assert.ErrorIs(t, f.Acquire(), ErrHeld)

	f.Drop()
	assert.NoFileExists(t, f.Path())
}

func TestAcquireReplacesStaleFlag(t *testing.T) {
	f := newFlag(t)
	require.NoError(t, os.WriteFile(f.Path(), []byte(strconv.Itoa(deadPID)), 0o644))
	assert.False(t, f.Active())

	require.NoError(t, f.Acquire())
	pid, ok := f.Owner()
	require.True(t, ok)
	assert.Equal(t, os.Getpid(), pid)
}

func TestDropLeavesForeignFlag(t *testing.T) {
	f := newFlag(t)
	require.NoError(t, os.WriteFile(f.Path(), nil, 0o644))
	f.Drop()
	assert.FileExists(t, f.Path())
}

func TestReleaseWatcherRemovesFlag(t *testing.T) {
	f := newFlag(t)
	require.NoError(t, f.Acquire())

	f.ReleaseWatcher(context.Background())
	assert.NoFileExists(t, f.Path())
	assert.False(t, f.Active())

	// nothing to release is fine too
	f.ReleaseWatcher(context.Background())
}

func TestClaimIsExclusive(t *testing.T) {
	img := filepath.Join(t.TempDir(), "screenshot_1.png")
	require.NoError(t, os.WriteFile(img, []byte("x"), 0o644))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := Claim(img)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.True(t, Claimed(img))
}

func TestParsePID(t *testing.T) {
	pid, ok := parsePID([]byte(" 42\n"))
	assert.True(t, ok)
	assert.Equal(t, 42, pid)

	for _, bad := range []string{"", "abc", "-1", "0"} {
		_, ok := parsePID([]byte(bad))
		assert.False(t, ok, bad)
	}
}

func TestReleaseWatcherSparesUnrelatedFlagOwner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX sleep required")
	}
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	cmd := exec.Command(sleep, "30")
	require.NoError(t, cmd.Start())
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-exited
	})

	// A crashed watcher's PID now belongs to someone else.
	f := New(filepath.Join(t.TempDir(), "ocr_service_running.flag"), "ocr_service")
	require.NoError(t, os.WriteFile(f.Path(), []byte(strconv.Itoa(cmd.Process.Pid)), 0o644))

	f.ReleaseWatcher(context.Background())

	assert.NoFileExists(t, f.Path())
	select {
	case err := <-exited:
		t.Fatalf("unrelated process was terminated: %v", err)
	case <-time.After(300 * time.Millisecond):
	}
}
