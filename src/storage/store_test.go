package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screen-ocr-clip/src/history"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func contents(entries []history.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Content
	}
	return out
}

func TestLoadEmpty(t *testing.T) {
	store := setupTestStore(t)
	entries, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPutLoadKeepsOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.UnixMilli(time.Now().UnixMilli())

	in := []history.Entry{
		{Content: "oldest", Kind: history.KindFile, Timestamp: now.Add(-time.Hour)},
		{Content: "middle", Kind: history.KindRichText, Timestamp: now.Add(-time.Minute)},
		{Content: "newest", Kind: history.KindText, Timestamp: now},
	}
	for _, e := range in {
		require.NoError(t, store.Put(ctx, e, 10))
	}

	out, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := range out {
		want := in[len(in)-1-i]
		assert.Equal(t, want.Content, out[i].Content)
		assert.Equal(t, want.Kind, out[i].Kind)
		assert.True(t, want.Timestamp.Equal(out[i].Timestamp))
	}
}

func TestPutMovesDuplicateAndTrims(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, c := range []string{"a", "b", "c"} {
		require.NoError(t, store.Put(ctx, history.Entry{Content: c, Kind: history.KindText, Timestamp: now}, 3))
	}
	require.NoError(t, store.Put(ctx, history.Entry{Content: "a", Kind: history.KindText, Timestamp: now}, 3))
	out, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, contents(out))

	require.NoError(t, store.Put(ctx, history.Entry{Content: "d", Kind: history.KindText, Timestamp: now}, 3))
	out, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "a", "c"}, contents(out))

	require.NoError(t, store.Delete(ctx, "a"))
	out, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c"}, contents(out))

	require.NoError(t, store.Clear(ctx))
	out, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReopenSkipsAppliedMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), history.Entry{Content: "kept", Kind: history.KindText, Timestamp: time.Now()}, 10))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	out, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "kept", out[0].Content)
}

func TestHistoryPersistsThroughStore(t *testing.T) {
	store := setupTestStore(t)

	h := history.New(history.Options{Store: store})
	h.Add("one", history.KindText)
	h.Add("two", history.KindText)

	reloaded := history.New(history.Options{Store: store})
	require.NoError(t, reloaded.Load(context.Background()))
	assert.Equal(t, []string{"two", "one"}, contents(reloaded.Entries()))
}

// The resident and the watcher open the same database file separately.
func TestTwoProcessesShareHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	watcherStore, err := Open(path)
	require.NoError(t, err)
	defer watcherStore.Close()
	residentStore, err := Open(path)
	require.NoError(t, err)
	defer residentStore.Close()

	clip := &recordingClipboard{}
	watcher := history.New(history.Options{Store: watcherStore, Clipboard: clip})
	resident := history.New(history.Options{Store: residentStore, Clipboard: clip})
	require.NoError(t, watcher.Load(context.Background()))
	require.NoError(t, resident.Load(context.Background()))

	require.NoError(t, watcher.CopyText("copied by watcher", true))
	require.NoError(t, resident.CopyText("copied by resident", true))

	want := []string{"copied by resident", "copied by watcher"}
	assert.Equal(t, want, contents(resident.Entries()))

	out, err := watcherStore.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, contents(out))
}

type recordingClipboard struct{ last string }

func (c *recordingClipboard) WriteText(text string) error {
	c.last = text
	return nil
}
