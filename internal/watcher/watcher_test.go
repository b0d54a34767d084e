package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]Change
}

func (r *recorder) record(changes []Change) {
	r.mu.Lock()
	r.batches = append(r.batches, changes)
	r.mu.Unlock()
}

func (r *recorder) wait(t *testing.T, batches int) [][]Change {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		n := len(r.batches)
		r.mu.Unlock()
		if n >= batches {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	require.GreaterOrEqual(t, len(r.batches), batches)
	return r.batches
}

func startWatcher(t *testing.T, dir string, exts ...string) (*Watcher, *recorder) {
	t.Helper()
	w, err := New(nil, 50*time.Millisecond, exts...)
	require.NoError(t, err)
	require.NoError(t, w.Add(dir))
	rec := &recorder{}
	w.OnChange(rec.record)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	t.Cleanup(func() {
		cancel()
		w.Close()
	})
	return w, rec
}

func TestWatcherReportsWrites(t *testing.T) {
	dir := t.TempDir()
	_, rec := startWatcher(t, dir, ".html")

	path := filepath.Join(dir, "index.html")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	batches := rec.wait(t, 1)
	require.NotEmpty(t, batches[0])
	assert.Equal(t, path, batches[0][0].Path)
}

func TestWatcherBatchesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	_, rec := startWatcher(t, dir, ".html")

	path := filepath.Join(dir, "a.html")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	batches := rec.wait(t, 1)
	// rapid writes to one file collapse into a single change
	require.Len(t, batches[0], 1)
	assert.Equal(t, path, batches[0][0].Path)
}

func TestWatcherFiltersExtensions(t *testing.T) {
	dir := t.TempDir()
	_, rec := startWatcher(t, dir, ".html")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "take.html"), []byte("x"), 0o644))

	batches := rec.wait(t, 1)
	for _, batch := range batches {
		for _, c := range batch {
			assert.Equal(t, ".html", filepath.Ext(c.Path))
		}
	}
}

func TestWatcherReportsDeletes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.html")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, rec := startWatcher(t, dir, ".html")

	require.NoError(t, os.Remove(path))

	batches := rec.wait(t, 1)
	found := false
	for _, batch := range batches {
		for _, c := range batch {
			if c.Path == path && c.Op == OpDeleted {
				found = true
			}
		}
	}
	assert.True(t, found)
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	dir := t.TempDir()
	_, rec := startWatcher(t, dir, ".html")

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// give the watcher a moment to pick up the new directory
	time.Sleep(200 * time.Millisecond)
	path := filepath.Join(sub, "nested.html")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	batches := rec.wait(t, 1)
	found := false
	for _, batch := range batches {
		for _, c := range batch {
			if c.Path == path {
				found = true
			}
		}
	}
	assert.True(t, found)
}

func TestWatcherAddMissingDirectory(t *testing.T) {
	w, err := New(nil, 0)
	require.NoError(t, err)
	defer w.Close()
	require.Error(t, w.Add(filepath.Join(t.TempDir(), "nosuch")))
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "created", OpCreated.String())
	assert.Equal(t, "modified", OpModified.String())
	assert.Equal(t, "deleted", OpDeleted.String())
	assert.Equal(t, "renamed", OpRenamed.String())
}
