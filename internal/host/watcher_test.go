package host

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intellipy/internal/testutils"
)

type changeLog struct {
	mu    sync.Mutex
	paths []string
}

func (c *changeLog) record(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
}

func (c *changeLog) has(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.paths {
		if p == path {
			return true
		}
	}
	return false
}

func (c *changeLog) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func TestPythonFiles(t *testing.T) {
	assert.True(t, PythonFiles("/w/a.py"))
	assert.True(t, PythonFiles("B.PY"))
	assert.False(t, PythonFiles("/w/a.pyc"))
	assert.False(t, PythonFiles("/w/notes.md"))
}

func TestWatcher_Run(t *testing.T) {
	root := testutils.CreateTempDir(t, map[string]string{"pkg/existing.py": ""})
	changes := &changeLog{}

	w, err := NewWatcher(root, PythonFiles, changes.record)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	created := filepath.Join(root, "pkg", "new.py")
	require.NoError(t, os.WriteFile(created, []byte("x = 1"), 0o644))
	require.Eventually(t, func() bool { return changes.has(created) }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("#"), 0o644))

	sub := filepath.Join(root, "later")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.Eventually(t, func() bool { return changes.has(sub) }, 5*time.Second, 10*time.Millisecond)

	nested := filepath.Join(sub, "mod.py")
	require.Eventually(t, func() bool {
		_ = os.WriteFile(nested, []byte("y = 2"), 0o644)
		return changes.has(nested)
	}, 5*time.Second, 50*time.Millisecond)

	for _, p := range changes.snapshot() {
		assert.NotEqual(t, filepath.Join(root, "notes.md"), p)
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_HandleFilters(t *testing.T) {
	root := t.TempDir()
	changes := &changeLog{}
	w, err := NewWatcher(root, PythonFiles, changes.record)
	require.NoError(t, err)
	defer w.Close()

	w.handle(fsnotify.Event{Name: filepath.Join(root, "a.py"), Op: fsnotify.Chmod})
	w.handle(fsnotify.Event{Name: filepath.Join(root, "node_modules"), Op: fsnotify.Create})
	w.handle(fsnotify.Event{Name: filepath.Join(root, "b.txt"), Op: fsnotify.Write})
	assert.Empty(t, changes.snapshot())

	w.handle(fsnotify.Event{Name: filepath.Join(root, "a.py"), Op: fsnotify.Write})
	w.handle(fsnotify.Event{Name: filepath.Join(root, "gone"), Op: fsnotify.Remove})
	assert.Equal(t, []string{filepath.Join(root, "a.py"), filepath.Join(root, "gone")}, changes.snapshot())
}

func TestNewWatcher_MissingRoot(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing"), nil, func(string) {})
	assert.Error(t, err)
}
