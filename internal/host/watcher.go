package host

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"intellipy/internal/logger"
)

// Watcher reports file-set changes under a root to a callback. Subdirectories are watched
// recursively; directories created later are added as they appear.
type Watcher struct {
	root     string
	fsw      *fsnotify.Watcher
	onChange func(path string)
	match    func(path string) bool
}

// NewWatcher watches root. onChange runs on the watcher goroutine for every create, remove,
// rename or write of a file accepted by match (nil accepts every file).
func NewWatcher(root string, match func(path string) bool, onChange func(path string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{root: root, fsw: fsw, onChange: onChange, match: match}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// PythonFiles accepts .py files.
func PythonFiles(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".py")
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if _, skip := skippedDirs[d.Name()]; skip && path != dir {
			return fs.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			logger.Debug("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// Run dispatches events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				logger.Warn("File watcher overflowed, forcing refresh")
				w.onChange(w.root)
				continue
			}
			logger.Warn("File watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}
	if _, skip := skippedDirs[filepath.Base(event.Name)]; skip {
		return
	}

	// Directories carry whole subtrees in and out of the file set.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				logger.Debug("Failed to watch new directory", "path", event.Name, "error", err)
			}
			w.notify(event)
			return
		}
	}
	if (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) && filepath.Ext(event.Name) == "" {
		w.notify(event)
		return
	}

	if w.match != nil && !w.match(event.Name) {
		return
	}
	w.notify(event)
}

func (w *Watcher) notify(event fsnotify.Event) {
	logger.Debug("Workspace file changed", "path", event.Name, "op", event.Op.String())
	w.onChange(event.Name)
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
