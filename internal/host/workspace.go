// Package host provides file-system and terminal implementations of the editor host collaborators:
// workspace access, file watching, the active document, outlines, confirmation and command execution.
package host

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"intellipy/internal/logger"
)

// ErrOutsideWorkspace is returned for paths that resolve outside the workspace root.
var ErrOutsideWorkspace = errors.New("path escapes workspace root")

var skippedDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"__pycache__":  {},
	".venv":        {},
}

// Workspace is a directory tree on disk. All returned paths are absolute.
type Workspace struct {
	root string
}

// NewWorkspace opens root, which must be an existing directory.
func NewWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the workspace root.
func (w *Workspace) Root() string { return w.root }

// Abs resolves path against the root and rejects anything outside it.
func (w *Workspace) Abs(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(w.root, target)
	}
	target = filepath.Clean(target)
	if target != w.root && !strings.HasPrefix(target, w.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%s: %w", path, ErrOutsideWorkspace)
	}
	return target, nil
}

// RelPath returns path relative to the root with forward slashes.
func (w *Workspace) RelPath(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// FindFiles walks the tree in lexical order and returns files whose relative path matches include
// and not exclude. Directories matched by exclude are not descended into. limit <= 0 means no limit.
func (w *Workspace) FindFiles(include, exclude string, limit int) ([]string, error) {
	if !doublestar.ValidatePattern(include) {
		return nil, fmt.Errorf("invalid include pattern %q: %w", include, doublestar.ErrBadPattern)
	}
	if exclude != "" && !doublestar.ValidatePattern(exclude) {
		return nil, fmt.Errorf("invalid exclude pattern %q: %w", exclude, doublestar.ErrBadPattern)
	}

	var out []string
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Debug("Skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == w.root {
			return nil
		}
		rel := w.RelPath(path)

		if d.IsDir() {
			if _, skip := skippedDirs[d.Name()]; skip {
				return fs.SkipDir
			}
			if exclude != "" && doublestar.MatchUnvalidated(exclude, rel+"/_") {
				return fs.SkipDir
			}
			return nil
		}

		if !doublestar.MatchUnvalidated(include, rel) {
			return nil
		}
		if exclude != "" && doublestar.MatchUnvalidated(exclude, rel) {
			return nil
		}
		out = append(out, path)
		if limit > 0 && len(out) >= limit {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("failed to search workspace: %w", err)
	}
	return out, nil
}

// ReadFile returns the content of a workspace file.
func (w *Workspace) ReadFile(path string) (string, error) {
	abs, err := w.Abs(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteFile creates or replaces a file, creating parent directories.
func (w *Workspace) WriteFile(path, content string) error {
	abs, err := w.Abs(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	return os.WriteFile(abs, []byte(content), 0o644)
}

// CreateFile creates a file that must not exist yet.
func (w *Workspace) CreateFile(path, content string) error {
	abs, err := w.Abs(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// DeleteFile removes a file.
func (w *Workspace) DeleteFile(path string) error {
	abs, err := w.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return os.Remove(abs)
}
