// Package edits tracks proposed file edits and applies them to the workspace.
package edits

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"

	"intellipy/internal/logger"
	"intellipy/pkg/intellitypes"
)

var (
	// ErrAlreadyApplied is returned when an edit is applied a second time.
	ErrAlreadyApplied = errors.New("edit already applied")
	// ErrConflict is returned when the file no longer contains the edit's original content.
	ErrConflict = errors.New("file changed since the edit was proposed")
	// ErrNoPendingEdit is returned when no edit is pending for a path.
	ErrNoPendingEdit = errors.New("no pending edit")
)

// FileStore is the part of the workspace edits are applied through.
type FileStore interface {
	ReadFile(path string) (string, error)
	WriteFile(path, content string) error
}

// Apply writes edit to the store and marks it applied. When the file differs from the edit's
// original content, the original is replaced in place if it occurs exactly once; otherwise the
// edit is rejected with ErrConflict. A missing file is created.
func Apply(store FileStore, edit *intellitypes.FileEdit) error {
	if edit.Applied {
		return ErrAlreadyApplied
	}

	current, err := store.ReadFile(edit.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		current = ""
	case err != nil:
		return fmt.Errorf("failed to read %s: %w", edit.Path, err)
	}

	next := edit.NewContent
	if current != edit.OriginalContent && current != "" && edit.OriginalContent != "" {
		if strings.Count(current, edit.OriginalContent) != 1 {
			return fmt.Errorf("%s: %w", edit.Path, ErrConflict)
		}
		next = strings.Replace(current, edit.OriginalContent, edit.NewContent, 1)
	}

	if err := store.WriteFile(edit.Path, next); err != nil {
		return fmt.Errorf("failed to write %s: %w", edit.Path, err)
	}
	edit.Applied = true
	logger.Debug("Edit applied", "path", edit.Path, "bytes", len(next))
	return nil
}

// FromUpdates builds edits from a path -> new content map, taking original content from files.
// The result is sorted by path.
func FromUpdates(updates map[string]string, files []intellitypes.FileContext) []*intellitypes.FileEdit {
	originals := make(map[string]string, len(files))
	for _, f := range files {
		originals[f.Path] = f.Content
	}

	out := make([]*intellitypes.FileEdit, 0, len(updates))
	for path, content := range updates {
		out = append(out, &intellitypes.FileEdit{
			Path:            path,
			OriginalContent: originals[path],
			NewContent:      content,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// PendingSet holds at most one edit per path; adding an edit for a path supersedes the previous one.
type PendingSet struct {
	mu    sync.Mutex
	edits map[string]*intellitypes.FileEdit
}

// NewPendingSet creates an empty set.
func NewPendingSet() *PendingSet {
	return &PendingSet{edits: make(map[string]*intellitypes.FileEdit)}
}

// Add records edits, superseding earlier proposals for the same paths.
func (p *PendingSet) Add(edits ...*intellitypes.FileEdit) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range edits {
		if e == nil {
			continue
		}
		p.edits[e.Path] = e
	}
}

// Replace drops every edit and records edits instead.
func (p *PendingSet) Replace(edits ...*intellitypes.FileEdit) {
	p.mu.Lock()
	p.edits = make(map[string]*intellitypes.FileEdit, len(edits))
	p.mu.Unlock()
	p.Add(edits...)
}

// Get returns the current edit for path.
func (p *PendingSet) Get(path string) (*intellitypes.FileEdit, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.edits[path]
	return e, ok
}

// Pending returns the unapplied edits sorted by path.
func (p *PendingSet) Pending() []*intellitypes.FileEdit {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*intellitypes.FileEdit
	for _, e := range p.edits {
		if !e.Applied {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Len returns the number of unapplied edits.
func (p *PendingSet) Len() int {
	return len(p.Pending())
}

// Apply applies the current edit for path.
func (p *PendingSet) Apply(store FileStore, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.edits[path]
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrNoPendingEdit)
	}
	return Apply(store, e)
}

// ApplyAll applies every unapplied edit in path order. It keeps going after a failure and
// returns the applied paths with the joined errors.
func (p *PendingSet) ApplyAll(store FileStore) ([]string, error) {
	var applied []string
	var errs []error
	for _, e := range p.Pending() {
		if err := p.Apply(store, e.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		applied = append(applied, e.Path)
	}
	return applied, errors.Join(errs...)
}

// Diff returns a line diff from original to proposed. Each line is prefixed with "+ ", "- " or
// "  ". Identical inputs produce an empty string.
func Diff(original, proposed string) string {
	if original == proposed {
		return ""
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(original, proposed)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out strings.Builder
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out.WriteString(prefix)
			out.WriteString(strings.TrimSuffix(line, "\n"))
			out.WriteString("\n")
		}
	}
	return out.String()
}
