package testutils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"intellipy/pkg/intellitypes"
)

// MemWorkspace is an in-memory Workspace rooted at a fixed absolute path.
type MemWorkspace struct {
	mu    sync.RWMutex
	root  string
	files map[string]string // slash-separated relative path -> content

	// FindErr, when set, is returned by FindFiles.
	FindErr error
}

// NewMemWorkspace creates a workspace holding files keyed by relative slash paths.
func NewMemWorkspace(root string, files map[string]string) *MemWorkspace {
	w := &MemWorkspace{root: filepath.Clean(root), files: make(map[string]string, len(files))}
	for rel, content := range files {
		w.files[filepath.ToSlash(rel)] = content
	}
	return w
}

// Root returns the workspace root.
func (w *MemWorkspace) Root() string { return w.root }

// FindFiles matches relative paths against doublestar patterns, sorted by path.
func (w *MemWorkspace) FindFiles(include, exclude string, limit int) ([]string, error) {
	if w.FindErr != nil {
		return nil, w.FindErr
	}
	w.mu.RLock()
	rels := make([]string, 0, len(w.files))
	for rel := range w.files {
		rels = append(rels, rel)
	}
	w.mu.RUnlock()
	sort.Strings(rels)

	var out []string
	for _, rel := range rels {
		if ok, _ := doublestar.Match(include, rel); !ok {
			continue
		}
		if exclude != "" {
			if ok, _ := doublestar.Match(exclude, rel); ok {
				continue
			}
		}
		out = append(out, filepath.Join(w.root, filepath.FromSlash(rel)))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (w *MemWorkspace) key(path string) (string, error) {
	abs, err := w.Abs(path)
	if err != nil {
		return "", err
	}
	return w.RelPath(abs), nil
}

// ReadFile returns a file's content.
func (w *MemWorkspace) ReadFile(path string) (string, error) {
	k, err := w.key(path)
	if err != nil {
		return "", err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	content, ok := w.files[k]
	if !ok {
		return "", fmt.Errorf("open %s: %w", path, os.ErrNotExist)
	}
	return content, nil
}

// WriteFile creates or replaces a file.
func (w *MemWorkspace) WriteFile(path, content string) error {
	k, err := w.key(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[k] = content
	return nil
}

// CreateFile creates a file that must not exist yet.
func (w *MemWorkspace) CreateFile(path, content string) error {
	k, err := w.key(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[k]; ok {
		return fmt.Errorf("create %s: %w", path, os.ErrExist)
	}
	w.files[k] = content
	return nil
}

// DeleteFile removes a file.
func (w *MemWorkspace) DeleteFile(path string) error {
	k, err := w.key(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[k]; !ok {
		return fmt.Errorf("remove %s: %w", path, os.ErrNotExist)
	}
	delete(w.files, k)
	return nil
}

// Abs resolves path against the root and rejects paths outside it.
func (w *MemWorkspace) Abs(path string) (string, error) {
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(w.root, target)
	}
	target = filepath.Clean(target)
	if target != w.root && !strings.HasPrefix(target, w.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %s escapes workspace root", path)
	}
	return target, nil
}

// RelPath returns the slash-separated path relative to the root.
func (w *MemWorkspace) RelPath(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// Content returns a file's content by relative path.
func (w *MemWorkspace) Content(rel string) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	content, ok := w.files[rel]
	return content, ok
}

// Path returns the absolute path for a relative one.
func (w *MemWorkspace) Path(rel string) string {
	return filepath.Join(w.root, filepath.FromSlash(rel))
}

// FakeEditor is an Editor with a fixed active document.
type FakeEditor struct {
	Doc     *intellitypes.Document
	Shown   []string
	ShowErr error
}

// ActiveDocument returns Doc when set.
func (e *FakeEditor) ActiveDocument() (*intellitypes.Document, bool) {
	return e.Doc, e.Doc != nil
}

// ShowDocument records path.
func (e *FakeEditor) ShowDocument(path string) error {
	e.Shown = append(e.Shown, path)
	return e.ShowErr
}

// FakeOutline returns canned symbols per path.
type FakeOutline struct {
	Symbols map[string][]intellitypes.Symbol
	Err     error
	Calls   int
}

// DocumentSymbols returns the canned symbols for path.
func (o *FakeOutline) DocumentSymbols(_ context.Context, path string) ([]intellitypes.Symbol, error) {
	o.Calls++
	if o.Err != nil {
		return nil, o.Err
	}
	return o.Symbols[path], nil
}

// ScriptedConfirmer answers confirmation prompts from a queue and records every request.
// It cancels once the queue is empty.
type ScriptedConfirmer struct {
	mu        sync.Mutex
	Decisions []intellitypes.Decision
	Requests  []intellitypes.ConfirmationRequest
	Err       error
}

// Confirm pops the next scripted decision.
func (c *ScriptedConfirmer) Confirm(_ context.Context, req intellitypes.ConfirmationRequest) (intellitypes.Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Requests = append(c.Requests, req)
	if c.Err != nil {
		return intellitypes.DecisionCancel, c.Err
	}
	if len(c.Decisions) == 0 {
		return intellitypes.DecisionCancel, nil
	}
	d := c.Decisions[0]
	c.Decisions = c.Decisions[1:]
	return d, nil
}

// Prompts returns how many confirmations were requested.
func (c *ScriptedConfirmer) Prompts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Requests)
}

// SpyCall is one recorded provider call.
type SpyCall struct {
	Message string
	Context string
}

// SpyProvider is a Provider that records calls and replays canned replies.
// The last reply repeats once the list is exhausted.
type SpyProvider struct {
	mu      sync.Mutex
	Replies []string
	Err     error
	Calls   []SpyCall
}

// Name returns "spy".
func (p *SpyProvider) Name() string { return "spy" }

// SendMessage records the call and returns the next reply.
func (p *SpyProvider) SendMessage(_ context.Context, message string, promptContext string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, SpyCall{Message: message, Context: promptContext})
	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Replies) == 0 {
		return "", nil
	}
	reply := p.Replies[0]
	if len(p.Replies) > 1 {
		p.Replies = p.Replies[1:]
	}
	return reply, nil
}

// CallCount returns how many times SendMessage ran.
func (p *SpyProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// RunCall is one recorded command.
type RunCall struct {
	Command string
	Dir     string
}

// FakeRunner is a CommandRunner returning canned output.
type FakeRunner struct {
	Stdout string
	Stderr string
	Err    error
	Calls  []RunCall
}

// Run records the command.
func (r *FakeRunner) Run(_ context.Context, command, dir string) (string, string, error) {
	r.Calls = append(r.Calls, RunCall{Command: command, Dir: dir})
	return r.Stdout, r.Stderr, r.Err
}

// ErrFake is a generic error for failure-path tests.
var ErrFake = errors.New("fake failure")
