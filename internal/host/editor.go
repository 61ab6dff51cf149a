package host

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"intellipy/internal/logger"
	"intellipy/pkg/intellitypes"
)

// ErrNoActiveEditor is returned when an operation needs an open document and there is none.
var ErrNoActiveEditor = errors.New("no active editor")

var languageIDs = map[string]string{
	".py":   "python",
	".pyi":  "python",
	".md":   "markdown",
	".js":   "javascript",
	".ts":   "typescript",
	".go":   "go",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".sh":   "shellscript",
}

// LanguageID maps a file name to an editor language identifier.
func LanguageID(path string) string {
	if id, ok := languageIDs[strings.ToLower(filepath.Ext(path))]; ok {
		return id
	}
	return "plaintext"
}

// StaticEditor is an editor whose active document is chosen explicitly, e.g. from command-line
// flags. The document text is read from the workspace on every access.
type StaticEditor struct {
	ws *Workspace

	mu        sync.Mutex
	path      string
	selection *intellitypes.Range
	shown     []string
}

// NewStaticEditor creates an editor with no open document.
func NewStaticEditor(ws *Workspace) *StaticEditor {
	return &StaticEditor{ws: ws}
}

// Open makes path the active document and clears the selection.
func (e *StaticEditor) Open(path string) error {
	abs, err := e.ws.Abs(path)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.path = abs
	e.selection = nil
	return nil
}

// Close clears the active document.
func (e *StaticEditor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.path = ""
	e.selection = nil
}

// Select sets the selection of the active document.
func (e *StaticEditor) Select(r *intellitypes.Range) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selection = r
}

// ActiveDocument returns the open document with its current text. A document that can no
// longer be read counts as closed.
func (e *StaticEditor) ActiveDocument() (*intellitypes.Document, bool) {
	e.mu.Lock()
	path, sel := e.path, e.selection
	e.mu.Unlock()
	if path == "" {
		return nil, false
	}

	text, err := e.ws.ReadFile(path)
	if err != nil {
		logger.Debug("Active document unreadable", "path", path, "error", err)
		return nil, false
	}
	return &intellitypes.Document{
		Path:       path,
		LanguageID: LanguageID(path),
		Text:       text,
		Selection:  sel,
	}, true
}

// ShowDocument makes path the active document.
func (e *StaticEditor) ShowDocument(path string) error {
	if err := e.Open(path); err != nil {
		return err
	}
	e.mu.Lock()
	e.shown = append(e.shown, path)
	e.mu.Unlock()
	logger.Info("Opened document", "path", path)
	return nil
}

// Shown lists the documents surfaced through ShowDocument.
func (e *StaticEditor) Shown() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.shown...)
}

// ParseLineRange parses "N" or "N-M" (one-based, inclusive) into a whole-line selection.
// The end column is left at a large value and clamped when the text is extracted.
func ParseLineRange(spec string) (*intellitypes.Range, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	startText, endText, found := strings.Cut(spec, "-")
	if !found {
		endText = startText
	}
	start, err := strconv.Atoi(strings.TrimSpace(startText))
	if err != nil {
		return nil, fmt.Errorf("invalid line range %q", spec)
	}
	end, err := strconv.Atoi(strings.TrimSpace(endText))
	if err != nil {
		return nil, fmt.Errorf("invalid line range %q", spec)
	}
	if start < 1 || end < start {
		return nil, fmt.Errorf("invalid line range %q", spec)
	}
	return &intellitypes.Range{StartLine: start - 1, StartCol: 0, EndLine: end - 1, EndCol: maxColumn}, nil
}

const maxColumn = 1 << 30
