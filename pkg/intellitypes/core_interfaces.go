// Package intellitypes defines the shared data model for IntelliPy.
// This file contains the interfaces of the collaborators the core calls into: the model provider
// and the editor host (documents, workspace files, outlines and user confirmation).
package intellitypes

import "context"

// Provider turns a prompt plus optional context into a response string.
// Implementations translate to and from their backend's wire format.
type Provider interface {
	// Name returns a human-readable provider name.
	Name() string

	// SendMessage sends message with the serialized promptContext and returns the reply text.
	SendMessage(ctx context.Context, message string, promptContext string) (string, error)
}

// Document is an open editor document.
type Document struct {
	Path       string
	LanguageID string
	Text       string
	Selection  *Range // nil or empty means no selection
}

// SelectedText returns the text covered by the selection, or "" when there is none.
func (d *Document) SelectedText() string {
	if d == nil || d.Selection == nil || d.Selection.IsEmpty() {
		return ""
	}
	return TextInRange(d.Text, *d.Selection)
}

// Editor exposes the host's active document.
type Editor interface {
	ActiveDocument() (*Document, bool)
	// ShowDocument surfaces a file in the host UI.
	ShowDocument(path string) error
}

// Workspace is the host's view of the project files.
// All returned paths are absolute.
type Workspace interface {
	Root() string
	FindFiles(include, exclude string, limit int) ([]string, error)
	ReadFile(path string) (string, error)
	WriteFile(path, content string) error
	CreateFile(path, content string) error
	DeleteFile(path string) error
	Abs(path string) (string, error)
	RelPath(path string) string
}

// OutlineProvider answers document symbol queries.
type OutlineProvider interface {
	DocumentSymbols(ctx context.Context, path string) ([]Symbol, error)
}

// Decision is a user's answer to a confirmation prompt.
type Decision int

// Confirmation outcomes.
const (
	DecisionCancel Decision = iota
	DecisionAllowOnce
	DecisionAllowAlways
)

// ConfirmationRequest describes the action awaiting approval.
type ConfirmationRequest struct {
	Tool    string
	Summary string
	Args    map[string]any
}

// Confirmer asks the user to approve a side-effecting action.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmationRequest) (Decision, error)
}

// CommandRunner executes a shell command line.
type CommandRunner interface {
	Run(ctx context.Context, command, dir string) (stdout string, stderr string, err error)
}
