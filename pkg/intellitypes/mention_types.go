// Package intellitypes defines the shared data model for IntelliPy.
// This file contains mention and outline types.
package intellitypes

// MentionType classifies a mentionable entry.
type MentionType string

// Mention kinds.
const (
	MentionFile      MentionType = "file"
	MentionSymbol    MentionType = "symbol"
	MentionWorkspace MentionType = "workspace"
)

// Range is a zero-based line/column span inside a document.
type Range struct {
	StartLine int `json:"start_line"`
	StartCol  int `json:"start_col"`
	EndLine   int `json:"end_line"`
	EndCol    int `json:"end_col"`
}

// IsEmpty reports whether the range covers no text.
func (r Range) IsEmpty() bool {
	return r.StartLine == r.EndLine && r.StartCol == r.EndCol
}

// MentionableItem is an entry that can be referenced with an @-token.
type MentionableItem struct {
	Type   MentionType `json:"type"`
	Label  string      `json:"label"` // Always starts with '@'
	Detail string      `json:"detail"`
	Path   string      `json:"path,omitempty"`
	Range  *Range      `json:"range,omitempty"`
}

// Symbol is a node of a document outline.
type Symbol struct {
	Name     string
	Kind     string // "Class", "Function", "Method", ...
	Range    Range
	Children []Symbol
}
