// Package intellitypes defines the shared data model for IntelliPy.
// This file contains the chat types: modes, messages, sessions, per-session context and file edits.
package intellitypes

import (
	"fmt"
	"strings"
	"time"
)

// ChatMode selects which conversation protocol a message is processed with.
type ChatMode string

const (
	// ModeAsk forwards the question and assembled context as-is.
	ModeAsk ChatMode = "ask"
	// ModeEdit asks for a replacement of the active selection or document.
	ModeEdit ChatMode = "edit"
	// ModeAgent runs a planning call followed by an execution call.
	ModeAgent ChatMode = "agent"
)

// AllModes lists the modes in display order.
var AllModes = []ChatMode{ModeAsk, ModeEdit, ModeAgent}

// ParseChatMode converts user input into a ChatMode (case-insensitive).
func ParseChatMode(s string) (ChatMode, error) {
	switch ChatMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAsk:
		return ModeAsk, nil
	case ModeEdit:
		return ModeEdit, nil
	case ModeAgent:
		return ModeAgent, nil
	default:
		return "", fmt.Errorf("unknown chat mode %q (expected ask, edit or agent)", s)
	}
}

// Role identifies the author of a ChatMessage.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is a single entry of a session's conversation.
// Messages are not modified after they are appended to a session.
type ChatMessage struct {
	Role     Role             `json:"role"`
	Content  string           `json:"content"`
	Mode     ChatMode         `json:"mode,omitempty"`     // Empty when the message is not tied to a mode
	Metadata *MessageMetadata `json:"metadata,omitempty"` // Optional references, tool use and edits
}

// MessageMetadata carries the structured side of an assistant reply.
type MessageMetadata struct {
	Files     []string         `json:"files,omitempty"`     // Referenced file paths
	Symbols   []string         `json:"symbols,omitempty"`   // Referenced symbol labels
	Workspace bool             `json:"workspace,omitempty"` // Whole workspace was in scope
	ToolsUsed []ToolInvocation `json:"tools_used,omitempty"`
	Edits     []*FileEdit      `json:"edits,omitempty"`
}

// FileEdit is a proposed full replacement for one file (or one selection of it).
// Applied moves from false to true exactly once; a newer FileEdit for the same path supersedes it.
type FileEdit struct {
	Path            string `json:"path"`
	OriginalContent string `json:"original_content"`
	NewContent      string `json:"new_content"`
	Applied         bool   `json:"applied"`
}

// ChatContext holds the references accumulated by a session.
// Membership only; iteration order is unspecified.
type ChatContext struct {
	ActiveFile        string              `json:"active_file,omitempty"`
	SelectedText      string              `json:"selected_text,omitempty"`
	ReferencedFiles   map[string]struct{} `json:"referenced_files"`
	ReferencedSymbols map[string]struct{} `json:"referenced_symbols"`
}

// NewChatContext returns a ChatContext with initialized sets.
func NewChatContext() ChatContext {
	return ChatContext{
		ReferencedFiles:   make(map[string]struct{}),
		ReferencedSymbols: make(map[string]struct{}),
	}
}

// ChatSession is an in-memory conversation. Sessions are never persisted.
type ChatSession struct {
	ID        string        `json:"id"`
	Mode      ChatMode      `json:"mode"`
	Messages  []ChatMessage `json:"messages"` // Append-only, insertion order is conversation order
	Context   ChatContext   `json:"context"`
	CreatedAt time.Time     `json:"created_at"`
}

// Clone returns a copy that shares no slices or maps with s. Message metadata is shared.
func (s *ChatSession) Clone() *ChatSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = append([]ChatMessage(nil), s.Messages...)
	out.Context.ReferencedFiles = cloneSet(s.Context.ReferencedFiles)
	out.Context.ReferencedSymbols = cloneSet(s.Context.ReferencedSymbols)
	return &out
}

func cloneSet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

// FileContext is a snapshot of one file assembled for a prompt.
type FileContext struct {
	Path         string `json:"path"`          // Absolute path, the file identity
	Content      string `json:"content"`       // Content at analysis time
	RelativePath string `json:"relative_path"` // Path relative to the workspace root
}

// RequestContext is the context handed to the chat manager together with a user message.
type RequestContext struct {
	Files            []FileContext
	SelectedText     string
	Symbols          []string
	IncludeWorkspace bool
}

// FilePaths returns the absolute paths of the files in the request, in order.
func (r RequestContext) FilePaths() []string {
	if len(r.Files) == 0 {
		return nil
	}
	paths := make([]string, 0, len(r.Files))
	for _, f := range r.Files {
		paths = append(paths, f.Path)
	}
	return paths
}
