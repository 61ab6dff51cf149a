// Package intellitypes defines the shared data model for IntelliPy.
// This file contains the tool execution types shared by the tool system and the chat manager.
package intellitypes

// ToolResult is the outcome of a tool execution.
// A successful result carries Output; a failed one carries Error.
type ToolResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// Valid reports whether the result has exactly one of the two valid readings:
// success with no error text, or failure with an error text.
func (r ToolResult) Valid() bool {
	if r.Success {
		return r.Error == ""
	}
	return r.Error != ""
}

// ToolInvocation records one tool call made while answering a message.
type ToolInvocation struct {
	Name   string         `json:"name"`
	Args   map[string]any `json:"args"`
	Result ToolResult     `json:"result"`
}
