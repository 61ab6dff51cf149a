// Package completion produces inline code completions from the active provider.
package completion

import (
	"context"
	"fmt"
	"strings"

	"intellipy/internal/config"
	"intellipy/internal/logger"
	"intellipy/pkg/intellitypes"
)

const (
	maxContextLines = 10
	minPrefixLength = 3
)

// ProviderFunc resolves the provider for one request.
type ProviderFunc func() (intellitypes.Provider, error)

// Request locates the cursor inside a document. Line and Col are zero-based.
type Request struct {
	Text       string
	LanguageID string
	Line       int
	Col        int
}

// Engine asks the provider for a continuation of the line at the cursor.
type Engine struct {
	settings config.Source
	resolve  ProviderFunc
}

// NewEngine creates an Engine. settings is read on every call.
func NewEngine(settings config.Source, resolve ProviderFunc) *Engine {
	return &Engine{settings: settings, resolve: resolve}
}

// Enabled reports whether inline completions are switched on.
func (e *Engine) Enabled() bool {
	if e.settings == nil {
		return true
	}
	return e.settings.GetBool(config.Key(config.KeyEnableInlineCompletions))
}

// Suggest returns the trimmed suggestion for req, or "" when completions are disabled, the
// line prefix is too short or ends in '.' or ';', or the provider has nothing to offer.
func (e *Engine) Suggest(ctx context.Context, req Request) (string, error) {
	if !e.Enabled() {
		return "", nil
	}

	prefix, window := cursorWindow(req)
	if len(strings.TrimSpace(prefix)) < minPrefixLength ||
		strings.HasSuffix(prefix, ".") || strings.HasSuffix(prefix, ";") {
		return "", nil
	}

	if e.resolve == nil {
		return "", fmt.Errorf("no provider configured")
	}
	p, err := e.resolve()
	if err != nil {
		return "", err
	}

	response, err := p.SendMessage(ctx, Prompt(window, req.LanguageID), "")
	if err != nil {
		logger.Debug("Inline completion failed", "provider", p.Name(), "error", err)
		return "", err
	}
	return strings.TrimSpace(response), nil
}

// cursorWindow returns the current line up to the cursor and the window of up to ten preceding
// lines followed by that prefix.
func cursorWindow(req Request) (string, string) {
	lines := strings.Split(req.Text, "\n")
	line := req.Line
	if line < 0 {
		line = 0
	}
	if line >= len(lines) {
		line = len(lines) - 1
	}

	current := lines[line]
	col := req.Col
	if col < 0 {
		col = 0
	}
	if col > len(current) {
		col = len(current)
	}
	prefix := current[:col]

	start := line - maxContextLines
	if start < 0 {
		start = 0
	}
	window := append(append([]string{}, lines[start:line]...), prefix)
	return prefix, strings.Join(window, "\n")
}

// Prompt builds the completion prompt for window.
func Prompt(window, languageID string) string {
	return fmt.Sprintf("Complete this %s code. Only provide the completion, no explanations:\n\n%s\n\n"+
		"Context: You're helping complete code. The user is at the end of the last line. "+
		"Provide a natural continuation that makes sense in context. "+
		"Keep it concise and focused on the immediate next logical step.\n\nCompletion:", languageID, window)
}
