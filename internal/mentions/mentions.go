// Package mentions tracks the @-referencable entries of a workspace and resolves @-tokens in user input.
package mentions

import (
	"context"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	"intellipy/internal/logger"
	"intellipy/pkg/intellitypes"
)

const (
	workspaceLabel   = "@workspace"
	fileInclude      = "**/*.py"
	fileExclude      = "**/node_modules/**"
	maxTrackedFiles  = 100
	maxCompletions   = 20
	symbolDetailTail = " in current file"
)

var mentionPattern = regexp.MustCompile(`@[\w.\-/]+`)

// Resolution is the outcome of ResolveMentions.
type Resolution struct {
	Text             string   // input with every resolved mention removed, trimmed
	Files            []string // absolute paths of mentioned files, in mention order
	Symbols          []string // mentioned symbol labels
	IncludeWorkspace bool
}

// Registry holds the mentionable entries. File entries are rebuilt as a whole whenever the
// workspace file set changes; Invalidate marks them stale so the next lookup rebuilds first.
type Registry struct {
	workspace intellitypes.Workspace
	editor    intellitypes.Editor
	outline   intellitypes.OutlineProvider

	mu    sync.RWMutex
	items map[string]intellitypes.MentionableItem
	stale bool
}

// NewRegistry creates a registry seeded with @workspace. Call Refresh to load file entries.
// editor and outline may be nil, which disables symbol mentions.
func NewRegistry(ws intellitypes.Workspace, editor intellitypes.Editor, outline intellitypes.OutlineProvider) *Registry {
	r := &Registry{
		workspace: ws,
		editor:    editor,
		outline:   outline,
		items:     make(map[string]intellitypes.MentionableItem),
		stale:     ws != nil,
	}
	r.items[workspaceLabel] = intellitypes.MentionableItem{
		Type:   intellitypes.MentionWorkspace,
		Label:  workspaceLabel,
		Detail: "Include all workspace files in context",
	}
	return r
}

// Invalidate marks file entries stale. Safe to call from a file watcher goroutine.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.stale = true
	r.mu.Unlock()
}

// Refresh clears every file entry and regenerates them from the workspace.
func (r *Registry) Refresh() error {
	if r.workspace == nil {
		return nil
	}
	files, err := r.workspace.FindFiles(fileInclude, fileExclude, maxTrackedFiles)
	if err != nil {
		logger.Warn("Failed to enumerate workspace files for mentions", "error", err)
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, item := range r.items {
		if item.Type == intellitypes.MentionFile {
			delete(r.items, key)
		}
	}
	for _, file := range files {
		rel := r.workspace.RelPath(file)
		label := "@" + path.Base(rel)
		r.items[label] = intellitypes.MentionableItem{
			Type:   intellitypes.MentionFile,
			Label:  label,
			Detail: rel,
			Path:   file,
		}
	}
	r.stale = false
	logger.Debug("Mention registry refreshed", "files", len(files))
	return nil
}

func (r *Registry) ensureFresh() {
	r.mu.RLock()
	stale := r.stale
	r.mu.RUnlock()
	if stale {
		_ = r.Refresh()
	}
}

// Items returns every registered entry sorted by label.
func (r *Registry) Items() []intellitypes.MentionableItem {
	r.ensureFresh()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]intellitypes.MentionableItem, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

func (r *Registry) lookup(label string) (intellitypes.MentionableItem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[label]
	return item, ok
}

// ExtractMentions returns the @-tokens in text in order of appearance.
func ExtractMentions(text string) []string {
	return mentionPattern.FindAllString(text, -1)
}

// ResolveMentions classifies each mention, strips resolved ones from the text and leaves
// unknown ones untouched.
func (r *Registry) ResolveMentions(ctx context.Context, text string) Resolution {
	r.ensureFresh()

	res := Resolution{}
	resolved := make(map[string]struct{})
	seen := make(map[string]struct{})
	var symbols map[string]intellitypes.MentionableItem

	for _, mention := range ExtractMentions(text) {
		if _, dup := seen[mention]; dup {
			continue
		}
		seen[mention] = struct{}{}

		item, ok := r.lookup(mention)
		if !ok {
			if symbols == nil {
				symbols = r.activeSymbolIndex(ctx)
			}
			item, ok = symbols[mention]
		}
		if !ok {
			continue
		}

		switch item.Type {
		case intellitypes.MentionFile:
			if item.Path != "" {
				res.Files = append(res.Files, item.Path)
			}
		case intellitypes.MentionSymbol:
			res.Symbols = append(res.Symbols, mention)
		case intellitypes.MentionWorkspace:
			res.IncludeWorkspace = true
		}
		resolved[mention] = struct{}{}
	}

	// Whole tokens only, so @util.py never eats into @util.pyx.
	stripped := mentionPattern.ReplaceAllStringFunc(text, func(tok string) string {
		if _, ok := resolved[tok]; ok {
			return ""
		}
		return tok
	})
	res.Text = strings.TrimSpace(stripped)
	return res
}

// Completions lists entries whose label contains query, case-insensitively. Symbols of the active
// document are included when the query contains '@'. At most 20 entries are returned.
func (r *Registry) Completions(ctx context.Context, query string) []intellitypes.MentionableItem {
	term := strings.ToLower(query)

	var out []intellitypes.MentionableItem
	for _, item := range r.Items() {
		if strings.Contains(strings.ToLower(item.Label), term) {
			out = append(out, item)
		}
	}

	if strings.Contains(term, "@") {
		for _, item := range r.activeSymbols(ctx) {
			if strings.Contains(strings.ToLower(item.Label), term) {
				out = append(out, item)
			}
		}
	}

	if len(out) > maxCompletions {
		out = out[:maxCompletions]
	}
	return out
}

func (r *Registry) activeSymbols(ctx context.Context) []intellitypes.MentionableItem {
	if r.editor == nil || r.outline == nil {
		return nil
	}
	doc, ok := r.editor.ActiveDocument()
	if !ok {
		return nil
	}
	symbols, err := r.outline.DocumentSymbols(ctx, doc.Path)
	if err != nil {
		logger.Debug("Outline query failed", "path", doc.Path, "error", err)
		return nil
	}
	return FlattenSymbols(symbols)
}

func (r *Registry) activeSymbolIndex(ctx context.Context) map[string]intellitypes.MentionableItem {
	index := make(map[string]intellitypes.MentionableItem)
	for _, item := range r.activeSymbols(ctx) {
		if _, exists := index[item.Label]; !exists {
			index[item.Label] = item
		}
	}
	return index
}

// FlattenSymbols turns an outline tree into mention entries labeled @parent.child, in pre-order.
// It walks the tree with an explicit stack so depth is bounded only by memory.
func FlattenSymbols(symbols []intellitypes.Symbol) []intellitypes.MentionableItem {
	type frame struct {
		symbol intellitypes.Symbol
		prefix string
	}

	stack := make([]frame, 0, len(symbols))
	for i := len(symbols) - 1; i >= 0; i-- {
		stack = append(stack, frame{symbol: symbols[i]})
	}

	var out []intellitypes.MentionableItem
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		name := top.prefix + top.symbol.Name
		rng := top.symbol.Range
		out = append(out, intellitypes.MentionableItem{
			Type:   intellitypes.MentionSymbol,
			Label:  "@" + name,
			Detail: kindName(top.symbol.Kind) + symbolDetailTail,
			Range:  &rng,
		})

		children := top.symbol.Children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{symbol: children[i], prefix: name + "."})
		}
	}
	return out
}

func kindName(kind string) string {
	if kind == "" {
		return "Symbol"
	}
	return kind
}
