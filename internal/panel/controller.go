// Package panel is the UI-agnostic chat panel controller. A front end posts Actions to Handle and
// receives Posts through a Sink.
package panel

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"intellipy/internal/analyzer"
	"intellipy/internal/chat"
	"intellipy/internal/edits"
	"intellipy/internal/logger"
	"intellipy/internal/mentions"
	"intellipy/pkg/intellitypes"
)

// ActionType names a user action posted by the front end.
type ActionType string

// Supported actions.
const (
	ActionSendMessage        ActionType = "sendMessage"
	ActionAnalyzeCurrentFile ActionType = "analyzeCurrentFile"
	ActionApplyChanges       ActionType = "applyChanges"
	ActionShowDiff           ActionType = "showDiff"
	ActionSetMode            ActionType = "setMode"
)

// Fixed replies.
const (
	MsgOpenPythonFile = "Please open a Python file to analyze."
	MsgNoPending      = "No pending changes to apply."
	MsgNoDifferences  = "No differences."

	analyzePrompt = "Analyze this Python code and provide suggestions for improvements. " +
		"If you suggest code changes, format them with the file path using ### File: path/to/file.py " +
		"followed by the code in markdown blocks."
)

// Action is one message from the front end.
type Action struct {
	Type     ActionType `json:"type"`
	Value    string     `json:"value,omitempty"`    // message text or mode name
	FilePath string     `json:"filePath,omitempty"` // showDiff target
	Content  string     `json:"content,omitempty"`  // showDiff proposed content
}

// FileAction is a file offered for diff/apply alongside a reply.
type FileAction struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// Post is one message to the front end.
type Post struct {
	Role    intellitypes.Role `json:"role"`
	Content string            `json:"content"`
	Files   []FileAction      `json:"files,omitempty"`
}

// Sink receives posts.
type Sink interface {
	Post(p Post)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Post)

// Post calls f.
func (f SinkFunc) Post(p Post) { f(p) }

// Deps are the collaborators of a Controller. Mentions, Editor and Analyzer may be nil.
type Deps struct {
	Manager  *chat.Manager
	Provider chat.ProviderFunc
	Analyzer *analyzer.Analyzer
	Mentions *mentions.Registry
	Editor   intellitypes.Editor
	Store    edits.FileStore
	Sink     Sink
}

// Controller routes panel actions.
type Controller struct {
	deps    Deps
	pending *edits.PendingSet

	mu           sync.Mutex
	history      []Post
	lastAnalyzed []intellitypes.FileContext
}

// NewController creates a Controller.
func NewController(deps Deps) *Controller {
	if deps.Sink == nil {
		deps.Sink = SinkFunc(func(Post) {})
	}
	return &Controller{deps: deps, pending: edits.NewPendingSet()}
}

// Handle performs one action. Every outcome, including failures, is reported through the sink;
// only an unknown action type returns an error.
func (c *Controller) Handle(ctx context.Context, a Action) error {
	logger.ServiceOperation("panel", string(a.Type))
	switch a.Type {
	case ActionSendMessage:
		c.sendMessage(ctx, a.Value)
	case ActionAnalyzeCurrentFile:
		c.analyzeCurrentFile(ctx)
	case ActionApplyChanges:
		c.applyChanges()
	case ActionShowDiff:
		c.showDiff(a.FilePath, a.Content)
	case ActionSetMode:
		c.setMode(a.Value)
	default:
		return fmt.Errorf("unknown panel action %q", a.Type)
	}
	return nil
}

// History returns every post so far.
func (c *Controller) History() []Post {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Post, len(c.history))
	copy(out, c.history)
	return out
}

// Pending returns the changes awaiting applyChanges.
func (c *Controller) Pending() []*intellitypes.FileEdit {
	return c.pending.Pending()
}

// LastAnalyzed returns the files of the last analyzeCurrentFile run.
func (c *Controller) LastAnalyzed() []intellitypes.FileContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAnalyzed
}

func (c *Controller) post(role intellitypes.Role, content string, files []FileAction) {
	p := Post{Role: role, Content: content, Files: files}
	c.mu.Lock()
	c.history = append(c.history, p)
	c.mu.Unlock()
	c.deps.Sink.Post(p)
}

func (c *Controller) reply(content string) {
	c.post(intellitypes.RoleAssistant, content, nil)
}

func (c *Controller) activePython() (*intellitypes.Document, bool) {
	if c.deps.Editor == nil {
		return nil, false
	}
	doc, ok := c.deps.Editor.ActiveDocument()
	if !ok || doc.LanguageID != "python" {
		return nil, false
	}
	return doc, true
}

func (c *Controller) sendMessage(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.post(intellitypes.RoleUser, text, nil)

	if c.deps.Manager == nil {
		c.reply("Error: chat is not available")
		return
	}

	message, rc := c.requestContext(ctx, text)
	reply := c.deps.Manager.ProcessMessage(ctx, message, rc)

	if reply.Metadata != nil && len(reply.Metadata.Edits) > 0 {
		c.pending.Add(reply.Metadata.Edits...)
		c.post(intellitypes.RoleAssistant, reply.Content, fileActions(reply.Metadata.Edits))
		return
	}

	c.mu.Lock()
	analyzed := c.lastAnalyzed
	c.mu.Unlock()
	if len(rc.Files) > 0 && len(analyzed) > 0 {
		if c.offerUpdates(reply.Content, analyzed) {
			return
		}
	}
	c.reply(reply.Content)
}

// requestContext resolves mentions and gathers the files related to the active Python document.
func (c *Controller) requestContext(ctx context.Context, text string) (string, intellitypes.RequestContext) {
	var rc intellitypes.RequestContext
	seen := make(map[string]struct{})
	add := func(files ...intellitypes.FileContext) {
		for _, f := range files {
			if _, dup := seen[f.Path]; dup {
				continue
			}
			seen[f.Path] = struct{}{}
			rc.Files = append(rc.Files, f)
		}
	}

	if doc, ok := c.activePython(); ok {
		rc.SelectedText = doc.SelectedText()
		if c.deps.Analyzer != nil {
			files, err := c.deps.Analyzer.GetRelevantFiles(ctx, doc.Path)
			if err != nil {
				logger.Warn("Failed to collect related files", "path", doc.Path, "error", err)
			}
			add(files...)
		}
	}

	message := text
	if c.deps.Mentions != nil {
		res := c.deps.Mentions.ResolveMentions(ctx, text)
		message = res.Text
		rc.Symbols = res.Symbols
		rc.IncludeWorkspace = res.IncludeWorkspace
		for _, p := range res.Files {
			add(c.fileContext(p))
		}
	}
	return message, rc
}

func (c *Controller) fileContext(path string) intellitypes.FileContext {
	fc := intellitypes.FileContext{Path: path, RelativePath: filepath.Base(path)}
	if ws, ok := c.deps.Store.(intellitypes.Workspace); ok {
		fc.RelativePath = ws.RelPath(path)
	}
	if c.deps.Store != nil {
		content, err := c.deps.Store.ReadFile(path)
		if err != nil {
			logger.Debug("Failed to read mentioned file", "path", path, "error", err)
		}
		fc.Content = content
	}
	return fc
}

func (c *Controller) analyzeCurrentFile(ctx context.Context) {
	doc, ok := c.activePython()
	if !ok || c.deps.Analyzer == nil {
		c.reply(MsgOpenPythonFile)
		return
	}

	files, err := c.deps.Analyzer.GetRelevantFiles(ctx, doc.Path)
	if err != nil {
		c.reply("Error analyzing file: " + err.Error())
		return
	}
	c.mu.Lock()
	c.lastAnalyzed = files
	c.mu.Unlock()

	response, err := c.send(ctx, analyzePrompt, analyzer.ConsolidateCode(files))
	if err != nil {
		c.reply("Error analyzing file: " + err.Error())
		return
	}
	if !c.offerUpdates(response, files) {
		c.reply(response)
	}
}

func (c *Controller) send(ctx context.Context, prompt, promptContext string) (string, error) {
	if c.deps.Provider == nil {
		return "", fmt.Errorf("no provider configured")
	}
	p, err := c.deps.Provider()
	if err != nil {
		return "", err
	}
	return p.SendMessage(ctx, prompt, promptContext)
}

// offerUpdates turns "### File:" blocks of response into pending changes. It reports whether any
// were found, in which case the reply has been posted with file actions.
func (c *Controller) offerUpdates(response string, files []intellitypes.FileContext) bool {
	updates := analyzer.ParseResponse(response, files)
	if len(updates) == 0 {
		return false
	}
	proposed := edits.FromUpdates(updates, files)
	c.pending.Replace(proposed...)
	c.post(intellitypes.RoleAssistant, response, fileActions(proposed))
	return true
}

func fileActions(list []*intellitypes.FileEdit) []FileAction {
	out := make([]FileAction, 0, len(list))
	for _, e := range list {
		out = append(out, FileAction{Path: e.Path, Name: filepath.Base(e.Path)})
	}
	return out
}

func (c *Controller) applyChanges() {
	if c.pending.Len() == 0 {
		c.reply(MsgNoPending)
		return
	}
	if c.deps.Store == nil {
		c.reply("Error applying changes: no workspace available")
		return
	}

	applied, err := c.pending.ApplyAll(c.deps.Store)
	if len(applied) > 0 {
		names := make([]string, 0, len(applied))
		for _, p := range applied {
			names = append(names, filepath.Base(p))
		}
		c.post(intellitypes.RoleSystem, fmt.Sprintf("Applied changes to %d file(s): %s", len(applied), strings.Join(names, ", ")), nil)
	}
	if err != nil {
		c.reply("Error applying changes: " + err.Error())
	}
}

func (c *Controller) showDiff(path, content string) {
	if path == "" {
		c.reply("Error: showDiff requires a file path")
		return
	}
	if content == "" {
		e, ok := c.pending.Get(path)
		if !ok {
			c.reply("Error: no proposed content for " + path)
			return
		}
		content = e.NewContent
	}

	current := ""
	if c.deps.Store != nil {
		if existing, err := c.deps.Store.ReadFile(path); err == nil {
			current = existing
		}
	}

	diff := edits.Diff(current, content)
	if diff == "" {
		c.post(intellitypes.RoleSystem, MsgNoDifferences, nil)
		return
	}
	c.post(intellitypes.RoleSystem, fmt.Sprintf("Diff for %s:\n```diff\n%s```", filepath.Base(path), diff), nil)
}

func (c *Controller) setMode(value string) {
	mode, err := intellitypes.ParseChatMode(value)
	if err != nil {
		c.reply("Error: " + err.Error())
		return
	}
	if c.deps.Manager != nil {
		c.deps.Manager.SetMode(mode)
	}
	c.post(intellitypes.RoleSystem, "Mode set to "+string(mode), nil)
}
