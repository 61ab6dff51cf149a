package chat

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"intellipy/internal/analyzer"
	"intellipy/internal/logger"
	"intellipy/pkg/intellitypes"
)

// NoEditorMessage is the Edit mode reply when no document is open.
const NoEditorMessage = "No active editor found. Please open a file to edit."

const (
	editInstruction = "\n\nProvide the edited code. Return ONLY the modified code without explanations."
	planLabel       = "Plan:\n"
	executionLabel  = "Execution:\n"
	toolsLabel      = "Tools:\n"
)

const toolSyntax = "To use a tool, reply with a fenced block tagged tool containing JSON, for example:\n" +
	"```tool\n{\"name\": \"readFile\", \"args\": {\"path\": \"main.py\"}}\n```"

var toolBlock = regexp.MustCompile("```tool[ \\t]*\\n([\\s\\S]*?)```")

// BuildContextString serializes the request files as "### File:" fenced blocks in order and appends
// the selected text as its own block. An empty request yields "".
func BuildContextString(rc intellitypes.RequestContext) string {
	var parts []string
	if len(rc.Files) > 0 {
		parts = append(parts, analyzer.ConsolidateCode(rc.Files))
	}
	if rc.SelectedText != "" {
		parts = append(parts, "Selected Text:\n"+rc.SelectedText)
	}
	return strings.Join(parts, "\n\n")
}

func (m *Manager) processAsk(ctx context.Context, message string, rc intellitypes.RequestContext) intellitypes.ChatMessage {
	response, err := m.send(ctx, message, BuildContextString(rc))
	if err != nil {
		return errorMessage(intellitypes.ModeAsk, err)
	}
	return intellitypes.ChatMessage{
		Role:    intellitypes.RoleAssistant,
		Content: response,
		Mode:    intellitypes.ModeAsk,
		Metadata: &intellitypes.MessageMetadata{
			Files:     rc.FilePaths(),
			Symbols:   rc.Symbols,
			Workspace: rc.IncludeWorkspace,
		},
	}
}

func (m *Manager) processEdit(ctx context.Context, message string) intellitypes.ChatMessage {
	var doc *intellitypes.Document
	if m.editor != nil {
		if d, ok := m.editor.ActiveDocument(); ok {
			doc = d
		}
	}
	if doc == nil {
		return intellitypes.ChatMessage{
			Role:    intellitypes.RoleAssistant,
			Content: NoEditorMessage,
			Mode:    intellitypes.ModeEdit,
		}
	}

	original := doc.SelectedText()
	if original == "" {
		original = doc.Text
	}
	promptContext := fmt.Sprintf("File: %s\nLanguage: %s\nSelected Text:\n%s\n", doc.Path, doc.LanguageID, original)

	response, err := m.send(ctx, message+editInstruction, promptContext)
	if err != nil {
		return errorMessage(intellitypes.ModeEdit, err)
	}

	return intellitypes.ChatMessage{
		Role:    intellitypes.RoleAssistant,
		Content: fmt.Sprintf("Here's the suggested edit:\n```%s\n%s\n```", doc.LanguageID, response),
		Mode:    intellitypes.ModeEdit,
		Metadata: &intellitypes.MessageMetadata{
			Edits: []*intellitypes.FileEdit{{
				Path:            doc.Path,
				OriginalContent: original,
				NewContent:      response,
			}},
		},
	}
}

// processAgent issues the planning call and, once it has answered, the execution call.
func (m *Manager) processAgent(ctx context.Context, message string, rc intellitypes.RequestContext) intellitypes.ChatMessage {
	promptContext := BuildContextString(rc)

	planPrompt := "Create a step-by-step plan to: " + message +
		"\nFormat: List each step on a new line starting with a number."
	plan, err := m.send(ctx, planPrompt, promptContext)
	if err != nil {
		return errorMessage(intellitypes.ModeAgent, err)
	}

	executePrompt := "Execute this task: " + message + "\nProvide code changes, commands, or actions needed."
	if m.tools != nil {
		executePrompt += "\n\nAvailable tools:\n" + m.tools.Describe() + "\n" + toolSyntax
	}
	execution, err := m.send(ctx, executePrompt, promptContext)
	if err != nil {
		return errorMessage(intellitypes.ModeAgent, err)
	}

	sections := []string{planLabel + plan + "\n", executionLabel + execution}
	meta := &intellitypes.MessageMetadata{Workspace: true}

	if m.tools != nil {
		meta.ToolsUsed = m.runToolBlocks(ctx, execution)
		if len(meta.ToolsUsed) > 0 {
			sections = append(sections, toolsLabel+summarizeTools(meta.ToolsUsed))
		}
	}

	for target, content := range analyzer.ParseResponse(execution, rc.Files) {
		meta.Edits = append(meta.Edits, &intellitypes.FileEdit{
			Path:            target,
			OriginalContent: originalContent(rc.Files, target),
			NewContent:      content,
		})
	}
	sortEdits(meta.Edits)

	return intellitypes.ChatMessage{
		Role:     intellitypes.RoleAssistant,
		Content:  strings.Join(sections, "\n\n"),
		Mode:     intellitypes.ModeAgent,
		Metadata: meta,
	}
}

// ParseToolInvocations extracts the tool calls from fenced blocks tagged tool, in order.
// Blocks that are not JSON objects with a name are skipped.
func ParseToolInvocations(reply string) []intellitypes.ToolInvocation {
	var out []intellitypes.ToolInvocation
	for _, m := range toolBlock.FindAllStringSubmatch(reply, -1) {
		body := strings.TrimSpace(m[1])
		if !gjson.Valid(body) {
			logger.Warn("Ignoring malformed tool block", "block", body)
			continue
		}
		parsed := gjson.Parse(body)
		name := parsed.Get("name").String()
		if name == "" {
			logger.Warn("Ignoring tool block without a name")
			continue
		}
		args, _ := parsed.Get("args").Value().(map[string]any)
		if args == nil {
			args = map[string]any{}
		}
		out = append(out, intellitypes.ToolInvocation{Name: name, Args: args})
	}
	return out
}

func (m *Manager) runToolBlocks(ctx context.Context, reply string) []intellitypes.ToolInvocation {
	invocations := ParseToolInvocations(reply)
	for i := range invocations {
		invocations[i].Result = m.tools.ExecuteTool(ctx, invocations[i].Name, invocations[i].Args)
	}
	return invocations
}

func summarizeTools(invocations []intellitypes.ToolInvocation) string {
	lines := make([]string, 0, len(invocations))
	for _, inv := range invocations {
		if inv.Result.Success {
			lines = append(lines, fmt.Sprintf("- %s: ok", inv.Name))
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: failed: %s", inv.Name, inv.Result.Error))
	}
	return strings.Join(lines, "\n")
}

func originalContent(files []intellitypes.FileContext, target string) string {
	for _, f := range files {
		if f.Path == target {
			return f.Content
		}
	}
	return ""
}

func sortEdits(edits []*intellitypes.FileEdit) {
	sort.Slice(edits, func(i, j int) bool { return edits[i].Path < edits[j].Path })
}
