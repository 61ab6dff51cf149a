// Package shell provides the interactive IntelliPy front end. Plain lines go to the chat panel;
// slash commands map onto panel actions, sessions and tools.
package shell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chzyer/readline"

	"intellipy/internal/chat"
	"intellipy/internal/host"
	"intellipy/internal/logger"
	"intellipy/internal/mentions"
	"intellipy/internal/panel"
	"intellipy/internal/render"
	"intellipy/internal/tools"
	"intellipy/pkg/intellitypes"
)

// Deps wires a Shell. Panel.Sink is replaced by the shell itself.
type Deps struct {
	Panel     panel.Deps
	Tools     *tools.ToolSystem
	Workspace intellitypes.Workspace
	Editor    *host.StaticEditor
	Renderer  *render.Renderer
	Out       io.Writer
}

// Shell is one interactive session.
type Shell struct {
	ctrl     *panel.Controller
	manager  *chat.Manager
	mentions *mentions.Registry
	tools    *tools.ToolSystem
	ws       intellitypes.Workspace
	editor   *host.StaticEditor
	renderer *render.Renderer
	out      io.Writer
}

type command struct {
	usage string
	help  string
	run   func(s *Shell, ctx context.Context, arg string) error
}

var (
	errExit   = errors.New("exit")
	errNoChat = errors.New("chat is not available")
)

var commands map[string]command

func init() {
	commands = map[string]command{
		"/help":     {"/help", "Show available commands", (*Shell).cmdHelp},
		"/mode":     {"/mode [ask|edit|agent]", "Show or change the chat mode", (*Shell).cmdMode},
		"/open":     {"/open <file> [N|N-M]", "Make a file the active document, optionally selecting lines", (*Shell).cmdOpen},
		"/analyze":  {"/analyze", "Analyze the active Python file and its related files", (*Shell).cmdAnalyze},
		"/pending":  {"/pending", "List proposed changes", (*Shell).cmdPending},
		"/diff":     {"/diff <file>", "Show the diff of a proposed change", (*Shell).cmdDiff},
		"/apply":    {"/apply", "Apply all proposed changes", (*Shell).cmdApply},
		"/tools":    {"/tools", "List available tools", (*Shell).cmdTools},
		"/tool":     {"/tool <name> [json args]", "Run a tool", (*Shell).cmdTool},
		"/mentions": {"/mentions [query]", "List @-mentions matching query", (*Shell).cmdMentions},
		"/new":      {"/new", "Start a new chat session", (*Shell).cmdNew},
		"/sessions": {"/sessions", "List chat sessions", (*Shell).cmdSessions},
		"/switch":   {"/switch <id>", "Switch to another chat session", (*Shell).cmdSwitch},
		"/exit":     {"/exit", "Leave IntelliPy", func(*Shell, context.Context, string) error { return errExit }},
	}
}

// New creates a shell and its panel controller.
func New(deps Deps) *Shell {
	s := &Shell{
		manager:  deps.Panel.Manager,
		mentions: deps.Panel.Mentions,
		tools:    deps.Tools,
		ws:       deps.Workspace,
		editor:   deps.Editor,
		renderer: deps.Renderer,
		out:      deps.Out,
	}
	if s.out == nil {
		s.out = io.Discard
	}
	pd := deps.Panel
	pd.Sink = s
	s.ctrl = panel.NewController(pd)
	return s
}

// Controller returns the panel controller driven by the shell.
func (s *Shell) Controller() *panel.Controller {
	return s.ctrl
}

// Post prints a panel post.
func (s *Shell) Post(p panel.Post) {
	if p.Role == intellitypes.RoleUser {
		return
	}
	mode := intellitypes.ChatMode("")
	if p.Role == intellitypes.RoleAssistant && s.manager != nil {
		mode = s.manager.GetMode()
	}
	if s.renderer != nil {
		fmt.Fprintln(s.out, s.renderer.Message(p.Role, mode, p.Content))
	} else {
		fmt.Fprintln(s.out, p.Content)
	}
	if len(p.Files) > 0 {
		fmt.Fprintln(s.out, "Proposed changes:")
		for _, f := range p.Files {
			fmt.Fprintf(s.out, "  %s (%s)\n", f.Name, s.display(f.Path))
		}
		fmt.Fprintln(s.out, "Use /diff <file> to review and /apply to write them.")
	}
}

// Prompt returns the input prompt for the current mode.
func (s *Shell) Prompt() string {
	mode := intellitypes.ModeAsk
	if s.manager != nil {
		mode = s.manager.GetMode()
	}
	return fmt.Sprintf("intellipy[%s]> ", mode)
}

// Run reads lines until /exit, end of input or ctx is done.
func (s *Shell) Run(ctx context.Context, in host.LineReader) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		in.SetPrompt(s.Prompt())
		line, err := in.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if !s.ProcessInput(ctx, line) {
			return nil
		}
	}
}

// ProcessInput handles one line of input and reports whether the shell should keep running.
func (s *Shell) ProcessInput(ctx context.Context, rawInput string) bool {
	rawInput = strings.TrimSpace(rawInput)
	if rawInput == "" {
		return true
	}

	err := s.executeCommand(ctx, rawInput)
	if errors.Is(err, errExit) {
		return false
	}
	if err != nil {
		logger.Debug("Command failed", "command", rawInput, "error", err)
		fmt.Fprintf(s.out, "Error: %s\n", err.Error())
		if !strings.HasPrefix(rawInput, "/help") {
			fmt.Fprintln(s.out, "Type /help for available commands")
		}
	}
	return true
}

func (s *Shell) executeCommand(ctx context.Context, rawInput string) error {
	if !strings.HasPrefix(rawInput, "/") {
		return s.ctrl.Handle(ctx, panel.Action{Type: panel.ActionSendMessage, Value: rawInput})
	}
	name, arg, _ := strings.Cut(rawInput, " ")
	cmd, ok := commands[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("unknown command %s", name)
	}
	return cmd.run(s, ctx, strings.TrimSpace(arg))
}

func (s *Shell) cmdHelp(_ context.Context, _ string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := [][]string{{"COMMAND", "DESCRIPTION"}}
	for _, name := range names {
		rows = append(rows, []string{commands[name].usage, commands[name].help})
	}
	fmt.Fprintln(s.out, "Type a message to chat. Mention files with @name.py, the workspace with @workspace.")
	s.table(rows)
	return nil
}

func (s *Shell) cmdMode(ctx context.Context, arg string) error {
	if s.manager == nil {
		return errNoChat
	}
	if arg == "" {
		fmt.Fprintf(s.out, "Current mode: %s\n", s.manager.GetMode())
		return nil
	}
	return s.ctrl.Handle(ctx, panel.Action{Type: panel.ActionSetMode, Value: arg})
}

func (s *Shell) cmdOpen(_ context.Context, arg string) error {
	if s.editor == nil {
		return fmt.Errorf("no editor available")
	}
	fields := strings.Fields(arg)
	if len(fields) == 0 || len(fields) > 2 {
		return fmt.Errorf("usage: %s", commands["/open"].usage)
	}
	var sel *intellitypes.Range
	if len(fields) == 2 {
		r, err := host.ParseLineRange(fields[1])
		if err != nil {
			return err
		}
		sel = r
	}
	if err := s.editor.Open(fields[0]); err != nil {
		return err
	}
	s.editor.Select(sel)
	if _, ok := s.editor.ActiveDocument(); !ok {
		s.editor.Close()
		return fmt.Errorf("cannot read %s", fields[0])
	}
	fmt.Fprintf(s.out, "Active document: %s\n", fields[0])
	return nil
}

func (s *Shell) cmdAnalyze(ctx context.Context, _ string) error {
	return s.ctrl.Handle(ctx, panel.Action{Type: panel.ActionAnalyzeCurrentFile})
}

func (s *Shell) cmdPending(_ context.Context, _ string) error {
	pending := s.ctrl.Pending()
	if len(pending) == 0 {
		fmt.Fprintln(s.out, panel.MsgNoPending)
		return nil
	}
	for _, e := range pending {
		fmt.Fprintf(s.out, "  %s\n", s.display(e.Path))
	}
	return nil
}

func (s *Shell) cmdDiff(ctx context.Context, arg string) error {
	if arg == "" {
		return fmt.Errorf("usage: %s", commands["/diff"].usage)
	}
	path := arg
	if s.ws != nil {
		abs, err := s.ws.Abs(arg)
		if err != nil {
			return err
		}
		path = abs
	}
	return s.ctrl.Handle(ctx, panel.Action{Type: panel.ActionShowDiff, FilePath: path})
}

func (s *Shell) cmdApply(ctx context.Context, _ string) error {
	return s.ctrl.Handle(ctx, panel.Action{Type: panel.ActionApplyChanges})
}

func (s *Shell) cmdTools(_ context.Context, _ string) error {
	if s.tools == nil {
		return fmt.Errorf("tools are not available")
	}
	rows := [][]string{{"TOOL", "DESCRIPTION"}}
	for _, name := range s.tools.AvailableTools() {
		desc, _ := s.tools.ToolDescription(name)
		rows = append(rows, []string{name, desc})
	}
	s.table(rows)
	return nil
}

func (s *Shell) cmdTool(ctx context.Context, arg string) error {
	if s.tools == nil {
		return fmt.Errorf("tools are not available")
	}
	name, rawArgs, _ := strings.Cut(arg, " ")
	if name == "" {
		return fmt.Errorf("usage: %s", commands["/tool"].usage)
	}
	args := map[string]any{}
	if rawArgs = strings.TrimSpace(rawArgs); rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return fmt.Errorf("tool arguments must be a JSON object: %w", err)
		}
	}

	result := s.tools.ExecuteTool(ctx, name, args)
	if !result.Success {
		fmt.Fprintf(s.out, "%s failed: %s\n", name, result.Error)
		return nil
	}
	fmt.Fprintln(s.out, result.Output)
	return nil
}

func (s *Shell) cmdMentions(ctx context.Context, arg string) error {
	if s.mentions == nil {
		return fmt.Errorf("mentions are not available")
	}
	query := arg
	if query == "" {
		query = "@"
	}
	items := s.mentions.Completions(ctx, query)
	if len(items) == 0 {
		fmt.Fprintln(s.out, "No matching mentions.")
		return nil
	}
	rows := [][]string{{"MENTION", "DETAIL"}}
	for _, item := range items {
		rows = append(rows, []string{item.Label, item.Detail})
	}
	s.table(rows)
	return nil
}

func (s *Shell) cmdNew(_ context.Context, _ string) error {
	if s.manager == nil {
		return errNoChat
	}
	id := s.manager.CreateSession()
	fmt.Fprintf(s.out, "Started session %s\n", id)
	return nil
}

func (s *Shell) cmdSessions(_ context.Context, _ string) error {
	if s.manager == nil {
		return errNoChat
	}
	ids := s.manager.SessionIDs()
	if len(ids) == 0 {
		fmt.Fprintln(s.out, "No sessions. Use /new to start one.")
		return nil
	}
	active := ""
	if sess := s.manager.GetActiveSession(); sess != nil {
		active = sess.ID
	}
	for _, id := range ids {
		marker := " "
		if id == active {
			marker = "*"
		}
		fmt.Fprintf(s.out, "%s %s\n", marker, id)
	}
	return nil
}

func (s *Shell) cmdSwitch(_ context.Context, arg string) error {
	if s.manager == nil {
		return errNoChat
	}
	if arg == "" {
		return fmt.Errorf("usage: %s", commands["/switch"].usage)
	}
	if err := s.manager.SwitchSession(arg); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Switched to session %s\n", arg)
	return nil
}

func (s *Shell) table(rows [][]string) {
	if s.renderer != nil {
		fmt.Fprint(s.out, s.renderer.Table(rows))
		return
	}
	for _, row := range rows {
		fmt.Fprintln(s.out, strings.Join(row, "\t"))
	}
}

func (s *Shell) display(path string) string {
	if s.ws == nil {
		return path
	}
	return s.ws.RelPath(path)
}
