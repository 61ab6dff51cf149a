// Package tools implements the registry of named, confirmable local operations the agent can invoke.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"intellipy/internal/logger"
	"intellipy/pkg/intellitypes"
)

// ErrUserCancelled is the error text of a declined confirmation.
const ErrUserCancelled = "User cancelled the operation"

// Env is the capability set handed to every executor. Nil members are simply unavailable.
type Env struct {
	Workspace intellitypes.Workspace
	Editor    intellitypes.Editor
	Runner    intellitypes.CommandRunner
}

// ExecuteFunc runs a tool. A returned error becomes a failed ToolResult at the registry edge.
type ExecuteFunc func(ctx context.Context, env Env, args map[string]any) (string, error)

// Tool is a registered operation.
type Tool struct {
	Name                 string
	Description          string
	Params               string // argument shape shown to the model, e.g. {"path": "<file>"}
	RequiresConfirmation bool
	Execute              ExecuteFunc
}

// ToolSystem holds the registry and the "allow always" confirmation cache.
type ToolSystem struct {
	env       Env
	confirmer intellitypes.Confirmer

	mu    sync.RWMutex
	tools map[string]Tool
	order []string

	cacheMu sync.Mutex
	allowed map[string]struct{}
}

// NewToolSystem creates a tool system with the built-in tools registered.
func NewToolSystem(env Env, confirmer intellitypes.Confirmer) *ToolSystem {
	s := &ToolSystem{
		env:       env,
		confirmer: confirmer,
		tools:     make(map[string]Tool),
		allowed:   make(map[string]struct{}),
	}
	for _, t := range BuiltinTools() {
		s.RegisterTool(t)
	}
	return s
}

// RegisterTool adds t, replacing any tool with the same name.
func (s *ToolSystem) RegisterTool(t Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tools[t.Name]; !exists {
		s.order = append(s.order, t.Name)
	}
	s.tools[t.Name] = t
	logger.Debug("Tool registered", "tool", t.Name, "confirmation", t.RequiresConfirmation)
}

// AvailableTools returns tool names in registration order.
func (s *ToolSystem) AvailableTools() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// ToolDescription returns the description of a registered tool.
func (s *ToolSystem) ToolDescription(name string) (string, bool) {
	t, ok := s.lookup(name)
	if !ok {
		return "", false
	}
	return t.Description, true
}

// Describe renders one line per tool for prompts and listings.
func (s *ToolSystem) Describe() string {
	var b strings.Builder
	for _, name := range s.AvailableTools() {
		t, _ := s.lookup(name)
		fmt.Fprintf(&b, "- %s: %s", t.Name, t.Description)
		if t.Params != "" {
			fmt.Fprintf(&b, " Args: %s", t.Params)
		}
		if t.RequiresConfirmation {
			b.WriteString(" (requires confirmation)")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (s *ToolSystem) lookup(name string) (Tool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tools[name]
	return t, ok
}

// ExecuteTool runs a tool by name. It never returns a Go error: unknown tools, declined
// confirmations, executor failures and panics all come back as failed results.
func (s *ToolSystem) ExecuteTool(ctx context.Context, name string, args map[string]any) (result intellitypes.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Tool panicked", "tool", name, "panic", r)
			result = failure(fmt.Sprintf("Tool '%s' failed: %v", name, r))
		}
	}()

	t, ok := s.lookup(name)
	if !ok {
		return failure(fmt.Sprintf("Tool '%s' not found", name))
	}
	if args == nil {
		args = map[string]any{}
	}

	if t.RequiresConfirmation {
		allowed, err := s.confirm(ctx, name, args)
		if err != nil {
			return failure(fmt.Sprintf("Confirmation failed: %v", err))
		}
		if !allowed {
			logger.Debug("Tool execution cancelled by user", "tool", name)
			return failure(ErrUserCancelled)
		}
	}

	logger.ToolExecution(name, args)
	output, err := t.Execute(ctx, s.env, args)
	if err != nil {
		logger.Debug("Tool failed", "tool", name, "error", err)
		return failure(err.Error())
	}
	return intellitypes.ToolResult{Success: true, Output: output}
}

func (s *ToolSystem) confirm(ctx context.Context, name string, args map[string]any) (bool, error) {
	key := cacheKey(name, args)

	s.cacheMu.Lock()
	_, cached := s.allowed[key]
	s.cacheMu.Unlock()
	if cached {
		return true, nil
	}

	if s.confirmer == nil {
		return false, nil
	}

	decision, err := s.confirmer.Confirm(ctx, intellitypes.ConfirmationRequest{
		Tool:    name,
		Summary: FormatConfirmation(name, args),
		Args:    args,
	})
	if err != nil {
		return false, err
	}

	switch decision {
	case intellitypes.DecisionAllowAlways:
		s.cacheMu.Lock()
		s.allowed[key] = struct{}{}
		s.cacheMu.Unlock()
		return true, nil
	case intellitypes.DecisionAllowOnce:
		return true, nil
	default:
		return false, nil
	}
}

// cacheKey identifies an invocation shape. encoding/json writes map keys in sorted order,
// so equal argument maps always produce the same key.
func cacheKey(name string, args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, k := range keys {
			fmt.Fprintf(&b, "%s=%v;", k, args[k])
		}
		return name + "-" + b.String()
	}
	return name + "-" + string(data)
}

// FormatConfirmation returns the human-readable summary shown when asking for approval.
func FormatConfirmation(name string, args map[string]any) string {
	switch name {
	case "writeFile":
		return "Write to file: " + argString(args, "path")
	case "runCommand":
		return "Run command: " + argString(args, "command")
	case "createFile":
		return "Create file: " + argString(args, "path")
	case "deleteFile":
		return "Delete file: " + argString(args, "path")
	default:
		data, err := json.MarshalIndent(args, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", args)
		}
		return string(data)
	}
}

func failure(msg string) intellitypes.ToolResult {
	return intellitypes.ToolResult{Success: false, Error: msg}
}

func stringArg(args map[string]any, key string) (string, bool) {
	val, ok := args[key]
	if !ok || val == nil {
		return "", false
	}
	switch cast := val.(type) {
	case string:
		return cast, true
	default:
		return fmt.Sprintf("%v", cast), true
	}
}

func argString(args map[string]any, key string) string {
	s, _ := stringArg(args, key)
	return s
}

func requireString(args map[string]any, key string) (string, error) {
	s, ok := stringArg(args, key)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("missing required argument '%s'", key)
	}
	return s, nil
}
