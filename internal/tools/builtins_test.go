package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intellipy/internal/testutils"
	"intellipy/pkg/intellitypes"
)

func allowAll(n int) []intellitypes.Decision {
	out := make([]intellitypes.Decision, n)
	for i := range out {
		out[i] = intellitypes.DecisionAllowOnce
	}
	return out
}

func TestReadFile(t *testing.T) {
	s, _, _, _ := newTestSystem(map[string]string{"pkg/mod.py": "x = 1\n"})

	result := s.ExecuteTool(context.Background(), "readFile", map[string]any{"path": "pkg/mod.py"})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "x = 1\n", result.Output)

	result = s.ExecuteTool(context.Background(), "readFile", map[string]any{"path": "missing.py"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "failed to read file")

	result = s.ExecuteTool(context.Background(), "readFile", map[string]any{})
	assert.Equal(t, "missing required argument 'path'", result.Error)

	result = s.ExecuteTool(context.Background(), "readFile", map[string]any{"path": "../etc/passwd"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "escapes workspace root")
}

func TestWriteFile_CreatesAndReplaces(t *testing.T) {
	s, ws, _, _ := newTestSystem(map[string]string{"a.py": "old"}, allowAll(2)...)

	result := s.ExecuteTool(context.Background(), "writeFile", map[string]any{"path": "a.py", "content": "new"})
	require.True(t, result.Success)
	assert.Equal(t, "File written: a.py", result.Output)
	got, _ := ws.Content("a.py")
	assert.Equal(t, "new", got)

	result = s.ExecuteTool(context.Background(), "writeFile", map[string]any{"path": "fresh.py", "content": "y"})
	require.True(t, result.Success)
	got, _ = ws.Content("fresh.py")
	assert.Equal(t, "y", got)
}

func TestRunCommand(t *testing.T) {
	s, _, _, runner := newTestSystem(nil, allowAll(4)...)
	runner.Stdout = "3 passed\n"

	result := s.ExecuteTool(context.Background(), "runCommand", map[string]any{"command": "pytest -q"})
	require.True(t, result.Success)
	assert.Equal(t, "3 passed\n", result.Output)
	assert.Equal(t, testutils.RunCall{Command: "pytest -q", Dir: "/ws"}, runner.Calls[0])

	result = s.ExecuteTool(context.Background(), "runCommand", map[string]any{"command": "ls", "cwd": "src"})
	require.True(t, result.Success)
	assert.Equal(t, "/ws/src", runner.Calls[1].Dir)

	runner.Stdout, runner.Stderr = "", "warning only"
	result = s.ExecuteTool(context.Background(), "runCommand", map[string]any{"command": "lint"})
	require.True(t, result.Success)
	assert.Equal(t, "warning only", result.Output)

	runner.Err = errors.New("exit status 2")
	runner.Stderr = "boom"
	result = s.ExecuteTool(context.Background(), "runCommand", map[string]any{"command": "false"})
	assert.False(t, result.Success)
	assert.Equal(t, "command failed: exit status 2\nboom", result.Error)
}

func TestSearchFiles(t *testing.T) {
	files := map[string]string{
		"app/main.py":            "import os\nTODO = 1\n# TODO fix\n",
		"app/util.py":            "def f():\n    return 1\n",
		"node_modules/x/skip.py": "TODO",
		"many.py":                "TODO\nTODO\nTODO\nTODO\nTODO\nTODO\nTODO\n",
		"notes.txt":              "TODO in text",
	}
	s, _, _, _ := newTestSystem(files)

	result := s.ExecuteTool(context.Background(), "searchFiles", map[string]any{"query": "TODO"})
	require.True(t, result.Success)
	assert.Equal(t, "app/main.py:\n  2: TODO = 1\n  3: # TODO fix\n\nmany.py:\n  1: TODO\n  2: TODO\n  3: TODO\n  4: TODO\n  5: TODO", result.Output)

	result = s.ExecuteTool(context.Background(), "searchFiles", map[string]any{"query": "TODO", "include": "**/*.txt"})
	require.True(t, result.Success)
	assert.Equal(t, "notes.txt:\n  1: TODO in text", result.Output)

	result = s.ExecuteTool(context.Background(), "searchFiles", map[string]any{"query": "nothing-here"})
	require.True(t, result.Success)
	assert.Equal(t, "No matches found", result.Output)

	result = s.ExecuteTool(context.Background(), "searchFiles", map[string]any{})
	assert.False(t, result.Success)
}

func TestCreateFile(t *testing.T) {
	ws := testutils.NewMemWorkspace("/ws", map[string]string{"exists.py": ""})
	editor := &testutils.FakeEditor{}
	confirmer := &testutils.ScriptedConfirmer{Decisions: allowAll(3)}
	s := NewToolSystem(Env{Workspace: ws, Editor: editor}, confirmer)

	result := s.ExecuteTool(context.Background(), "createFile", map[string]any{"path": "pkg/new.py", "content": "print(1)"})
	require.True(t, result.Success)
	assert.Equal(t, "Created file: pkg/new.py", result.Output)
	assert.Equal(t, []string{"/ws/pkg/new.py"}, editor.Shown)
	got, _ := ws.Content("pkg/new.py")
	assert.Equal(t, "print(1)", got)

	result = s.ExecuteTool(context.Background(), "createFile", map[string]any{"path": "empty.py"})
	require.True(t, result.Success)
	got, ok := ws.Content("empty.py")
	assert.True(t, ok)
	assert.Empty(t, got)

	result = s.ExecuteTool(context.Background(), "createFile", map[string]any{"path": "exists.py"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "failed to create file")
}

func TestDeleteFile(t *testing.T) {
	s, ws, _, _ := newTestSystem(map[string]string{"gone.py": "x"}, allowAll(2)...)

	result := s.ExecuteTool(context.Background(), "deleteFile", map[string]any{"path": "gone.py"})
	require.True(t, result.Success)
	assert.Equal(t, "Deleted file: gone.py", result.Output)
	_, ok := ws.Content("gone.py")
	assert.False(t, ok)

	result = s.ExecuteTool(context.Background(), "deleteFile", map[string]any{"path": "gone.py"})
	assert.False(t, result.Success)
}

func TestBuiltins_MissingCapabilities(t *testing.T) {
	s := NewToolSystem(Env{}, &testutils.ScriptedConfirmer{Decisions: allowAll(1)})

	result := s.ExecuteTool(context.Background(), "readFile", map[string]any{"path": "a"})
	assert.Equal(t, "no workspace available", result.Error)

	result = s.ExecuteTool(context.Background(), "runCommand", map[string]any{"command": "ls"})
	assert.Equal(t, "no command runner available", result.Error)
}

func TestBuiltins_ResultsAlwaysValid(t *testing.T) {
	s, _, _, _ := newTestSystem(map[string]string{"a.py": "x"}, allowAll(10)...)
	calls := []struct {
		name string
		args map[string]any
	}{
		{"readFile", map[string]any{"path": "a.py"}},
		{"readFile", map[string]any{"path": "nope.py"}},
		{"writeFile", map[string]any{}},
		{"searchFiles", map[string]any{"query": "x"}},
		{"createFile", map[string]any{"path": "a.py"}},
		{"deleteFile", map[string]any{"path": "a.py"}},
		{"unknown", nil},
	}

	for _, c := range calls {
		result := s.ExecuteTool(context.Background(), c.name, c.args)
		assert.True(t, result.Valid(), "%s %v -> %+v", c.name, c.args, result)
	}
}
