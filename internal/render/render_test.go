package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intellipy/pkg/intellitypes"
)

func newPlainRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New("notty", 0)
	require.NoError(t, err)
	return r
}

func TestNew(t *testing.T) {
	for _, style := range []string{"", "auto", "dark", "light", "notty", "ascii"} {
		t.Run(style, func(t *testing.T) {
			r, err := New(style, 60)
			require.NoError(t, err)
			assert.NotNil(t, r)
		})
	}

	_, err := New("/no/such/style.json", 60)
	assert.Error(t, err)
}

func TestMarkdown(t *testing.T) {
	r := newPlainRenderer(t)

	assert.Empty(t, r.Markdown("   \n"))

	out := Plain(r.Markdown("# Title\n\nSome plain words here.\n\n```python\nx = 1\n```"))
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "Some plain words here.")
	assert.Contains(t, out, "x = 1")
	assert.False(t, strings.HasPrefix(out, "\n"))
	assert.False(t, strings.HasSuffix(out, "\n"))
}

func TestMessage(t *testing.T) {
	r := newPlainRenderer(t)

	tests := []struct {
		name    string
		role    intellitypes.Role
		mode    intellitypes.ChatMode
		content string
		head    string
	}{
		{"user", intellitypes.RoleUser, "", "explain this", "You\n"},
		{"assistant with mode", intellitypes.RoleAssistant, intellitypes.ModeAgent, "done", "IntelliPy (agent)\n"},
		{"assistant without mode", intellitypes.RoleAssistant, "", "done", "IntelliPy\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Plain(r.Message(tt.role, tt.mode, tt.content))
			assert.True(t, strings.HasPrefix(out, tt.head), out)
			assert.Contains(t, out, tt.content)
		})
	}

	assert.Equal(t, "Mode set to edit", r.Message(intellitypes.RoleSystem, "", "Mode set to edit"))
	assert.Equal(t, "Diff for a.py:\n- x = 1\n+ x = 2",
		r.Message(intellitypes.RoleSystem, "", "Diff for a.py:\n```diff\n- x = 1\n+ x = 2\n```"))
}

func TestDiff(t *testing.T) {
	r := newPlainRenderer(t)
	diff := "  a\n- b\n+ c\n"

	assert.Equal(t, "  a\n- b\n+ c", r.Diff(diff))
	assert.Empty(t, r.Diff(""))
}

func TestTable(t *testing.T) {
	r := newPlainRenderer(t)

	out := r.Table([][]string{
		{"NAME", "MODEL"},
		{"bedrock", "anthropic.claude"},
		{"m365copilot", "-"},
	})
	assert.Equal(t, "NAME         MODEL\nbedrock      anthropic.claude\nm365copilot  -\n", out)
	assert.Empty(t, r.Table(nil))
}

func TestPlain(t *testing.T) {
	assert.Equal(t, "red", Plain("\x1b[31mred\x1b[0m"))
	assert.Equal(t, "as is", Plain("as is"))
}
