package panel

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intellipy/internal/analyzer"
	"intellipy/internal/chat"
	"intellipy/internal/mentions"
	"intellipy/internal/testutils"
	"intellipy/pkg/intellitypes"
)

type fixture struct {
	ws      *testutils.MemWorkspace
	spy     *testutils.SpyProvider
	editor  *testutils.FakeEditor
	manager *chat.Manager
	ctrl    *Controller
	posts   []Post
}

func newFixture(files map[string]string, replies ...string) *fixture {
	f := &fixture{
		ws:     testutils.NewMemWorkspace("/w", files),
		spy:    &testutils.SpyProvider{Replies: replies},
		editor: &testutils.FakeEditor{},
	}
	resolve := func() (intellitypes.Provider, error) { return f.spy, nil }
	f.manager = chat.NewManager(resolve, chat.WithEditor(f.editor))
	f.ctrl = NewController(Deps{
		Manager:  f.manager,
		Provider: resolve,
		Analyzer: analyzer.New(f.ws),
		Mentions: mentions.NewRegistry(f.ws, f.editor, nil),
		Editor:   f.editor,
		Store:    f.ws,
		Sink:     SinkFunc(func(p Post) { f.posts = append(f.posts, p) }),
	})
	return f
}

func (f *fixture) open(rel, language string) {
	content, _ := f.ws.Content(rel)
	f.editor.Doc = &intellitypes.Document{Path: f.ws.Path(rel), LanguageID: language, Text: content}
}

func (f *fixture) last() Post {
	return f.posts[len(f.posts)-1]
}

func TestHandle_UnknownAction(t *testing.T) {
	f := newFixture(nil)
	assert.Error(t, f.ctrl.Handle(context.Background(), Action{Type: "bogus"}))
	assert.Empty(t, f.posts)
}

func TestSendMessage_Plain(t *testing.T) {
	f := newFixture(nil, "hello back")
	require.NoError(t, f.ctrl.Handle(context.Background(), Action{Type: ActionSendMessage, Value: " hello "}))

	require.Len(t, f.posts, 2)
	assert.Equal(t, Post{Role: intellitypes.RoleUser, Content: "hello"}, f.posts[0])
	assert.Equal(t, Post{Role: intellitypes.RoleAssistant, Content: "hello back"}, f.posts[1])
	assert.Equal(t, f.posts, f.ctrl.History())
}

func TestSendMessage_EmptyIgnored(t *testing.T) {
	f := newFixture(nil, "x")
	require.NoError(t, f.ctrl.Handle(context.Background(), Action{Type: ActionSendMessage, Value: "   "}))
	assert.Empty(t, f.posts)
	assert.Zero(t, f.spy.CallCount())
}

func TestSendMessage_ProviderError(t *testing.T) {
	f := newFixture(nil)
	f.spy.Err = testutils.ErrFake
	require.NoError(t, f.ctrl.Handle(context.Background(), Action{Type: ActionSendMessage, Value: "hi"}))
	assert.Equal(t, "Error: fake failure", f.last().Content)
}

func TestSendMessage_MentionsAndActiveFile(t *testing.T) {
	f := newFixture(map[string]string{"app/main.py": "import util", "lib/util.py": "u = 1", "notes.py": "n"}, "ok")
	f.open("app/main.py", "python")

	require.NoError(t, f.ctrl.Handle(context.Background(), Action{Type: ActionSendMessage, Value: "compare with @notes.py and @workspace"}))

	require.Equal(t, 1, f.spy.CallCount())
	call := f.spy.Calls[0]
	assert.Equal(t, "compare with  and", call.Message)
	assert.Contains(t, call.Context, "### File: app/main.py")
	assert.Contains(t, call.Context, "### File: lib/util.py")
	assert.Contains(t, call.Context, "### File: notes.py\n```python\nn\n```")
}

func TestSendMessage_NonPythonEditorSkipsAnalysis(t *testing.T) {
	f := newFixture(map[string]string{"README.md": "# hi"}, "ok")
	f.open("README.md", "markdown")

	require.NoError(t, f.ctrl.Handle(context.Background(), Action{Type: ActionSendMessage, Value: "hi"}))
	assert.Empty(t, f.spy.Calls[0].Context)
}

func TestAnalyzeCurrentFile_RequiresPython(t *testing.T) {
	f := newFixture(map[string]string{"README.md": ""})
	require.NoError(t, f.ctrl.Handle(context.Background(), Action{Type: ActionAnalyzeCurrentFile}))
	assert.Equal(t, MsgOpenPythonFile, f.last().Content)

	f.open("README.md", "markdown")
	require.NoError(t, f.ctrl.Handle(context.Background(), Action{Type: ActionAnalyzeCurrentFile}))
	assert.Equal(t, MsgOpenPythonFile, f.last().Content)
	assert.Zero(t, f.spy.CallCount())
}

func TestAnalyzeApplyFlow(t *testing.T) {
	reply := "Use a constant.\n### File: m.py\n```python\nLIMIT = 2\n```\n### File: unknown.py\n```python\nx\n```"
	f := newFixture(map[string]string{"m.py": "LIMIT = 1"}, reply)
	f.open("m.py", "python")
	ctx := context.Background()

	require.NoError(t, f.ctrl.Handle(ctx, Action{Type: ActionAnalyzeCurrentFile}))

	require.Equal(t, 1, f.spy.CallCount())
	assert.True(t, strings.HasPrefix(f.spy.Calls[0].Message, "Analyze this Python code"))
	assert.Equal(t, "### File: m.py\n```python\nLIMIT = 1\n```", f.spy.Calls[0].Context)
	assert.Len(t, f.ctrl.LastAnalyzed(), 1)

	post := f.last()
	assert.Equal(t, reply, post.Content)
	assert.Equal(t, []FileAction{{Path: "/w/m.py", Name: "m.py"}}, post.Files)
	require.Len(t, f.ctrl.Pending(), 1)

	require.NoError(t, f.ctrl.Handle(ctx, Action{Type: ActionShowDiff, FilePath: "/w/m.py"}))
	assert.Equal(t, "Diff for m.py:\n```diff\n- LIMIT = 1\n+ LIMIT = 2\n```", f.last().Content)

	require.NoError(t, f.ctrl.Handle(ctx, Action{Type: ActionApplyChanges}))
	assert.Equal(t, "Applied changes to 1 file(s): m.py", f.last().Content)
	got, _ := f.ws.Content("m.py")
	assert.Equal(t, "LIMIT = 2", got)
	assert.Empty(t, f.ctrl.Pending())

	require.NoError(t, f.ctrl.Handle(ctx, Action{Type: ActionApplyChanges}))
	assert.Equal(t, MsgNoPending, f.last().Content)
}

func TestAnalyze_NoEdits(t *testing.T) {
	f := newFixture(map[string]string{"m.py": "x = 1"}, "Looks fine.")
	f.open("m.py", "python")

	require.NoError(t, f.ctrl.Handle(context.Background(), Action{Type: ActionAnalyzeCurrentFile}))
	assert.Equal(t, Post{Role: intellitypes.RoleAssistant, Content: "Looks fine."}, f.last())
	assert.Empty(t, f.ctrl.Pending())
}

func TestAnalyze_ProviderError(t *testing.T) {
	f := newFixture(map[string]string{"m.py": "x = 1"})
	f.spy.Err = testutils.ErrFake
	f.open("m.py", "python")

	require.NoError(t, f.ctrl.Handle(context.Background(), Action{Type: ActionAnalyzeCurrentFile}))
	assert.Equal(t, "Error analyzing file: fake failure", f.last().Content)
}

func TestSendMessage_FollowUpAgainstAnalyzedFiles(t *testing.T) {
	f := newFixture(map[string]string{"m.py": "a = 1"}, "first pass", "### File: m.py\n```python\na = 2\n```")
	f.open("m.py", "python")
	ctx := context.Background()

	require.NoError(t, f.ctrl.Handle(ctx, Action{Type: ActionAnalyzeCurrentFile}))
	assert.Empty(t, f.ctrl.Pending())

	require.NoError(t, f.ctrl.Handle(ctx, Action{Type: ActionSendMessage, Value: "now change a"}))
	assert.Len(t, f.last().Files, 1)
	require.Len(t, f.ctrl.Pending(), 1)
	assert.Equal(t, "a = 2", f.ctrl.Pending()[0].NewContent)
}

func TestSendMessage_EditModeQueuesEdit(t *testing.T) {
	f := newFixture(map[string]string{"m.py": "a = 1"}, "a = 5")
	f.open("m.py", "python")
	ctx := context.Background()

	require.NoError(t, f.ctrl.Handle(ctx, Action{Type: ActionSetMode, Value: "Edit"}))
	assert.Equal(t, "Mode set to edit", f.last().Content)
	assert.Equal(t, intellitypes.ModeEdit, f.manager.GetMode())

	require.NoError(t, f.ctrl.Handle(ctx, Action{Type: ActionSendMessage, Value: "set a to 5"}))
	assert.Equal(t, []FileAction{{Path: "/w/m.py", Name: "m.py"}}, f.last().Files)

	require.NoError(t, f.ctrl.Handle(ctx, Action{Type: ActionApplyChanges}))
	got, _ := f.ws.Content("m.py")
	assert.Equal(t, "a = 5", got)
}

func TestSetMode_Invalid(t *testing.T) {
	f := newFixture(nil)
	require.NoError(t, f.ctrl.Handle(context.Background(), Action{Type: ActionSetMode, Value: "chaos"}))
	assert.True(t, strings.HasPrefix(f.last().Content, "Error: unknown chat mode"))
	assert.Equal(t, intellitypes.ModeAsk, f.manager.GetMode())
}

func TestShowDiff(t *testing.T) {
	f := newFixture(map[string]string{"a.py": "same\n"})
	ctx := context.Background()

	require.NoError(t, f.ctrl.Handle(ctx, Action{Type: ActionShowDiff}))
	assert.True(t, strings.HasPrefix(f.last().Content, "Error:"))

	require.NoError(t, f.ctrl.Handle(ctx, Action{Type: ActionShowDiff, FilePath: "/w/b.py"}))
	assert.Equal(t, "Error: no proposed content for /w/b.py", f.last().Content)

	require.NoError(t, f.ctrl.Handle(ctx, Action{Type: ActionShowDiff, FilePath: "/w/a.py", Content: "same\n"}))
	assert.Equal(t, MsgNoDifferences, f.last().Content)

	require.NoError(t, f.ctrl.Handle(ctx, Action{Type: ActionShowDiff, FilePath: "/w/new.py", Content: "x\n"}))
	assert.Equal(t, "Diff for new.py:\n```diff\n+ x\n```", f.last().Content)
}

func TestNilSink(t *testing.T) {
	ctrl := NewController(Deps{})
	require.NoError(t, ctrl.Handle(context.Background(), Action{Type: ActionSendMessage, Value: "hi"}))
	assert.Equal(t, "Error: chat is not available", ctrl.History()[1].Content)
}
