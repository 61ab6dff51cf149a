package analyzer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intellipy/internal/testutils"
	"intellipy/pkg/intellitypes"
)

func relPaths(files []intellitypes.FileContext) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.RelativePath)
	}
	return out
}

func TestExtractImports(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"plain import", "import os\nimport sys", []string{"os", "sys"}},
		{"dotted keeps first segment", "import os.path\nfrom xml.etree import ElementTree", []string{"os", "xml"}},
		{"relative imports ignored", "from . import sibling\nfrom .models import User\nimport utils", []string{"utils"}},
		{"duplicates collapsed", "import utils\nfrom utils.io import read\nimport utils", []string{"utils"}},
		{"comma list", "import os, sys", []string{"os"}},
		{"none", "x = 1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractImports(tt.content))
		})
	}
}

func TestGetRelevantFiles_Discovery(t *testing.T) {
	ws := testutils.NewMemWorkspace("/proj", map[string]string{
		"app/main.py":               "import helpers\nfrom .local import x\nimport os\n",
		"app/local.py":              "x = 1",
		"lib/helpers.py":            "def help(): pass",
		"tests/test_main.py":        "def test(): pass",
		"other/unrelated.py":        "pass",
		"node_modules/x/helpers.py": "ignored",
		"app/readme.md":             "not python",
	})
	a := New(ws)

	files, err := a.GetRelevantFiles(context.Background(), "app/main.py")
	require.NoError(t, err)

	assert.Equal(t, []string{"app/main.py", "lib/helpers.py", "app/local.py", "tests/test_main.py"}, relPaths(files))
	assert.Equal(t, ws.Path("app/main.py"), files[0].Path)
	assert.Equal(t, "def help(): pass", files[1].Content)
}

func TestGetRelevantFiles_AbsoluteAnchor(t *testing.T) {
	ws := testutils.NewMemWorkspace("/proj", map[string]string{"main.py": "x = 1", "util.py": "y = 2"})
	files, err := New(ws).GetRelevantFiles(context.Background(), ws.Path("main.py"))
	require.NoError(t, err)
	assert.Equal(t, []string{"main.py", "util.py"}, relPaths(files))
}

func TestGetRelevantFiles_CapAndCeiling(t *testing.T) {
	contents := map[string]string{"pkg/anchor.py": "import big\n"}
	contents["lib/big.py"] = strings.Repeat("a", MaxFileSize+1)
	for i := 0; i < 25; i++ {
		contents[fmt.Sprintf("pkg/mod%02d.py", i)] = "pass"
	}
	ws := testutils.NewMemWorkspace("/proj", contents)

	files, err := New(ws).GetRelevantFiles(context.Background(), "pkg/anchor.py")
	require.NoError(t, err)

	assert.LessOrEqual(t, len(files), MaxFiles)
	assert.Equal(t, "pkg/anchor.py", files[0].RelativePath)
	for _, f := range files[1:] {
		assert.LessOrEqual(t, len(f.Content), MaxFileSize)
		assert.NotEqual(t, "lib/big.py", f.RelativePath)
	}
}

func TestGetRelevantFiles_ExactCeilingAdmitted(t *testing.T) {
	ws := testutils.NewMemWorkspace("/proj", map[string]string{
		"main.py": "",
		"edge.py": strings.Repeat("b", MaxFileSize),
	})
	files, err := New(ws).GetRelevantFiles(context.Background(), "main.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.py", "edge.py"}, relPaths(files))
}

func TestGetRelevantFiles_OversizedAnchorKept(t *testing.T) {
	big := strings.Repeat("x", MaxFileSize+1)
	ws := testutils.NewMemWorkspace("/proj", map[string]string{
		"main.py":   big,
		"helper.py": "pass",
		"huge.py":   big,
	})

	files, err := New(ws).GetRelevantFiles(context.Background(), "main.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.py", "helper.py"}, relPaths(files))
	assert.Len(t, files[0].Content, MaxFileSize+1)
}

func TestGetRelevantFiles_OutsideWorkspace(t *testing.T) {
	ws := testutils.NewMemWorkspace("/proj", map[string]string{"main.py": ""})
	files, err := New(ws).GetRelevantFiles(context.Background(), "/elsewhere/main.py")
	require.NoError(t, err)
	assert.Empty(t, files)

	files, err = New(nil).GetRelevantFiles(context.Background(), "main.py")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestGetRelevantFiles_UnreadableAnchor(t *testing.T) {
	ws := testutils.NewMemWorkspace("/proj", nil)
	files, err := New(ws).GetRelevantFiles(context.Background(), "missing.py")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Empty(t, files[0].Content)
}

func TestGetRelevantFiles_Cancelled(t *testing.T) {
	ws := testutils.NewMemWorkspace("/proj", map[string]string{"main.py": "", "b.py": ""})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	files, err := New(ws).GetRelevantFiles(ctx, "main.py")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"main.py"}, relPaths(files))
}

func TestConsolidateCode(t *testing.T) {
	assert.Empty(t, ConsolidateCode(nil))

	got := ConsolidateCode([]intellitypes.FileContext{
		{Path: "/p/a.py", RelativePath: "a.py", Content: "x=1"},
		{Path: "/p/b.txt", RelativePath: "b.txt", Content: "hello\n"},
	})
	want := "### File: a.py\n```python\nx=1\n```\n\n### File: b.txt\n```\nhello\n```"
	assert.Equal(t, want, got)
}

func TestParseResponse(t *testing.T) {
	originals := []intellitypes.FileContext{
		{Path: "/p/m.py", RelativePath: "m.py"},
		{Path: "/p/pkg/n.py", RelativePath: "pkg/n.py"},
	}

	tests := []struct {
		name     string
		response string
		want     map[string]string
	}{
		{
			name:     "single file",
			response: "### File: m.py\n```python\ny=2\n```",
			want:     map[string]string{"/p/m.py": "y=2"},
		},
		{
			name:     "unknown path ignored",
			response: "### File: other.py\n```python\ny=2\n```",
			want:     map[string]string{},
		},
		{
			name:     "multiple files with prose",
			response: "Sure.\n### File: pkg/n.py\nUpdated:\n```\nz = 3\n```\n### File: m.py\n```python\n\ny=2\n\n```\nDone.",
			want:     map[string]string{"/p/pkg/n.py": "z = 3", "/p/m.py": "y=2"},
		},
		{
			name:     "header without block",
			response: "### File: m.py\nno code here",
			want:     map[string]string{},
		},
		{
			name:     "no partial matching",
			response: "### File: n.py\n```python\nq\n```",
			want:     map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseResponse(tt.response, originals))
		})
	}
}

func TestParseResponse_RoundTrip(t *testing.T) {
	files := []intellitypes.FileContext{
		{Path: "/p/a.py", RelativePath: "a.py", Content: "def f():\n    return 1"},
		{Path: "/p/b.py", RelativePath: "b.py", Content: "import a"},
	}

	got := ParseResponse(ConsolidateCode(files), files)
	assert.Equal(t, map[string]string{
		"/p/a.py": "def f():\n    return 1",
		"/p/b.py": "import a",
	}, got)
}
