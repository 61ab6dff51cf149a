package host

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intellipy/internal/testutils"
)

func newTestWorkspace(t *testing.T, files map[string]string) *Workspace {
	t.Helper()
	ws, err := NewWorkspace(testutils.CreateTempDir(t, files))
	require.NoError(t, err)
	return ws
}

func rels(ws *Workspace, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, ws.RelPath(p))
	}
	return out
}

func TestNewWorkspace_Errors(t *testing.T) {
	_, err := NewWorkspace(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := testutils.CreateTempFile(t, "f.txt", "x")
	_, err = NewWorkspace(file)
	assert.Error(t, err)
}

func TestFindFiles(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{
		"main.py":                "",
		"pkg/util.py":            "",
		"pkg/deep/inner.py":      "",
		"pkg/readme.md":          "",
		"node_modules/lib/x.py":  "",
		".git/hooks/pre.py":      "",
		"build/generated/gen.py": "",
	})

	tests := []struct {
		name    string
		include string
		exclude string
		limit   int
		want    []string
	}{
		{"all python", "**/*.py", "**/node_modules/**", 0, []string{"build/generated/gen.py", "main.py", "pkg/deep/inner.py", "pkg/util.py"}},
		{"excluded subtree", "**/*.py", "build/**", 0, []string{"main.py", "pkg/deep/inner.py", "pkg/util.py"}},
		{"single directory", "pkg/*.py", "", 0, []string{"pkg/util.py"}},
		{"named module", "**/util.py", "**/node_modules/**", 5, []string{"pkg/util.py"}},
		{"limited", "**/*.py", "", 2, []string{"build/generated/gen.py", "main.py"}},
		{"no matches", "**/*.rs", "", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ws.FindFiles(tt.include, tt.exclude, tt.limit)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, rels(ws, got))
			for _, p := range got {
				assert.True(t, filepath.IsAbs(p))
			}
		})
	}
}

func TestFindFiles_BadPattern(t *testing.T) {
	ws := newTestWorkspace(t, nil)
	_, err := ws.FindFiles("[", "", 0)
	assert.Error(t, err)
	_, err = ws.FindFiles("*.py", "[", 0)
	assert.Error(t, err)
}

func TestAbs(t *testing.T) {
	ws := newTestWorkspace(t, nil)

	got, err := ws.Abs("a/b.py")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws.Root(), "a", "b.py"), got)

	got, err = ws.Abs(filepath.Join(ws.Root(), "x.py"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws.Root(), "x.py"), got)

	for _, bad := range []string{"../outside.py", "a/../../x", filepath.Join(filepath.Dir(ws.Root()), "sibling")} {
		_, err := ws.Abs(bad)
		assert.ErrorIs(t, err, ErrOutsideWorkspace, bad)
	}
	_, err = ws.Abs("")
	assert.Error(t, err)
}

func TestFileOperations(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{"a.py": "x = 1"})

	content, err := ws.ReadFile("a.py")
	require.NoError(t, err)
	assert.Equal(t, "x = 1", content)

	require.NoError(t, ws.WriteFile("nested/dir/b.py", "y = 2"))
	content, err = ws.ReadFile(filepath.Join(ws.Root(), "nested", "dir", "b.py"))
	require.NoError(t, err)
	assert.Equal(t, "y = 2", content)

	require.NoError(t, ws.CreateFile("c.py", "z"))
	err = ws.CreateFile("c.py", "again")
	assert.ErrorIs(t, err, os.ErrExist)

	require.NoError(t, ws.DeleteFile("c.py"))
	_, err = ws.ReadFile("c.py")
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorIs(t, ws.DeleteFile("c.py"), os.ErrNotExist)
	assert.Error(t, ws.DeleteFile("nested"))

	assert.ErrorIs(t, ws.WriteFile("../escape.py", ""), ErrOutsideWorkspace)
}
