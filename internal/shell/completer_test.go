package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"intellipy/internal/host"
	"intellipy/internal/mentions"
	"intellipy/internal/testutils"
)

func TestCompleter_Do(t *testing.T) {
	ws, err := host.NewWorkspace(testutils.CreateTempDir(t, map[string]string{"main.py": "", "lib/math_utils.py": ""}))
	if err != nil {
		t.Fatal(err)
	}
	c := NewCompleter(mentions.NewRegistry(ws, nil, nil))

	tests := []struct {
		name   string
		line   string
		pos    int
		want   []string
		length int
	}{
		{"command", "/he", 3, []string{"lp"}, 3},
		{"command prefix shared", "/s", 2, []string{"essions", "witch"}, 2},
		{"command only at line start", "ask /he", 7, nil, 3},
		{"file mention", "look at @mai", 12, []string{"n.py"}, 4},
		{"mention case-insensitive", "@MATH", 5, []string{"_utils.py"}, 5},
		{"workspace mention", "@work", 5, []string{"space"}, 5},
		{"cursor mid-line", "@mai rest", 4, []string{"n.py"}, 4},
		{"plain word", "hello", 5, nil, 5},
		{"empty", "", 0, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, length := c.Do([]rune(tt.line), tt.pos)
			var strs []string
			for _, r := range got {
				strs = append(strs, string(r))
			}
			assert.Equal(t, tt.want, strs)
			assert.Equal(t, tt.length, length)
		})
	}
}

func TestCompleter_NilRegistry(t *testing.T) {
	got, length := NewCompleter(nil).Do([]rune("@ma"), 3)
	assert.Empty(t, got)
	assert.Equal(t, 3, length)
}
