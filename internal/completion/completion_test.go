package completion

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intellipy/internal/config"
	"intellipy/internal/testutils"
	"intellipy/pkg/intellitypes"
)

func newEngine(spy *testutils.SpyProvider) (*Engine, *config.Settings) {
	settings := config.New()
	return NewEngine(settings, func() (intellitypes.Provider, error) { return spy, nil }), settings
}

func TestSuggest(t *testing.T) {
	spy := &testutils.SpyProvider{Replies: []string{"  range(10):\n"}}
	e, _ := newEngine(spy)

	got, err := e.Suggest(context.Background(), Request{
		Text:       "import os\nfor i in\nprint(i)",
		LanguageID: "python",
		Line:       1,
		Col:        8,
	})
	require.NoError(t, err)
	assert.Equal(t, "range(10):", got)

	require.Equal(t, 1, spy.CallCount())
	assert.Contains(t, spy.Calls[0].Message, "Complete this python code.")
	assert.Contains(t, spy.Calls[0].Message, "import os\nfor i in\n\nContext:")
	assert.NotContains(t, spy.Calls[0].Message, "print(i)")
	assert.Empty(t, spy.Calls[0].Context)
}

func TestSuggest_Skipped(t *testing.T) {
	tests := []struct {
		name string
		text string
		col  int
	}{
		{"short prefix", "  x ", 4},
		{"trailing dot", "value = os.", 11},
		{"trailing semicolon", "x = 1;", 6},
		{"empty line", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := &testutils.SpyProvider{Replies: []string{"nope"}}
			e, _ := newEngine(spy)
			got, err := e.Suggest(context.Background(), Request{Text: tt.text, Col: tt.col, LanguageID: "python"})
			require.NoError(t, err)
			assert.Empty(t, got)
			assert.Zero(t, spy.CallCount())
		})
	}
}

func TestSuggest_Disabled(t *testing.T) {
	spy := &testutils.SpyProvider{Replies: []string{"x"}}
	e, settings := newEngine(spy)
	settings.Set(config.Key(config.KeyEnableInlineCompletions), false)

	assert.False(t, e.Enabled())
	got, err := e.Suggest(context.Background(), Request{Text: "def main", Col: 8})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, spy.CallCount())

	settings.Set(config.Key(config.KeyEnableInlineCompletions), true)
	got, err = e.Suggest(context.Background(), Request{Text: "def main", Col: 8})
	require.NoError(t, err)
	assert.Equal(t, "x", got)
}

func TestSuggest_ProviderError(t *testing.T) {
	spy := &testutils.SpyProvider{Err: testutils.ErrFake}
	e, _ := newEngine(spy)
	_, err := e.Suggest(context.Background(), Request{Text: "def main", Col: 8})
	assert.ErrorIs(t, err, testutils.ErrFake)

	e = NewEngine(nil, nil)
	_, err = e.Suggest(context.Background(), Request{Text: "def main", Col: 8})
	assert.Error(t, err)
}

func TestCursorWindow(t *testing.T) {
	var lines []string
	for i := 0; i < 15; i++ {
		lines = append(lines, strings.Repeat("x", i+1))
	}
	text := strings.Join(lines, "\n")

	prefix, window := cursorWindow(Request{Text: text, Line: 14, Col: 3})
	assert.Equal(t, "xxx", prefix)
	windowLines := strings.Split(window, "\n")
	assert.Len(t, windowLines, 11)
	assert.Equal(t, "xxxxx", windowLines[0])

	prefix, window = cursorWindow(Request{Text: "abc", Line: 5, Col: 99})
	assert.Equal(t, "abc", prefix)
	assert.Equal(t, "abc", window)
}
