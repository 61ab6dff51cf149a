package shell

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"intellipy/internal/mentions"
)

// Completer completes slash commands at the start of a line and @-mentions anywhere.
// It implements readline.AutoCompleter.
type Completer struct {
	mentions *mentions.Registry
}

// NewCompleter creates a completer. registry may be nil.
func NewCompleter(registry *mentions.Registry) *Completer {
	return &Completer{mentions: registry}
}

// Do returns the suffixes that complete the word before pos and the length of that word.
func (c *Completer) Do(line []rune, pos int) ([][]rune, int) {
	if pos > len(line) {
		pos = len(line)
	}
	start := pos
	for start > 0 && !unicode.IsSpace(line[start-1]) {
		start--
	}
	word := string(line[start:pos])

	var candidates []string
	switch {
	case start == 0 && strings.HasPrefix(word, "/"):
		for name := range commands {
			candidates = append(candidates, name)
		}
		sort.Strings(candidates)
	case strings.HasPrefix(word, "@") && c.mentions != nil:
		for _, item := range c.mentions.Completions(context.Background(), word) {
			candidates = append(candidates, item.Label)
		}
	}

	var out [][]rune
	for _, cand := range candidates {
		if len(cand) > len(word) && strings.HasPrefix(strings.ToLower(cand), strings.ToLower(word)) {
			out = append(out, []rune(cand[len(word):]))
		}
	}
	return out, len([]rune(word))
}
