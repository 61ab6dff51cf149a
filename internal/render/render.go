// Package render turns chat output into terminal text. Markdown goes through Glamour and
// role headers, diffs and tables are styled with lipgloss.
package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"intellipy/internal/logger"
	"intellipy/pkg/intellitypes"
)

var diffFence = regexp.MustCompile("```diff\\n([\\s\\S]*?)```")

// DefaultWordWrap is the wrap width used when none is configured.
const DefaultWordWrap = 80

// Styles accepted by New.
var Styles = []string{"auto", "dark", "light", "notty", "ascii"}

// Renderer renders chat messages for the terminal.
type Renderer struct {
	markdown *glamour.TermRenderer
	plain    bool

	user      lipgloss.Style
	assistant lipgloss.Style
	system    lipgloss.Style
	added     lipgloss.Style
	removed   lipgloss.Style
	header    lipgloss.Style
}

// New creates a renderer. An empty style means "auto"; terminals without color support always
// get the plain "notty" style.
func New(style string, wordWrap int) (*Renderer, error) {
	if style == "" {
		style = "auto"
	}
	if wordWrap <= 0 {
		wordWrap = DefaultWordWrap
	}
	plain := style == "notty" || style == "ascii" || lipgloss.ColorProfile() == termenv.Ascii
	if plain && style == "auto" {
		style = "notty"
	}

	opts := []glamour.TermRendererOption{glamour.WithWordWrap(wordWrap)}
	if style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStylePath(style))
	}
	if plain {
		opts = append(opts, glamour.WithColorProfile(termenv.Ascii))
	}

	md, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer with style '%s': %w", style, err)
	}

	r := &Renderer{
		markdown:  md,
		plain:     plain,
		user:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		system:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244")),
		added:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		removed:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		header:    lipgloss.NewStyle().Bold(true).Underline(true),
	}
	logger.Debug("Renderer initialized", "style", style, "wrap", wordWrap, "plain", plain)
	return r, nil
}

// Markdown renders text as markdown. Rendering failures return the text unchanged.
func (r *Renderer) Markdown(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	out, err := r.markdown.Render(text)
	if err != nil {
		logger.Debug("Markdown rendering failed", "error", err)
		return text
	}
	return strings.Trim(out, "\n")
}

// Message renders one chat message under a role header. System messages have no header and
// their diff blocks are colored line by line.
func (r *Renderer) Message(role intellitypes.Role, mode intellitypes.ChatMode, content string) string {
	var head string
	switch role {
	case intellitypes.RoleUser:
		head = r.style(r.user, "You")
	case intellitypes.RoleSystem:
		if diffFence.MatchString(content) {
			return diffFence.ReplaceAllStringFunc(content, func(block string) string {
				return r.Diff(diffFence.FindStringSubmatch(block)[1])
			})
		}
		return r.style(r.system, content)
	default:
		label := "IntelliPy"
		if mode != "" {
			label += " (" + string(mode) + ")"
		}
		head = r.style(r.assistant, label)
	}
	return head + "\n" + r.Markdown(content)
}

// Diff colors the lines of a prefixed line diff.
func (r *Renderer) Diff(diff string) string {
	if diff == "" {
		return ""
	}
	lines := strings.Split(strings.TrimSuffix(diff, "\n"), "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "+ "):
			lines[i] = r.style(r.added, line)
		case strings.HasPrefix(line, "- "):
			lines[i] = r.style(r.removed, line)
		}
	}
	return strings.Join(lines, "\n")
}

// Table lays out rows in columns padded to the widest visible cell. The first row is the header.
func (r *Renderer) Table(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], ansi.StringWidth(cell))
		}
	}

	var b strings.Builder
	for n, row := range rows {
		for i, cell := range row {
			if n == 0 {
				cell = r.style(r.header, cell)
			}
			b.WriteString(cell)
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-ansi.StringWidth(row[i])+2))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if r.plain {
		return text
	}
	return s.Render(text)
}

// Plain strips terminal escape sequences from s.
func Plain(s string) string {
	return ansi.Strip(s)
}
