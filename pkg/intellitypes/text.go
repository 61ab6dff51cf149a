package intellitypes

import "strings"

// TextInRange extracts the text of r from text. Out-of-bounds positions are clamped.
func TextInRange(text string, r Range) string {
	lines := strings.Split(text, "\n")
	clampLine := func(l int) int {
		if l < 0 {
			return 0
		}
		if l >= len(lines) {
			return len(lines) - 1
		}
		return l
	}
	clampCol := func(line string, c int) int {
		if c < 0 {
			return 0
		}
		if c > len(line) {
			return len(line)
		}
		return c
	}

	sl, el := clampLine(r.StartLine), clampLine(r.EndLine)
	if el < sl {
		return ""
	}
	sc := clampCol(lines[sl], r.StartCol)
	ec := clampCol(lines[el], r.EndCol)
	if sl == el {
		if ec < sc {
			return ""
		}
		return lines[sl][sc:ec]
	}

	var b strings.Builder
	b.WriteString(lines[sl][sc:])
	for i := sl + 1; i < el; i++ {
		b.WriteString("\n")
		b.WriteString(lines[i])
	}
	b.WriteString("\n")
	b.WriteString(lines[el][:ec])
	return b.String()
}
