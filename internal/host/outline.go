package host

import (
	"context"
	"regexp"
	"strings"

	"intellipy/pkg/intellitypes"
)

var (
	classPattern    = regexp.MustCompile(`^(\s*)class\s+([A-Za-z_]\w*)`)
	defPattern      = regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+([A-Za-z_]\w*)`)
	constantPattern = regexp.MustCompile(`^([A-Za-z_]\w*)\s*(?::[^=]*)?=[^=]`)
)

// PythonOutline builds document outlines from Python indentation. It recognizes classes,
// functions, methods and module-level assignments.
type PythonOutline struct {
	ws *Workspace
}

// NewPythonOutline creates an outline provider reading files from ws.
func NewPythonOutline(ws *Workspace) *PythonOutline {
	return &PythonOutline{ws: ws}
}

// DocumentSymbols returns the symbol tree of the file at path.
func (o *PythonOutline) DocumentSymbols(_ context.Context, path string) ([]intellitypes.Symbol, error) {
	text, err := o.ws.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePythonSymbols(text), nil
}

type outlineNode struct {
	symbol   intellitypes.Symbol
	indent   int
	children []*outlineNode
}

// ParsePythonSymbols returns the class/def tree of source. A symbol's range runs from its header
// to the last non-blank line indented deeper than it.
func ParsePythonSymbols(source string) []intellitypes.Symbol {
	lines := strings.Split(source, "\n")
	var roots []*outlineNode
	var stack []*outlineNode

	closeTo := func(indent int) {
		for len(stack) > 0 && stack[len(stack)-1].indent >= indent {
			stack = stack[:len(stack)-1]
		}
	}
	extend := func(line int) {
		for _, n := range stack {
			n.symbol.Range.EndLine = line
			n.symbol.Range.EndCol = len(lines[line])
		}
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		closeTo(indent)

		node := symbolAt(line, i, indent, len(stack) > 0 && stack[len(stack)-1].symbol.Kind == "Class")
		extend(i)
		if node == nil {
			continue
		}

		if len(stack) == 0 {
			roots = append(roots, node)
		} else {
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, node)
		}
		if node.symbol.Kind != "Variable" && node.symbol.Kind != "Constant" {
			stack = append(stack, node)
		}
	}

	return flattenNodes(roots)
}

func symbolAt(line string, lineNo, indent int, inClass bool) *outlineNode {
	newNode := func(name, kind string) *outlineNode {
		return &outlineNode{
			indent: indent,
			symbol: intellitypes.Symbol{
				Name:  name,
				Kind:  kind,
				Range: intellitypes.Range{StartLine: lineNo, StartCol: indent, EndLine: lineNo, EndCol: len(line)},
			},
		}
	}

	if m := classPattern.FindStringSubmatch(line); m != nil {
		return newNode(m[2], "Class")
	}
	if m := defPattern.FindStringSubmatch(line); m != nil {
		if inClass {
			return newNode(m[2], "Method")
		}
		return newNode(m[2], "Function")
	}
	if indent == 0 {
		if m := constantPattern.FindStringSubmatch(line); m != nil {
			if strings.ToUpper(m[1]) == m[1] {
				return newNode(m[1], "Constant")
			}
			return newNode(m[1], "Variable")
		}
	}
	return nil
}

func flattenNodes(nodes []*outlineNode) []intellitypes.Symbol {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]intellitypes.Symbol, 0, len(nodes))
	for _, n := range nodes {
		s := n.symbol
		s.Children = flattenNodes(n.children)
		out = append(out, s)
	}
	return out
}
