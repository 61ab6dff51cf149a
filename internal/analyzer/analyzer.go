// Package analyzer assembles the files related to an anchor file and converts them to and from
// the "### File:" framing used in prompts.
package analyzer

import (
	"context"
	"path"
	"regexp"
	"strings"

	"intellipy/internal/logger"
	"intellipy/pkg/intellitypes"
)

const (
	// MaxFiles caps the number of files returned by GetRelevantFiles, anchor included.
	MaxFiles = 10
	// MaxFileSize is the largest content length admitted for a related file.
	MaxFileSize = 100000

	excludePattern = "**/node_modules/**"
	importLimit    = 5
	siblingLimit   = 10
	testLimit      = 5
)

var (
	importPattern   = regexp.MustCompile(`(?:from\s+(\S+)\s+import|import\s+(\S+))`)
	fileHeader      = regexp.MustCompile(`### File: (.*?)\n`)
	fencedCodeBlock = regexp.MustCompile("```(?:python)?\\n([\\s\\S]*?)```")
)

var languageByExtension = map[string]string{
	".py":  "python",
	".pyi": "python",
}

// Analyzer discovers context files inside a workspace.
type Analyzer struct {
	workspace intellitypes.Workspace
}

// New creates an Analyzer over ws.
func New(ws intellitypes.Workspace) *Analyzer {
	return &Analyzer{workspace: ws}
}

// GetRelevantFiles returns the anchor followed by files it imports, its siblings and its test
// files. The result never holds more than MaxFiles entries; candidates over MaxFileSize are
// skipped. The anchor itself is always included in full, whatever its size. An anchor outside
// the workspace yields no files.
func (a *Analyzer) GetRelevantFiles(ctx context.Context, anchor string) ([]intellitypes.FileContext, error) {
	if a.workspace == nil {
		return nil, nil
	}
	abs, err := a.workspace.Abs(anchor)
	if err != nil {
		logger.Debug("Anchor outside workspace", "path", anchor, "error", err)
		return nil, nil
	}

	content := a.read(abs)
	files := []intellitypes.FileContext{{
		Path:         abs,
		Content:      content,
		RelativePath: a.workspace.RelPath(abs),
	}}

	related, err := a.relatedFiles(ctx, abs, ExtractImports(content))
	if err != nil {
		return files, err
	}

	for _, candidate := range related {
		if len(files) >= MaxFiles {
			break
		}
		body := a.read(candidate)
		if len(body) > MaxFileSize {
			logger.Debug("Skipping oversized file", "path", candidate, "size", len(body))
			continue
		}
		files = append(files, intellitypes.FileContext{
			Path:         candidate,
			Content:      body,
			RelativePath: a.workspace.RelPath(candidate),
		})
	}

	logger.Debug("Relevant files collected", "anchor", abs, "count", len(files))
	return files, nil
}

func (a *Analyzer) read(p string) string {
	content, err := a.workspace.ReadFile(p)
	if err != nil {
		logger.Debug("Failed to read context file", "path", p, "error", err)
		return ""
	}
	return content
}

// relatedFiles returns the deduplicated candidates in discovery order, anchor excluded.
func (a *Analyzer) relatedFiles(ctx context.Context, anchor string, imports []string) ([]string, error) {
	rel := a.workspace.RelPath(anchor)
	dir := path.Dir(rel)
	base := strings.TrimSuffix(path.Base(rel), path.Ext(rel))

	siblings := "*.py"
	if dir != "." {
		siblings = dir + "/*.py"
	}

	type query struct {
		include string
		limit   int
	}
	queries := make([]query, 0, len(imports)+2)
	for _, name := range imports {
		queries = append(queries, query{include: "**/" + name + ".py", limit: importLimit})
	}
	queries = append(queries,
		query{include: siblings, limit: siblingLimit},
		query{include: "**/test_" + base + ".py", limit: testLimit},
	)

	seen := map[string]struct{}{anchor: {}}
	var out []string
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		matches, err := a.workspace.FindFiles(q.include, excludePattern, q.limit)
		if err != nil {
			logger.Warn("Related file search failed", "pattern", q.include, "error", err)
			continue
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out, nil
}

// ExtractImports returns the distinct top-level modules named by import statements in source
// order. Relative imports are ignored.
func ExtractImports(content string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range importPattern.FindAllStringSubmatch(content, -1) {
		module := m[1]
		if module == "" {
			module = m[2]
		}
		module = strings.TrimRight(module, ",;")
		if module == "" || strings.HasPrefix(module, ".") {
			continue
		}
		name, _, _ := strings.Cut(module, ".")
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// ConsolidateCode renders files as "### File:" headers each followed by a fenced block, in order.
func ConsolidateCode(files []intellitypes.FileContext) string {
	parts := make([]string, 0, len(files))
	for _, f := range files {
		var b strings.Builder
		b.WriteString("### File: ")
		b.WriteString(f.RelativePath)
		b.WriteString("\n```")
		b.WriteString(languageFor(f.RelativePath))
		b.WriteString("\n")
		b.WriteString(f.Content)
		if !strings.HasSuffix(f.Content, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("```")
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n\n")
}

func languageFor(p string) string {
	if lang, ok := languageByExtension[strings.ToLower(path.Ext(p))]; ok {
		return lang
	}
	return ""
}

// ParseResponse maps the absolute path of each original file echoed back under a "### File:"
// header to the trimmed content of the fenced block that follows it. Unknown paths and headers
// without a fenced block are ignored.
func ParseResponse(response string, originals []intellitypes.FileContext) map[string]string {
	byRel := make(map[string]string, len(originals))
	for _, f := range originals {
		byRel[f.RelativePath] = f.Path
	}

	updates := make(map[string]string)
	headers := fileHeader.FindAllStringSubmatchIndex(response, -1)
	for i, h := range headers {
		name := strings.TrimSpace(response[h[2]:h[3]])
		end := len(response)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		block := fencedCodeBlock.FindStringSubmatch(response[h[1]:end])
		if block == nil {
			continue
		}
		target, ok := byRel[name]
		if !ok {
			logger.Debug("Ignoring edit for unknown file", "path", name)
			continue
		}
		updates[target] = strings.TrimSpace(block[1])
	}
	return updates
}
