package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"intellipy/internal/logger"
)

const (
	defaultSearchInclude = "**/*.py"
	defaultSearchExclude = "**/node_modules/**"
	maxMatchesPerFile    = 5
	noMatches            = "No matches found"
)

var (
	errNoWorkspace = errors.New("no workspace available")
	errNoRunner    = errors.New("no command runner available")
)

// BuiltinTools returns the standard tool set.
func BuiltinTools() []Tool {
	return []Tool{
		{
			Name:        "readFile",
			Description: "Read contents of a file",
			Params:      `{"path": "<file>"}`,
			Execute:     readFile,
		},
		{
			Name:                 "writeFile",
			Description:          "Write content to a file",
			Params:               `{"path": "<file>", "content": "<full new content>"}`,
			RequiresConfirmation: true,
			Execute:              writeFile,
		},
		{
			Name:                 "runCommand",
			Description:          "Execute a terminal command",
			Params:               `{"command": "<shell command>", "cwd": "<optional directory>"}`,
			RequiresConfirmation: true,
			Execute:              runCommand,
		},
		{
			Name:        "searchFiles",
			Description: "Search for text in files",
			Params:      `{"query": "<literal text>", "include": "<optional glob>", "exclude": "<optional glob>"}`,
			Execute:     searchFiles,
		},
		{
			Name:                 "createFile",
			Description:          "Create a new file",
			Params:               `{"path": "<file>", "content": "<optional content>"}`,
			RequiresConfirmation: true,
			Execute:              createFile,
		},
		{
			Name:                 "deleteFile",
			Description:          "Delete a file",
			Params:               `{"path": "<file>"}`,
			RequiresConfirmation: true,
			Execute:              deleteFile,
		},
	}
}

func readFile(_ context.Context, env Env, args map[string]any) (string, error) {
	if env.Workspace == nil {
		return "", errNoWorkspace
	}
	path, err := requireString(args, "path")
	if err != nil {
		return "", err
	}
	content, err := env.Workspace.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}

func writeFile(_ context.Context, env Env, args map[string]any) (string, error) {
	if env.Workspace == nil {
		return "", errNoWorkspace
	}
	path, err := requireString(args, "path")
	if err != nil {
		return "", err
	}
	content := argString(args, "content")
	if err := env.Workspace.WriteFile(path, content); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return "File written: " + path, nil
}

func runCommand(ctx context.Context, env Env, args map[string]any) (string, error) {
	if env.Runner == nil {
		return "", errNoRunner
	}
	command, err := requireString(args, "command")
	if err != nil {
		return "", err
	}

	dir := ""
	if env.Workspace != nil {
		dir = env.Workspace.Root()
	}
	if cwd, ok := stringArg(args, "cwd"); ok && cwd != "" {
		dir = cwd
		if env.Workspace != nil {
			if dir, err = env.Workspace.Abs(cwd); err != nil {
				return "", fmt.Errorf("command failed: %w", err)
			}
		}
	}

	stdout, stderr, err := env.Runner.Run(ctx, command, dir)
	if err != nil {
		if msg := strings.TrimSpace(stderr); msg != "" {
			return "", fmt.Errorf("command failed: %w\n%s", err, msg)
		}
		return "", fmt.Errorf("command failed: %w", err)
	}
	if stdout != "" {
		return stdout, nil
	}
	return stderr, nil
}

func searchFiles(_ context.Context, env Env, args map[string]any) (string, error) {
	if env.Workspace == nil {
		return "", errNoWorkspace
	}
	query, ok := stringArg(args, "query")
	if !ok || query == "" {
		return "", fmt.Errorf("missing required argument 'query'")
	}
	include := argString(args, "include")
	if include == "" {
		include = defaultSearchInclude
	}
	exclude := argString(args, "exclude")
	if exclude == "" {
		exclude = defaultSearchExclude
	}

	files, err := env.Workspace.FindFiles(include, exclude, 0)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}

	var results []string
	for _, file := range files {
		text, err := env.Workspace.ReadFile(file)
		if err != nil {
			logger.Debug("Skipping unreadable file during search", "path", file, "error", err)
			continue
		}
		if !strings.Contains(text, query) {
			continue
		}

		var matches []string
		for i, line := range strings.Split(text, "\n") {
			if strings.Contains(line, query) {
				matches = append(matches, fmt.Sprintf("  %d: %s", i+1, strings.TrimSpace(line)))
				if len(matches) == maxMatchesPerFile {
					break
				}
			}
		}
		results = append(results, env.Workspace.RelPath(file)+":\n"+strings.Join(matches, "\n"))
	}

	if len(results) == 0 {
		return noMatches, nil
	}
	return strings.Join(results, "\n\n"), nil
}

func createFile(_ context.Context, env Env, args map[string]any) (string, error) {
	if env.Workspace == nil {
		return "", errNoWorkspace
	}
	path, err := requireString(args, "path")
	if err != nil {
		return "", err
	}
	if err := env.Workspace.CreateFile(path, argString(args, "content")); err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	if env.Editor != nil {
		abs, err := env.Workspace.Abs(path)
		if err == nil {
			err = env.Editor.ShowDocument(abs)
		}
		if err != nil {
			logger.Warn("Created file could not be shown", "path", path, "error", err)
		}
	}
	return "Created file: " + path, nil
}

func deleteFile(_ context.Context, env Env, args map[string]any) (string, error) {
	if env.Workspace == nil {
		return "", errNoWorkspace
	}
	path, err := requireString(args, "path")
	if err != nil {
		return "", err
	}
	if err := env.Workspace.DeleteFile(path); err != nil {
		return "", fmt.Errorf("failed to delete file: %w", err)
	}
	return "Deleted file: " + path, nil
}
