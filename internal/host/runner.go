package host

import (
	"bytes"
	"context"
	"os/exec"

	"intellipy/internal/logger"
)

// ShellRunner runs command lines through the platform shell.
type ShellRunner struct{}

// NewShellRunner creates a ShellRunner.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{}
}

// Run executes command in dir and returns its captured output streams.
func (r *ShellRunner) Run(ctx context.Context, command, dir string) (string, string, error) {
	name, args := shellCommand(command)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("Running command", "dir", dir, "command", command)
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
