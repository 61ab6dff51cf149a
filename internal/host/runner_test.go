package host

import (
	"context"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX shell syntax")
	}
	dir := t.TempDir()
	runner := NewShellRunner()

	stdout, stderr, err := runner.Run(context.Background(), "echo hello && echo oops 1>&2", dir)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", stdout)
	assert.Equal(t, "oops\n", stderr)

	stdout, _, err = runner.Run(context.Background(), "pwd", dir)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(stdout), strings.TrimPrefix(dir, "/private")))

	_, _, err = runner.Run(context.Background(), "exit 3", dir)
	assert.Error(t, err)
}

func TestShellRunner_Cancelled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX shell syntax")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewShellRunner().Run(ctx, "sleep 5", t.TempDir())
	assert.Error(t, err)
}
