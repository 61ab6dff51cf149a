//go:build !windows

package host

func shellCommand(command string) (string, []string) {
	return "sh", []string{"-c", command}
}
