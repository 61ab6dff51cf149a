//go:build windows

package host

func shellCommand(command string) (string, []string) {
	return "cmd", []string{"/C", command}
}
