package system

import "strings"

// BuildArgv turns a command line into an argument vector for goos.
//
// On Windows the whole command is wrapped as a single cmd.exe invocation so
// shell built-ins work. Elsewhere the command is split on whitespace with no
// quoting or escaping support: multi-word quoted arguments are not supported.
func BuildArgv(goos, command string) []string {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil
	}
	if goos == "windows" {
		return []string{"cmd.exe", "/c", command}
	}
	return strings.Fields(command)
}
