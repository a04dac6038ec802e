//go:build !windows

package system

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup starts the child in its own process group so a forced
// kill also reaches descendants holding the output pipes.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// forceKill sends SIGKILL to the process group, falling back to the process.
func forceKill(p *os.Process) error {
	if err := syscall.Kill(-p.Pid, syscall.SIGKILL); err != nil {
		return p.Kill()
	}
	return nil
}
