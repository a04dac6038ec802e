//go:build windows

package system

import (
	"os"
	"os/exec"
)

func setProcessGroup(_ *exec.Cmd) {}

func forceKill(p *os.Process) error {
	return p.Kill()
}
