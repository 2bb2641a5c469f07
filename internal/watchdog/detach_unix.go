//go:build unix

package watchdog

import (
	"os/exec"
	"syscall"
)

// detach puts the child in its own session so signals aimed at the watchdog
// do not reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
