//go:build unix

package main

import (
	"os/exec"
	"syscall"
)

// setDaemonSysProcAttr detaches the child from the parent's session so
// it survives the parent exiting and is not delivered the parent's
// terminal signals.
func setDaemonSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
