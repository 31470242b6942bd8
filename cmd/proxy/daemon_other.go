//go:build !unix

package main

import "os/exec"

// setDaemonSysProcAttr is a no-op on platforms without setsid.
func setDaemonSysProcAttr(cmd *exec.Cmd) {}
