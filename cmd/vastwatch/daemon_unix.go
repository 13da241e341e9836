//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// configureDaemonAttrs sets Unix-specific daemon attributes
func configureDaemonAttrs(cmd *exec.Cmd) {
	// New session so the monitor survives the terminal closing
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}
