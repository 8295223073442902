// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package selfupdate

import (
	"os/exec"
	"syscall"
)

// detach starts cmd in its own session so it outlives nsm and the terminal
// nsm was started from.
func detach(cmd *exec.Cmd, _ string) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
