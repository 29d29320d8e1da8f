// SPDX-License-Identifier: MPL-2.0

package launcher

import (
	"os/exec"
	"syscall"
)

// setProcAttr kills the worker if the master dies without draining.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
}
