// SPDX-License-Identifier: MPL-2.0

//go:build unix

package launcher

import (
	"os"
	"syscall"
)

func exitSignal(ps *os.ProcessState) os.Signal {
	ws, ok := ps.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return nil
	}
	return ws.Signal()
}

func signalNumber(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return 0
}
