// SPDX-License-Identifier: MPL-2.0

//go:build !linux

package launcher

import "os/exec"

func setProcAttr(*exec.Cmd) {}
