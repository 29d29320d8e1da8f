// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package launcher

import "os"

func exitSignal(*os.ProcessState) os.Signal { return nil }

func signalNumber(os.Signal) int { return 0 }
