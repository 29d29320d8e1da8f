// SPDX-License-Identifier: MPL-2.0

package launcher

import (
	"context"
	"net"
	"os"
)

type (
	// WorkerExit describes how a worker process ended.
	WorkerExit struct {
		Code int
		// Signal is set when the process was killed by a signal.
		Signal os.Signal
		// Err is set when waiting failed.
		Err error
	}

	// Worker is a running worker process.
	Worker interface {
		ID() int
		Pid() int
		// Ready is closed once the worker has loaded the application and
		// is accepting connections.
		Ready() <-chan struct{}
		// Done is closed when the process has exited.
		Done() <-chan struct{}
		// Exit returns the exit status. Valid after Done is closed.
		Exit() WorkerExit
		Signal(sig os.Signal) error
		Kill() error
	}

	// Spawner starts worker processes sharing ln.
	Spawner interface {
		Spawn(ctx context.Context, id int, ln net.Listener) (Worker, error)
	}
)
