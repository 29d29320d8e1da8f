// SPDX-License-Identifier: MPL-2.0

package launcher

import (
	"errors"
	"fmt"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitFatal      = 1
	ExitWorkerBoot = 3
	ExitAppLoad    = 4
)

var (
	// ErrBind is returned when the listening socket cannot be bound.
	ErrBind = errors.New("cannot bind listening socket")
	// ErrStartupTimeout is returned when workers do not become ready in time.
	ErrStartupTimeout = errors.New("workers not ready before startup timeout")
	// ErrCrashLoop is returned when workers exit faster than the restart budget.
	ErrCrashLoop = errors.New("workers are crash looping")
	// ErrWorkerBoot is returned when a worker cannot adopt its listener.
	ErrWorkerBoot = errors.New("worker failed to boot")
	// ErrAppLoad is returned when a worker cannot load the application object.
	ErrAppLoad = errors.New("failed to load application")
	// ErrWorkerExited is returned when a worker exits during startup.
	ErrWorkerExited = errors.New("worker exited")
)

// WorkerExitError reports a worker exit that the master treats as fatal.
type WorkerExitError struct {
	ID   int
	Pid  int
	Code int
	Err  error
}

func (e *WorkerExitError) Error() string {
	msg := fmt.Sprintf("worker %d (pid %d) exited with code %d", e.ID, e.Pid, e.Code)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap maps the worker exit code to ErrAppLoad, ErrWorkerBoot or
// ErrWorkerExited.
func (e *WorkerExitError) Unwrap() []error {
	var kind error
	switch e.Code {
	case ExitAppLoad:
		kind = ErrAppLoad
	case ExitWorkerBoot:
		kind = ErrWorkerBoot
	default:
		kind = ErrWorkerExited
	}
	if e.Err != nil {
		return []error{kind, e.Err}
	}
	return []error{kind}
}

// ExitCode maps an error returned by Master.Run or RunWorker to a process
// exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrAppLoad):
		return ExitAppLoad
	case errors.Is(err, ErrWorkerBoot):
		return ExitWorkerBoot
	default:
		return ExitFatal
	}
}
