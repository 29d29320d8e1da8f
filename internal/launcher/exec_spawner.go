// SPDX-License-Identifier: MPL-2.0

package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
)

// WorkerIDEnv carries the worker slot number into the worker process.
const WorkerIDEnv = "GANTRY_WORKER_ID"

// errNoListenerFile is returned for listeners that cannot be passed to a
// child process.
var errNoListenerFile = errors.New("listener cannot be shared with a child process")

type (
	// ExecSpawnerConfig configures an ExecSpawner.
	ExecSpawnerConfig struct {
		// Path is the worker binary. Defaults to the running executable.
		Path string
		// Args replaces the default "worker --app <App>" arguments.
		Args []string
		App  string
		// Env is appended to the inherited environment.
		Env    []string
		Stdout io.Writer
		Stderr io.Writer
		Logger *log.Logger
	}

	// ExecSpawner starts workers as child processes. The listening socket
	// is inherited as file descriptor 3 and the readiness pipe as 4.
	ExecSpawner struct {
		cfg ExecSpawnerConfig
	}

	execWorker struct {
		id    int
		cmd   *exec.Cmd
		ready chan struct{}
		done  chan struct{}

		mu   sync.Mutex
		exit WorkerExit
	}

	fileListener interface {
		File() (*os.File, error)
	}
)

// NewExecSpawner creates an ExecSpawner.
func NewExecSpawner(cfg ExecSpawnerConfig) *ExecSpawner {
	if cfg.Args == nil {
		cfg.Args = []string{"worker", "--app", cfg.App}
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &ExecSpawner{cfg: cfg}
}

// Spawn starts one worker process.
func (s *ExecSpawner) Spawn(ctx context.Context, id int, ln net.Listener) (Worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.cfg.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve worker binary: %w", err)
		}
		path = exe
	}

	fl, ok := ln.(fileListener)
	if !ok {
		return nil, fmt.Errorf("%w: %T", errNoListenerFile, ln)
	}
	lnFile, err := fl.File()
	if err != nil {
		return nil, fmt.Errorf("duplicate listener: %w", err)
	}
	defer lnFile.Close()

	readyR, readyW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("readiness pipe: %w", err)
	}

	// The worker outlives ctx on purpose: it is stopped by Signal or Kill.
	cmd := exec.Command(path, s.cfg.Args...) //nolint:gosec // path is the trusted worker binary
	cmd.Env = append(os.Environ(), s.cfg.Env...)
	cmd.Env = append(cmd.Env, WorkerIDEnv+"="+strconv.Itoa(id))
	cmd.Stdout = s.cfg.Stdout
	cmd.Stderr = s.cfg.Stderr
	cmd.ExtraFiles = []*os.File{lnFile, readyW}
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		_ = readyR.Close()
		_ = readyW.Close()
		return nil, fmt.Errorf("start worker: %w", err)
	}
	_ = readyW.Close()

	w := &execWorker{
		id:    id,
		cmd:   cmd,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	go w.awaitReady(readyR)
	go w.wait()

	s.cfg.Logger.Debug("spawned worker", "worker", id, "pid", cmd.Process.Pid, "path", path)
	return w, nil
}

// awaitReady closes ready on the first byte. EOF without a byte means the
// worker exited before it was ready.
func (w *execWorker) awaitReady(r *os.File) {
	defer r.Close()
	var buf [1]byte
	if n, _ := r.Read(buf[:]); n == 1 {
		close(w.ready)
	}
}

func (w *execWorker) wait() {
	err := w.cmd.Wait()

	exit := WorkerExit{}
	if ps := w.cmd.ProcessState; ps != nil {
		exit.Code = ps.ExitCode()
		if sig := exitSignal(ps); sig != nil {
			exit.Signal = sig
			exit.Code = 128 + signalNumber(sig)
		}
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		exit.Err = err
		if exit.Code == 0 {
			exit.Code = -1
		}
	}

	w.mu.Lock()
	w.exit = exit
	w.mu.Unlock()
	close(w.done)
}

func (w *execWorker) ID() int                { return w.id }
func (w *execWorker) Pid() int               { return w.cmd.Process.Pid }
func (w *execWorker) Ready() <-chan struct{} { return w.ready }
func (w *execWorker) Done() <-chan struct{}  { return w.done }

func (w *execWorker) Exit() WorkerExit {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exit
}

func (w *execWorker) Signal(sig os.Signal) error {
	err := w.cmd.Process.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (w *execWorker) Kill() error {
	err := w.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
