// SPDX-License-Identifier: MPL-2.0

package launcher

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

const waitTimeout = 5 * time.Second

type (
	fakeWorker struct {
		id, pid int

		ready     chan struct{}
		done      chan struct{}
		readyOnce sync.Once
		doneOnce  sync.Once

		mu         sync.Mutex
		exit       WorkerExit
		signals    []os.Signal
		killed     bool
		ignoreTerm bool
	}

	fakeSpawner struct {
		mu      sync.Mutex
		nextPid int
		workers []*fakeWorker
		spawned chan *fakeWorker
		err     error

		// onSpawn runs for every new worker before Spawn returns.
		onSpawn func(w *fakeWorker)
		// ignoreTerm makes workers survive SIGTERM.
		ignoreTerm bool
	}
)

func newFakeSpawner(onSpawn func(w *fakeWorker)) *fakeSpawner {
	return &fakeSpawner{nextPid: 1000, spawned: make(chan *fakeWorker, 64), onSpawn: onSpawn}
}

func autoReady(w *fakeWorker) { w.markReady() }

func (s *fakeSpawner) Spawn(_ context.Context, id int, ln net.Listener) (Worker, error) {
	if ln == nil {
		return nil, errors.New("no listener")
	}
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return nil, s.err
	}
	s.nextPid++
	w := &fakeWorker{
		id:         id,
		pid:        s.nextPid,
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
		ignoreTerm: s.ignoreTerm,
	}
	s.workers = append(s.workers, w)
	s.mu.Unlock()

	if s.onSpawn != nil {
		s.onSpawn(w)
	}
	s.spawned <- w
	return w, nil
}

func (s *fakeSpawner) all() []*fakeWorker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeWorker(nil), s.workers...)
}

func (w *fakeWorker) markReady() { w.readyOnce.Do(func() { close(w.ready) }) }

func (w *fakeWorker) exitWith(exit WorkerExit) {
	w.doneOnce.Do(func() {
		w.mu.Lock()
		w.exit = exit
		w.mu.Unlock()
		close(w.done)
	})
}

func (w *fakeWorker) ID() int                { return w.id }
func (w *fakeWorker) Pid() int               { return w.pid }
func (w *fakeWorker) Ready() <-chan struct{} { return w.ready }
func (w *fakeWorker) Done() <-chan struct{}  { return w.done }

func (w *fakeWorker) Exit() WorkerExit {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exit
}

func (w *fakeWorker) Signal(sig os.Signal) error {
	w.mu.Lock()
	w.signals = append(w.signals, sig)
	ignore := w.ignoreTerm
	w.mu.Unlock()
	if !ignore {
		w.exitWith(WorkerExit{Code: 0})
	}
	return nil
}

func (w *fakeWorker) Kill() error {
	w.mu.Lock()
	w.killed = true
	w.mu.Unlock()
	w.exitWith(WorkerExit{Code: 128 + int(syscall.SIGKILL), Signal: syscall.SIGKILL})
	return nil
}

func (w *fakeWorker) gotSignals() []os.Signal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]os.Signal(nil), w.signals...)
}

func (w *fakeWorker) wasKilled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.killed
}

func (w *fakeWorker) isDone() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Workers = 2
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.RespawnInterval = 0
	return cfg
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting on channel")
		var zero T
		return zero
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for close")
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
