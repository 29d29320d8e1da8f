// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Machine tracks the lifecycle of one process-manager run. Concrete
// components embed it.
//
// A Machine is single-use: once stopped or failed, create a new one.
type Machine struct {
	state   atomic.Int32
	stateMu sync.Mutex
	lastErr error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	readyCh  chan struct{}
	doneCh   chan struct{}
	doneOnce sync.Once

	observers []func(from, to State)
}

// New creates a Machine in StateNotStarted.
func New(opts ...Option) *Machine {
	m := &Machine{
		readyCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	m.state.Store(int32(StateNotStarted))

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// State returns the current state (lock-free).
func (m *Machine) State() State {
	return State(m.state.Load())
}

// LastError returns the error recorded by Fail, or nil.
func (m *Machine) LastError() error {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.lastErr
}

// Begin moves NotStarted to Starting. It fails if ctx is already cancelled
// or the machine was started before.
func (m *Machine) Begin(ctx context.Context) error {
	select {
	case <-ctx.Done():
		err := fmt.Errorf("context cancelled before start: %w", ctx.Err())
		m.Fail(err)
		return err
	default:
	}

	if !m.state.CompareAndSwap(int32(StateNotStarted), int32(StateStarting)) {
		return fmt.Errorf("cannot start in state %s", m.State())
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.notify(StateNotStarted, StateStarting)

	return nil
}

// MarkReady moves Starting to Ready and closes the Ready channel.
func (m *Machine) MarkReady() bool {
	if !m.state.CompareAndSwap(int32(StateStarting), int32(StateReady)) {
		return false
	}
	close(m.readyCh)
	m.notify(StateStarting, StateReady)
	return true
}

// Fail records err, moves to StateFailed from any state and cancels the
// machine context.
func (m *Machine) Fail(err error) {
	m.stateMu.Lock()
	m.lastErr = err
	m.stateMu.Unlock()

	from := State(m.state.Swap(int32(StateFailed)))
	if m.cancel != nil {
		m.cancel()
	}
	if from != StateFailed {
		m.notify(from, StateFailed)
	}
	m.doneOnce.Do(func() { close(m.doneCh) })
}

// BeginDrain moves Starting or Ready to Draining and cancels the machine
// context. It returns false when there is nothing to drain: the machine
// never started (it is marked stopped), or it is already draining or
// terminal.
func (m *Machine) BeginDrain() bool {
	for {
		current := m.State()
		switch current {
		case StateNotStarted:
			if m.state.CompareAndSwap(int32(StateNotStarted), int32(StateStopped)) {
				m.notify(StateNotStarted, StateStopped)
				m.doneOnce.Do(func() { close(m.doneCh) })
				return false
			}
		case StateStarting, StateReady:
			if !m.state.CompareAndSwap(int32(current), int32(StateDraining)) {
				continue
			}
			if m.cancel != nil {
				m.cancel()
			}
			m.notify(current, StateDraining)
			return true
		default:
			return false
		}
	}
}

// MarkStopped moves Draining to Stopped. Call it after every tracked
// goroutine has returned. A failed machine stays failed.
func (m *Machine) MarkStopped() {
	if m.state.CompareAndSwap(int32(StateDraining), int32(StateStopped)) {
		m.notify(StateDraining, StateStopped)
	}
	m.doneOnce.Do(func() { close(m.doneCh) })
}

// Ready is closed when the machine enters StateReady.
func (m *Machine) Ready() <-chan struct{} {
	return m.readyCh
}

// Done is closed when the machine reaches a terminal state.
func (m *Machine) Done() <-chan struct{} {
	return m.doneCh
}

// Context is cancelled when draining starts or the machine fails.
// It is nil before Begin.
func (m *Machine) Context() context.Context {
	return m.ctx
}

// Go runs fn on a tracked goroutine.
func (m *Machine) Go(fn func()) {
	m.wg.Go(fn)
}

// Wait blocks until every goroutine started with Go has returned.
func (m *Machine) Wait() {
	m.wg.Wait()
}

func (m *Machine) notify(from, to State) {
	for _, fn := range m.observers {
		fn(from, to)
	}
}
