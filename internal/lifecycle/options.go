// SPDX-License-Identifier: MPL-2.0

package lifecycle

// Option configures a Machine.
type Option func(*Machine)

// WithErrorBuffer sets the error channel buffer size. Default is 1.
func WithErrorBuffer(size int) Option {
	return func(m *Machine) {
		m.errCh = make(chan error, size)
	}
}

// WithObserver registers a callback invoked after every successful
// transition. It runs on the transitioning goroutine and must not block.
func WithObserver(fn func(from, to State)) Option {
	return func(m *Machine) {
		m.observers = append(m.observers, fn)
	}
}
