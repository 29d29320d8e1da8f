// SPDX-License-Identifier: MPL-2.0

package launcher

import (
	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"
)

// Option configures a Master.
type Option func(*Master)

// WithSpawner replaces the default ExecSpawner.
func WithSpawner(s Spawner) Option {
	return func(m *Master) { m.spawner = s }
}

// WithClock replaces the real clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(m *Master) { m.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Master) { m.logger = l }
}
