// SPDX-License-Identifier: MPL-2.0

// Package lifecycle provides the state machine shared by long-running gantry
// processes: the launcher master and its workers.
//
// The states follow the deployment contract of a served application:
// not-started, starting, ready, draining and stopped, with failed as the
// terminal state for fatal errors. Reads are lock-free; transitions are
// compare-and-swap guarded so concurrent Stop calls are safe.
package lifecycle
