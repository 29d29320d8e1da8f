// SPDX-License-Identifier: MPL-2.0

// Package container drives Docker and Podman through their CLIs.
//
// Both engines share BaseCLIEngine, which builds the argument vectors and
// executes them through an injectable exec function so tests can observe the
// exact command lines without a daemon.
package container
