// SPDX-License-Identifier: MPL-2.0

// Package launcher implements the image entry point: a pre-fork process
// manager that binds one listening socket, starts a fixed number of worker
// processes sharing it, supervises them and drains them on termination.
//
// The master moves through not-started, starting, ready, draining and
// stopped. A bind conflict, a worker that cannot load the application, a
// startup timeout or a crash loop is fatal: the master drains the remaining
// workers and reports the error, which maps to a non-zero exit code.
//
// Workers run RunWorker. They inherit the listener as file descriptor 3 and
// signal readiness by writing one byte to file descriptor 4.
package launcher
