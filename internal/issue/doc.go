// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and Markdown remediation guides
// for failures a gantry user can fix: a missing container engine, a broken
// dependency manifest, a bound port, an application reference that does not
// resolve.
package issue
