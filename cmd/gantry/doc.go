// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the gantry CLI commands.
package cmd
