// SPDX-License-Identifier: MPL-2.0

// Package cueutil compiles user CUE files against embedded schemas and turns
// CUE errors into "file: path.to[0].field: message" lines.
package cueutil
