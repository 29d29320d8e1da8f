// SPDX-License-Identifier: MPL-2.0

// Package application resolves "module:object" references to the HTTP
// handlers served by launcher workers.
package application
