// SPDX-License-Identifier: MPL-2.0

// Package smoke runs a built image and checks the deployment contract: the
// container listens on its port within the startup bound, stops within the
// stop bound, and exits non-zero when its application cannot be loaded.
package smoke
