// SPDX-License-Identifier: MPL-2.0

// Package dockerfile lints a Dockerfile against the image build contract:
// a pinned base, the working directory binding, the manifest-first install
// order, a single source copy, and an entry point that receives signals.
package dockerfile
