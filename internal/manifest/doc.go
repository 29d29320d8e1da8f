// SPDX-License-Identifier: MPL-2.0

// Package manifest parses the dependency manifest copied into the image
// ahead of the source tree.
//
// Two formats are understood: pip requirements files and the
// [project].dependencies array of pyproject.toml. A manifest that does not
// parse must fail the image build before any layer is produced, so every
// problem is reported with its line number.
package manifest
