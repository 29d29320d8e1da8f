// SPDX-License-Identifier: MPL-2.0

// Package imagebuild turns a recipe and a source tree into a tagged image.
//
// Builds are content addressed: the tag is derived from the rendered
// Dockerfile, the normalized dependency manifest, the filtered source tree and,
// when the image runs the gantry process manager, the gantry binary. An
// existing tag is reused. A failed build leaves no tag behind.
package imagebuild
