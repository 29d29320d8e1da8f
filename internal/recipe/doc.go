// SPDX-License-Identifier: MPL-2.0

// Package recipe defines the build recipe: the pinned base image, the
// environment bindings, the working directory, the dependency manifest and
// install step, and the launch command baked into the image.
//
// A recipe is written in CUE and validated against the embedded #Recipe
// schema. Render turns a valid recipe into a Dockerfile that copies the
// manifest alone, installs it, and copies the source tree exactly once.
package recipe
