// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnpinnedImage is returned when a base image has no tag, uses latest, or
// has no digest.
var ErrUnpinnedImage = errors.New("base image is not pinned")

// ImageRef is a parsed container image reference.
type ImageRef struct {
	Name   string
	Tag    string
	Digest string
}

// ParseImageRef splits ref into name, tag and digest. It does not resolve
// registries or apply the implicit library/ prefix.
func ParseImageRef(ref string) (ImageRef, error) {
	if ref == "" || strings.ContainsAny(ref, " \t\n") {
		return ImageRef{}, fmt.Errorf("invalid image reference %q", ref)
	}

	var out ImageRef
	rest := ref
	if name, digest, ok := strings.Cut(rest, "@"); ok {
		if !strings.Contains(digest, ":") {
			return ImageRef{}, fmt.Errorf("invalid digest in image reference %q", ref)
		}
		out.Digest = digest
		rest = name
	}

	slash := strings.LastIndex(rest, "/")
	if colon := strings.LastIndex(rest, ":"); colon > slash {
		out.Tag = rest[colon+1:]
		rest = rest[:colon]
		if out.Tag == "" {
			return ImageRef{}, fmt.Errorf("empty tag in image reference %q", ref)
		}
	}
	if rest == "" {
		return ImageRef{}, fmt.Errorf("missing repository in image reference %q", ref)
	}
	out.Name = rest
	return out, nil
}

// Pinned reports whether the reference names a fixed version.
func (r ImageRef) Pinned() bool {
	return r.Digest != "" || (r.Tag != "" && r.Tag != "latest")
}

// String reassembles the reference.
func (r ImageRef) String() string {
	s := r.Name
	if r.Tag != "" {
		s += ":" + r.Tag
	}
	if r.Digest != "" {
		s += "@" + r.Digest
	}
	return s
}

// CheckPinned returns ErrUnpinnedImage unless ref is a valid pinned reference.
func CheckPinned(ref string) error {
	parsed, err := ParseImageRef(ref)
	if err != nil {
		return err
	}
	if !parsed.Pinned() {
		return fmt.Errorf("%w: %q (use an explicit version tag or digest)", ErrUnpinnedImage, ref)
	}
	return nil
}
