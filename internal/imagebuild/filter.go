// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
)

// IgnoreFileName is read from the root of the source tree.
const IgnoreFileName = ".dockerignore"

// Filter applies .dockerignore rules to paths relative to the source root.
// A nil Filter keeps everything.
type Filter struct {
	pm *patternmatcher.PatternMatcher
}

// LoadFilter reads root/.dockerignore. A missing file yields a nil Filter.
func LoadFilter(root string) (*Filter, error) {
	f, err := os.Open(filepath.Join(root, IgnoreFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", IgnoreFileName, err)
	}
	return NewFilter(patterns)
}

// NewFilter compiles .dockerignore patterns.
func NewFilter(patterns []string) (*Filter, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("invalid ignore pattern: %w", err)
	}
	return &Filter{pm: pm}, nil
}

// Excluded reports whether rel (slash or OS separated) is ignored.
func (f *Filter) Excluded(rel string) (bool, error) {
	if f == nil {
		return false, nil
	}
	return f.pm.MatchesOrParentMatches(filepath.ToSlash(rel))
}

func (f *Filter) hasExceptions() bool {
	return f != nil && f.pm.Exclusions()
}

// walkFiltered calls fn in lexical order for every entry under root that the
// filter keeps. The root itself is not reported.
func walkFiltered(root string, filter *Filter, fn func(rel string, d fs.DirEntry) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		excluded, err := filter.Excluded(rel)
		if err != nil {
			return err
		}
		if excluded {
			// A "!" pattern may re-include something below an excluded directory.
			if d.IsDir() && !filter.hasExceptions() {
				return filepath.SkipDir
			}
			return nil
		}
		return fn(rel, d)
	})
}
