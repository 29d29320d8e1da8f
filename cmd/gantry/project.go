// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/gantryhq/gantry/internal/recipe"

	"github.com/charmbracelet/glamour"
)

// projectDir returns the single optional directory argument.
func projectDir(args []string) string {
	if len(args) == 0 {
		return "."
	}
	return args[0]
}

// loadRecipe reads the recipe for dir. An explicit path must exist; the
// configured default falls back to the built-in recipe.
func (s *session) loadRecipe(dir, explicit string) (*recipe.Recipe, error) {
	if explicit != "" {
		return recipe.Load(explicit)
	}

	path := s.cfg.Recipe
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	r, found, err := recipe.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if found {
		s.logger.Debug("using recipe", "path", path)
	} else {
		s.logger.Debug("no recipe file, using defaults", "looked_for", path)
	}
	return r, nil
}

// printMarkdown renders md with glamour, falling back to the raw text.
func printMarkdown(w io.Writer, md string) {
	out, err := glamour.Render(md, "auto")
	if err != nil {
		out = md
	}
	fmt.Fprint(w, out)
}
