// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/gantryhq/gantry/internal/cueutil"
	"github.com/gantryhq/gantry/internal/issue"

	"github.com/joho/godotenv"
)

//go:embed recipe_schema.cue
var recipeSchema []byte

// Load reads a CUE recipe file, applies schema defaults, merges bindings from
// env_file (relative to the recipe) and validates the result.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe: %w", err)
	}

	r, err := Parse(data, path)
	if err != nil {
		return nil, invalidRecipe(path, err)
	}

	if r.EnvFile != "" {
		if err := r.mergeEnvFile(filepath.Join(filepath.Dir(path), r.EnvFile)); err != nil {
			return nil, invalidRecipe(path, err)
		}
	}

	if err := r.Validate(); err != nil {
		return nil, invalidRecipe(path, err)
	}
	return r, nil
}

// LoadOrDefault loads path, or returns Default when path does not exist.
// found reports whether the file was read.
func LoadOrDefault(path string) (r *Recipe, found bool, err error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Default(), false, nil
	}
	r, err = Load(path)
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

// Parse unifies data with #Recipe and decodes it without validating the
// cross-field rules checked by Validate.
func Parse(data []byte, filename string) (*Recipe, error) {
	return cueutil.ParseAndDecode[Recipe](recipeSchema, data, "#Recipe", cueutil.WithFilename(filename))
}

// mergeEnvFile appends bindings from a dotenv file in key order. Bindings
// declared in the recipe win.
func (r *Recipe) mergeEnvFile(path string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("env_file: %w", err)
	}
	declared := make(map[string]bool, len(r.Env))
	for _, b := range r.Env {
		declared[b.Name] = true
	}
	for _, name := range slices.Sorted(maps.Keys(values)) {
		if declared[name] {
			continue
		}
		r.Env = append(r.Env, EnvBinding{Name: name, Value: values[name]})
	}
	return nil
}

func invalidRecipe(path string, err error) error {
	return issue.NewErrorContext().
		WithOperation("load build recipe").
		WithResource(path).
		WithSuggestion("Run 'gantry dockerfile' to check the rendered result").
		WithIssue(issue.RecipeInvalidId).
		Wrap(err).
		BuildError()
}
