// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/gantryhq/gantry/internal/application"

	"mvdan.cc/sh/v3/syntax"
)

var (
	// ErrInvalidRecipe is the sentinel wrapped by every FieldError.
	ErrInvalidRecipe = errors.New("invalid recipe")

	envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// FieldError reports one invalid recipe field.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Err.Error() }

func (e *FieldError) Unwrap() []error { return []error{ErrInvalidRecipe, e.Err} }

// Validate checks every field and returns all problems joined.
func (r *Recipe) Validate() error {
	var errs []error
	add := func(field string, err error) {
		if err != nil {
			errs = append(errs, &FieldError{Field: field, Err: err})
		}
	}

	add("base_image", CheckPinned(r.BaseImage))
	add("workdir", validateWorkDir(r.WorkDir))
	add("workdir_env", validateEnvName(r.WorkDirEnv))
	add("unbuffered_env", validateEnvName(r.UnbufferedEnv))
	if r.WorkDirEnv == r.UnbufferedEnv {
		add("workdir_env", fmt.Errorf("must differ from unbuffered_env %q", r.UnbufferedEnv))
	}

	seen := make(map[string]int, len(r.Env))
	for i, b := range r.Env {
		field := fmt.Sprintf("env[%d]", i)
		add(field+".name", validateEnvName(b.Name))
		add(field+".value", validateEnvValue(b.Value))
		if first, dup := seen[b.Name]; dup {
			add(field+".name", fmt.Errorf("duplicate binding %q (first at env[%d])", b.Name, first))
		}
		seen[b.Name] = i
		switch b.Name {
		case r.WorkDirEnv:
			if b.Value != r.WorkDir {
				add(field+".value", fmt.Errorf("working directory binding %s=%q does not match workdir %q", b.Name, b.Value, r.WorkDir))
			}
		case r.UnbufferedEnv:
			if b.Value != "1" {
				add(field+".value", fmt.Errorf("%s must be 1", b.Name))
			}
		case WorkersEnv, PortEnv:
			add(field+".name", fmt.Errorf("%s is set from launch settings", b.Name))
		}
	}

	if r.Manifest == "" {
		add("manifest", errors.New("required"))
	} else if path.IsAbs(r.Manifest) || strings.HasPrefix(path.Clean(r.Manifest), "..") {
		add("manifest", fmt.Errorf("must be relative to the source tree: %q", r.Manifest))
	} else if strings.ContainsAny(r.Manifest, " \t\n\"'$\\") {
		add("manifest", fmt.Errorf("contains characters that need quoting: %q", r.Manifest))
	}
	add("install", validateShell(r.Install))

	add("launch", r.Launch.Validate())

	return errors.Join(errs...)
}

// Validate checks the launch settings.
func (l Launch) Validate() error {
	var errs []error
	switch l.Manager {
	case ManagerGunicorn, ManagerGantry:
		if l.Command != "" {
			errs = append(errs, fmt.Errorf("command is only allowed with the custom manager"))
		}
	case ManagerCustom:
		if l.Command == "" {
			errs = append(errs, errors.New("command is required with the custom manager"))
		} else if err := validateShell(l.Command); err != nil {
			errs = append(errs, err)
		} else if _, err := l.Program(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownManager, l.Manager))
	}
	if l.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", l.Workers))
	}
	if l.Port < 1 || l.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be in 1-65535, got %d", l.Port))
	}
	if _, err := application.ParseRef(l.App); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func validateWorkDir(dir string) error {
	if !path.IsAbs(dir) {
		return fmt.Errorf("must be an absolute path, got %q", dir)
	}
	if path.Clean(dir) != dir {
		return fmt.Errorf("must be a clean path (%q)", path.Clean(dir))
	}
	if dir == "/" {
		return errors.New("must not be the root directory")
	}
	if strings.ContainsAny(dir, " \t\n\"'$\\") {
		return fmt.Errorf("contains characters that need quoting: %q", dir)
	}
	return nil
}

func validateEnvName(name string) error {
	if !envNamePattern.MatchString(name) {
		return fmt.Errorf("invalid environment variable name %q", name)
	}
	return nil
}

func validateEnvValue(v string) error {
	for _, c := range v {
		if c < 0x20 || c == 0x7f {
			return fmt.Errorf("control character %U in value", c)
		}
	}
	return nil
}

// validateShell checks that s parses as a POSIX shell command list.
func validateShell(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("empty command")
	}
	if strings.ContainsAny(s, "\r\n") {
		return errors.New("command must be a single line")
	}
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	if _, err := parser.Parse(strings.NewReader(s), ""); err != nil {
		return fmt.Errorf("not a valid shell command: %w", err)
	}
	return nil
}
