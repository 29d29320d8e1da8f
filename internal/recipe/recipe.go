// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/shlex"
)

const (
	// ManagerGunicorn launches the application with gunicorn.
	ManagerGunicorn Manager = "gunicorn"
	// ManagerGantry launches the application with the gantry binary copied
	// into the image.
	ManagerGantry Manager = "gantry"
	// ManagerCustom launches Launch.Command verbatim.
	ManagerCustom Manager = "custom"

	// WorkersEnv and PortEnv are read by the launch command at container start.
	WorkersEnv = "WORKERS"
	PortEnv    = "PORT"

	// BindHost is the address every launch command binds to.
	BindHost = "0.0.0.0"

	// SourceDir is the build context directory holding the source tree.
	SourceDir = "src"
	// BinaryName is the gantry binary name in the build context and image.
	BinaryName = "gantry"
	// BinaryPath is where the gantry binary is installed in the image.
	BinaryPath = "/usr/local/bin/gantry"
)

// ErrUnknownManager is returned for a manager outside the known set.
var ErrUnknownManager = errors.New("unknown process manager")

type (
	// Manager names the process manager invoked by the image command.
	Manager string

	// EnvBinding is one process-wide environment variable baked into the image.
	EnvBinding struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}

	// Launch describes the image entry-point command.
	Launch struct {
		Manager Manager `json:"manager"`
		Command string  `json:"command,omitempty"`
		// Workers and Port are the image defaults; both can be overridden at
		// container start through WORKERS and PORT.
		Workers int    `json:"workers"`
		Port    int    `json:"port"`
		App     string `json:"app"`
	}

	// Recipe is a complete build recipe.
	Recipe struct {
		BaseImage     string       `json:"base_image"`
		WorkDir       string       `json:"workdir"`
		WorkDirEnv    string       `json:"workdir_env"`
		UnbufferedEnv string       `json:"unbuffered_env"`
		Env           []EnvBinding `json:"env"`
		EnvFile       string       `json:"env_file,omitempty"`
		Manifest      string       `json:"manifest"`
		Install       string       `json:"install"`
		Launch        Launch       `json:"launch"`
	}
)

// Default returns the reference recipe.
func Default() *Recipe {
	return &Recipe{
		BaseImage:     "python:3.9-slim",
		WorkDir:       "/app",
		WorkDirEnv:    "APP_HOME",
		UnbufferedEnv: "PYTHONUNBUFFERED",
		Manifest:      "requirements.txt",
		Install:       "pip install --no-cache-dir -r requirements.txt",
		Launch: Launch{
			Manager: ManagerGunicorn,
			Workers: 4,
			Port:    8080,
			App:     "app:app",
		},
	}
}

// Bindings returns the environment bindings in image order: the unbuffered
// output flag, the working directory, then the extra bindings. An extra
// binding that repeats a reserved name is dropped; Validate reports it when
// the values disagree.
func (r *Recipe) Bindings() []EnvBinding {
	out := []EnvBinding{
		{Name: r.UnbufferedEnv, Value: "1"},
		{Name: r.WorkDirEnv, Value: r.WorkDir},
	}
	seen := map[string]bool{r.UnbufferedEnv: true, r.WorkDirEnv: true}
	for _, b := range r.Env {
		if seen[b.Name] {
			continue
		}
		seen[b.Name] = true
		out = append(out, b)
	}
	return out
}

// LaunchBindings returns the run-time overridable launch defaults.
func (r *Recipe) LaunchBindings() []EnvBinding {
	return []EnvBinding{
		{Name: WorkersEnv, Value: strconv.Itoa(r.Launch.Workers)},
		{Name: PortEnv, Value: strconv.Itoa(r.Launch.Port)},
	}
}

// NeedsBinary reports whether the gantry binary must be copied into the image.
func (r *Recipe) NeedsBinary() bool {
	return r.Launch.Manager == ManagerGantry
}

// Program returns the executable the launch command starts.
func (l Launch) Program() (string, error) {
	switch l.Manager {
	case ManagerGunicorn:
		return "gunicorn", nil
	case ManagerGantry:
		return BinaryPath, nil
	case ManagerCustom:
		argv, err := shlex.Split(l.Command)
		if err != nil {
			return "", fmt.Errorf("launch.command: %w", err)
		}
		if len(argv) == 0 {
			return "", errors.New("launch.command: empty command")
		}
		return argv[0], nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownManager, l.Manager)
	}
}
