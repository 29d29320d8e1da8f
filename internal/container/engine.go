// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Engine types understood by NewEngine.
const (
	EngineTypePodman EngineType = "podman"
	EngineTypeDocker EngineType = "docker"
)

// ErrInvalidBuildOptions is wrapped by BuildOptions.Validate failures.
var ErrInvalidBuildOptions = errors.New("invalid build options")

type (
	// Engine is a container engine able to build images and run the
	// resulting containers.
	Engine interface {
		Name() string
		Available() bool
		Version(ctx context.Context) (string, error)

		Build(ctx context.Context, opts BuildOptions) error
		ImageExists(ctx context.Context, image string) (bool, error)
		RemoveImage(ctx context.Context, image string, force bool) error

		// Run starts a container. With RunOptions.Detach it returns as soon as
		// the container is created and RunResult.ContainerID is set.
		Run(ctx context.Context, opts RunOptions) (*RunResult, error)
		// Stop sends the stop signal and waits up to timeout before killing.
		Stop(ctx context.Context, containerID string, timeout time.Duration) error
		Remove(ctx context.Context, containerID string, force bool) error
		InspectState(ctx context.Context, containerID string) (ContainerState, error)
	}

	// EngineType identifies a container engine CLI.
	EngineType string

	// BuildOptions configures an image build.
	BuildOptions struct {
		// ContextDir is the build context directory.
		ContextDir string
		// Dockerfile is relative to ContextDir unless absolute.
		Dockerfile string
		Tag        string
		BuildArgs  map[string]string
		Labels     map[string]string
		NoCache    bool
		// Pull forces a fresh pull of the base image.
		Pull   bool
		Stdout io.Writer
		Stderr io.Writer
	}

	// RunOptions configures a container run.
	RunOptions struct {
		Image   string
		Command []string
		Env     map[string]string
		Ports   []PortMapping
		Labels  map[string]string
		Name    string
		Remove  bool
		Detach  bool
		Stdout  io.Writer
		Stderr  io.Writer
	}

	// RunResult is the outcome of Run. A non-zero ExitCode is not an error;
	// Error is set only for infrastructure failures.
	RunResult struct {
		ContainerID string
		ExitCode    int
		Error       error
	}

	// ContainerState is the subset of inspect output gantry relies on.
	ContainerState struct {
		Status   string
		Running  bool
		ExitCode int
	}

	// EngineNotAvailableError is returned when no usable engine binary responds.
	EngineNotAvailableError struct {
		Engine string
		Reason string
	}
)

func (e *EngineNotAvailableError) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// Validate checks the fields the engines cannot default.
func (o BuildOptions) Validate() error {
	var errs []error
	if o.ContextDir == "" {
		errs = append(errs, errors.New("context directory is required"))
	}
	if o.Tag == "" {
		errs = append(errs, errors.New("image tag is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidBuildOptions, errors.Join(errs...))
	}
	return nil
}

// Exited reports whether the container ran and terminated.
func (s ContainerState) Exited() bool {
	return !s.Running && (s.Status == "exited" || s.Status == "stopped" || s.Status == "dead")
}

// NewEngine returns the preferred engine, falling back to the other one when
// the preferred CLI is missing.
func NewEngine(preferred EngineType) (Engine, error) {
	var first, second Engine
	switch preferred {
	case EngineTypePodman:
		first, second = NewPodmanEngine(), NewDockerEngine()
	case EngineTypeDocker:
		first, second = NewDockerEngine(), NewPodmanEngine()
	default:
		return nil, fmt.Errorf("unknown container engine type: %s", preferred)
	}

	if first.Available() {
		return first, nil
	}
	if second.Available() {
		return second, nil
	}
	return nil, &EngineNotAvailableError{
		Engine: string(preferred),
		Reason: fmt.Sprintf("%s is not installed or not accessible, and %s fallback is also not available", first.Name(), second.Name()),
	}
}
