// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gantryhq/gantry/internal/issue"
)

// inspectStateFormat prints "<status> <running> <exitcode>" on both engines.
const inspectStateFormat = "{{.State.Status}} {{.State.Running}} {{.State.ExitCode}}"

type (
	// ExecCommandFunc creates the exec.Cmd for an engine invocation.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine implements the Engine operations that are identical for
	// Docker and Podman. Name, Available, Version and ImageExists stay on the
	// concrete engines.
	BaseCLIEngine struct {
		name        string
		binaryPath  string
		execCommand ExecCommandFunc
	}
)

// WithName sets the engine name used in error messages.
func WithName(name string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) { e.name = name }
}

// WithExecCommand replaces exec.CommandContext, for tests.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) { e.execCommand = fn }
}

// WithBinaryPath overrides the binary located through PATH.
func WithBinaryPath(path string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) { e.binaryPath = path }
}

// NewBaseCLIEngine creates a base engine for the binary at binaryPath.
func NewBaseCLIEngine(binaryPath string, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		binaryPath:  binaryPath,
		execCommand: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BinaryPath returns the resolved engine binary, or "" when it was not found.
func (e *BaseCLIEngine) BinaryPath() string {
	return e.binaryPath
}

// BuildArgs returns: build [-f file] -t tag [--no-cache] [--pull] [--build-arg k=v]... [--label k=v]... <context>
func (e *BaseCLIEngine) BuildArgs(opts BuildOptions) []string {
	args := []string{"build"}

	if opts.Dockerfile != "" {
		df := opts.Dockerfile
		if !filepath.IsAbs(df) && opts.ContextDir != "" {
			df = filepath.Join(opts.ContextDir, df)
		}
		args = append(args, "-f", df)
	}
	if opts.Tag != "" {
		args = append(args, "-t", opts.Tag)
	}
	if opts.NoCache {
		args = append(args, "--no-cache")
	}
	if opts.Pull {
		args = append(args, "--pull")
	}
	for _, k := range slices.Sorted(maps.Keys(opts.BuildArgs)) {
		args = append(args, "--build-arg", k+"="+opts.BuildArgs[k])
	}
	for _, k := range slices.Sorted(maps.Keys(opts.Labels)) {
		args = append(args, "--label", k+"="+opts.Labels[k])
	}

	return append(args, opts.ContextDir)
}

// RunArgs returns: run [--rm] [-d] [--name n] [-e k=v]... [-p m]... [--label k=v]... image [cmd...]
func (e *BaseCLIEngine) RunArgs(opts RunOptions) []string {
	args := []string{"run"}

	if opts.Remove {
		args = append(args, "--rm")
	}
	if opts.Detach {
		args = append(args, "-d")
	}
	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}
	for _, k := range slices.Sorted(maps.Keys(opts.Env)) {
		args = append(args, "-e", k+"="+opts.Env[k])
	}
	for _, p := range opts.Ports {
		args = append(args, "-p", p.String())
	}
	for _, k := range slices.Sorted(maps.Keys(opts.Labels)) {
		args = append(args, "--label", k+"="+opts.Labels[k])
	}

	args = append(args, opts.Image)
	return append(args, opts.Command...)
}

// StopArgs returns: stop -t <seconds> <id>
func (e *BaseCLIEngine) StopArgs(containerID string, timeout time.Duration) []string {
	secs := max(int(timeout.Round(time.Second)/time.Second), 0)
	return []string{"stop", "-t", strconv.Itoa(secs), containerID}
}

// RemoveArgs returns: rm [-f] <id>
func (e *BaseCLIEngine) RemoveArgs(containerID string, force bool) []string {
	args := []string{"rm"}
	if force {
		args = append(args, "-f")
	}
	return append(args, containerID)
}

// RemoveImageArgs returns: rmi [-f] <image>
func (e *BaseCLIEngine) RemoveImageArgs(image string, force bool) []string {
	args := []string{"rmi"}
	if force {
		args = append(args, "-f")
	}
	return append(args, image)
}

// CreateCommand creates the exec.Cmd for args.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	return e.execCommand(ctx, e.binaryPath, args...)
}

// RunCommandStatus runs args and returns only the error status.
func (e *BaseCLIEngine) RunCommandStatus(ctx context.Context, args ...string) error {
	cmd := e.CreateCommand(ctx, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return commandError(e.binaryPath, args, stderr.String(), err)
	}
	return nil
}

// RunCommandWithOutput runs args and returns stdout.
func (e *BaseCLIEngine) RunCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	cmd := e.CreateCommand(ctx, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", commandError(e.binaryPath, args, stderr.String(), err)
	}
	return stdout.String(), nil
}

// Build builds an image. Engine failures become an ActionableError; the
// engine does not tag an image whose build failed.
func (e *BaseCLIEngine) Build(ctx context.Context, opts BuildOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	cmd := e.CreateCommand(ctx, e.BuildArgs(opts)...)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	if err := cmd.Run(); err != nil {
		return buildContainerError(e.name, opts, err)
	}
	return nil
}

// Run runs a container. Attached runs report the container exit code in
// RunResult.ExitCode; detached runs report the new container ID.
func (e *BaseCLIEngine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if opts.Image == "" {
		return nil, errors.New("run: image is required")
	}
	for _, p := range opts.Ports {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}

	cmd := e.CreateCommand(ctx, e.RunArgs(opts)...)
	var idBuf bytes.Buffer
	if opts.Detach {
		cmd.Stdout = &idBuf
	} else {
		cmd.Stdout = opts.Stdout
	}
	cmd.Stderr = opts.Stderr

	result := &RunResult{}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = 1
			result.Error = runContainerError(e.name, opts, err)
		}
	}
	if opts.Detach {
		result.ContainerID = strings.TrimSpace(idBuf.String())
	}

	return result, nil
}

// Stop stops a container, allowing timeout for graceful shutdown.
func (e *BaseCLIEngine) Stop(ctx context.Context, containerID string, timeout time.Duration) error {
	return e.RunCommandStatus(ctx, e.StopArgs(containerID, timeout)...)
}

// Remove removes a container.
func (e *BaseCLIEngine) Remove(ctx context.Context, containerID string, force bool) error {
	return e.RunCommandStatus(ctx, e.RemoveArgs(containerID, force)...)
}

// RemoveImage removes an image.
func (e *BaseCLIEngine) RemoveImage(ctx context.Context, image string, force bool) error {
	return e.RunCommandStatus(ctx, e.RemoveImageArgs(image, force)...)
}

// InspectState returns the lifecycle state of a container.
func (e *BaseCLIEngine) InspectState(ctx context.Context, containerID string) (ContainerState, error) {
	out, err := e.RunCommandWithOutput(ctx, "inspect", "--format", inspectStateFormat, containerID)
	if err != nil {
		return ContainerState{}, err
	}
	return parseContainerState(out)
}

func parseContainerState(out string) (ContainerState, error) {
	fields := strings.Fields(out)
	if len(fields) != 3 {
		return ContainerState{}, fmt.Errorf("unexpected inspect output %q", strings.TrimSpace(out))
	}
	running, err := strconv.ParseBool(fields[1])
	if err != nil {
		return ContainerState{}, fmt.Errorf("parse running flag %q: %w", fields[1], err)
	}
	code, err := strconv.Atoi(fields[2])
	if err != nil {
		return ContainerState{}, fmt.Errorf("parse exit code %q: %w", fields[2], err)
	}
	return ContainerState{Status: fields[0], Running: running, ExitCode: code}, nil
}

func commandError(bin string, args []string, stderr string, err error) error {
	if msg := strings.TrimSpace(stderr); msg != "" {
		return fmt.Errorf("command %s %v failed: %w: %s", bin, args, err, msg)
	}
	return fmt.Errorf("command %s %v failed: %w", bin, args, err)
}

func buildContainerError(engine string, opts BuildOptions, cause error) error {
	return issue.NewErrorContext().
		WithOperation("build container image").
		WithResource(opts.Tag).
		WithIssue(issue.ImageBuildFailedId).
		WithSuggestion("Check the generated Dockerfile with 'gantry dockerfile'").
		WithSuggestion("Ensure the base image can be pulled (try: " + engine + " pull <base-image>)").
		WithSuggestion("Run with --verbose to see full build output").
		Wrap(cause).
		BuildError()
}

func runContainerError(engine string, opts RunOptions, cause error) error {
	return issue.NewErrorContext().
		WithOperation("run container").
		WithResource(opts.Image).
		WithSuggestion("Verify the image exists (try: " + engine + " images)").
		WithSuggestion("Ensure published ports do not conflict with running services").
		Wrap(cause).
		BuildError()
}
