// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	// ContainerEnginePodman uses Podman as the container engine.
	ContainerEnginePodman ContainerEngine = "podman"
	// ContainerEngineDocker uses Docker as the container engine.
	ContainerEngineDocker ContainerEngine = "docker"

	LogFormatText   LogFormat = "text"
	LogFormatJSON   LogFormat = "json"
	LogFormatLogfmt LogFormat = "logfmt"
)

var (
	// ErrInvalidContainerEngine is returned when a ContainerEngine value is not recognized.
	ErrInvalidContainerEngine = errors.New("invalid container engine")
	// ErrInvalidLaunchConfig is the sentinel wrapped by InvalidLaunchConfigError.
	ErrInvalidLaunchConfig = errors.New("invalid launch config")
)

type (
	// ContainerEngine selects the container CLI.
	ContainerEngine string

	// LogFormat selects the charmbracelet/log formatter.
	LogFormat string

	// InvalidContainerEngineError wraps ErrInvalidContainerEngine.
	InvalidContainerEngineError struct {
		Value ContainerEngine
	}

	// InvalidLaunchConfigError reports an out-of-range launch setting that
	// reached the config through an environment variable or flag.
	InvalidLaunchConfigError struct {
		Field string
		Value any
	}

	// Config is the effective gantry configuration.
	Config struct {
		ContainerEngine ContainerEngine `json:"container_engine" mapstructure:"container_engine"`
		// Recipe is the build recipe path, relative to the project directory.
		Recipe string       `json:"recipe" mapstructure:"recipe"`
		Build  BuildConfig  `json:"build" mapstructure:"build"`
		Launch LaunchConfig `json:"launch" mapstructure:"launch"`
		Log    LogConfig    `json:"log" mapstructure:"log"`
	}

	// BuildConfig holds image build defaults.
	BuildConfig struct {
		// Name is the image repository; the tag is derived from the cache key.
		Name          string `json:"name" mapstructure:"name"`
		NoCache       bool   `json:"no_cache" mapstructure:"no_cache"`
		RequirePinned bool   `json:"require_pinned" mapstructure:"require_pinned"`
		// KeepContext leaves the temporary build context on disk for inspection.
		KeepContext bool `json:"keep_context" mapstructure:"keep_context"`
	}

	// LaunchConfig holds process manager defaults.
	LaunchConfig struct {
		Workers         int           `json:"workers" mapstructure:"workers"`
		Host            string        `json:"host" mapstructure:"host"`
		Port            int           `json:"port" mapstructure:"port"`
		App             string        `json:"app" mapstructure:"app"`
		GracefulTimeout time.Duration `json:"graceful_timeout" mapstructure:"graceful_timeout"`
		StartupTimeout  time.Duration `json:"startup_timeout" mapstructure:"startup_timeout"`
		MaxRestarts     int           `json:"max_restarts" mapstructure:"max_restarts"`
		RestartWindow   time.Duration `json:"restart_window" mapstructure:"restart_window"`
		RespawnInterval time.Duration `json:"respawn_interval" mapstructure:"respawn_interval"`
		MetricsAddr     string        `json:"metrics_addr" mapstructure:"metrics_addr"`
	}

	LogConfig struct {
		Level  string    `json:"level" mapstructure:"level"`
		Format LogFormat `json:"format" mapstructure:"format"`
	}
)

func (e *InvalidContainerEngineError) Error() string {
	return fmt.Sprintf("invalid container engine %q (valid: podman, docker)", e.Value)
}

func (e *InvalidContainerEngineError) Unwrap() error { return ErrInvalidContainerEngine }

// Validate returns nil for podman and docker.
func (c ContainerEngine) Validate() error {
	switch c {
	case ContainerEnginePodman, ContainerEngineDocker:
		return nil
	default:
		return &InvalidContainerEngineError{Value: c}
	}
}

func (e *InvalidLaunchConfigError) Error() string {
	return fmt.Sprintf("invalid launch.%s: %v", e.Field, e.Value)
}

func (e *InvalidLaunchConfigError) Unwrap() error { return ErrInvalidLaunchConfig }

// Validate checks the ranges the schema enforces for file values, since
// environment variables bypass the schema.
func (l LaunchConfig) Validate() error {
	var errs []error
	if l.Workers < 1 {
		errs = append(errs, &InvalidLaunchConfigError{Field: "workers", Value: l.Workers})
	}
	if l.Port < 1 || l.Port > 65535 {
		errs = append(errs, &InvalidLaunchConfigError{Field: "port", Value: l.Port})
	}
	if l.Host == "" {
		errs = append(errs, &InvalidLaunchConfigError{Field: "host", Value: l.Host})
	}
	if l.GracefulTimeout < 0 {
		errs = append(errs, &InvalidLaunchConfigError{Field: "graceful_timeout", Value: l.GracefulTimeout})
	}
	if l.StartupTimeout <= 0 {
		errs = append(errs, &InvalidLaunchConfigError{Field: "startup_timeout", Value: l.StartupTimeout})
	}
	if l.MaxRestarts < 0 {
		errs = append(errs, &InvalidLaunchConfigError{Field: "max_restarts", Value: l.MaxRestarts})
	}
	return errors.Join(errs...)
}

// DefaultConfig returns the configuration used when no file is found.
func DefaultConfig() *Config {
	return &Config{
		ContainerEngine: ContainerEnginePodman,
		Recipe:          "gantry.cue",
		Build: BuildConfig{
			Name: "gantry-app",
		},
		Launch: LaunchConfig{
			Workers:         4,
			Host:            "0.0.0.0",
			Port:            8080,
			App:             "app:app",
			GracefulTimeout: 30 * time.Second,
			StartupTimeout:  30 * time.Second,
			MaxRestarts:     5,
			RestartWindow:   time.Minute,
			RespawnInterval: time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: LogFormatText,
		},
	}
}
