// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/gantryhq/gantry/internal/application"
	"github.com/gantryhq/gantry/internal/config"
	"github.com/gantryhq/gantry/internal/container"
	"github.com/gantryhq/gantry/internal/issue"
	"github.com/gantryhq/gantry/internal/nutrition/httpapi"

	"github.com/charmbracelet/log"
)

type (
	// EngineFactory resolves the container engine for the configured preference.
	EngineFactory func(preferred config.ContainerEngine) (container.Engine, error)

	// App wires CLI services and shared dependencies. Every command handler
	// receives an App reference.
	App struct {
		Config   config.Provider
		Engines  EngineFactory
		Registry *application.Registry
		stdout   io.Writer
		stderr   io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config   config.Provider
		Engines  EngineFactory
		Registry *application.Registry
		Stdout   io.Writer
		Stderr   io.Writer
	}

	// globalFlags are the persistent root flags.
	globalFlags struct {
		configPath string
		verbose    bool
		engine     string
	}

	// session is the per-invocation state every command starts from.
	session struct {
		cfg     *config.Config
		cfgPath string
		logger  *log.Logger
	}
)

// NewApp creates the CLI composition root.
func NewApp(deps Dependencies) (*App, error) {
	app := &App{
		Config:   deps.Config,
		Engines:  deps.Engines,
		Registry: deps.Registry,
		stdout:   deps.Stdout,
		stderr:   deps.Stderr,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.Engines == nil {
		app.Engines = defaultEngine
	}
	if app.Registry == nil {
		app.Registry = application.NewRegistry()
		if err := httpapi.Register(app.Registry); err != nil {
			return nil, err
		}
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app, nil
}

func defaultEngine(preferred config.ContainerEngine) (container.Engine, error) {
	engine, err := container.NewEngine(container.EngineType(preferred))
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("detect container engine").
			WithResource(string(preferred)).
			WithSuggestion("Install podman or docker, or set container_engine in the config").
			WithIssue(issue.EngineNotFoundId).
			Wrap(err).
			BuildError()
	}
	return engine, nil
}

// load resolves the configuration and the logger for one command run.
func (a *App) load(ctx context.Context, flags *globalFlags) (*session, error) {
	cfg, path, err := a.Config.LoadWithPath(ctx, config.LoadOptions{ConfigFilePath: flags.configPath})
	if err != nil {
		return nil, err
	}
	if flags.engine != "" {
		engine := config.ContainerEngine(flags.engine)
		if err := engine.Validate(); err != nil {
			return nil, err
		}
		cfg.ContainerEngine = engine
	}

	logger := newLogger(a.stderr, cfg.Log, flags.verbose)
	if path != "" {
		logger.Debug("loaded configuration", "path", path)
	}
	return &session{cfg: cfg, cfgPath: path, logger: logger}, nil
}

// engine resolves the container engine, reporting unavailability as an
// actionable error.
func (a *App) engine(cfg *config.Config) (container.Engine, error) {
	engine, err := a.Engines(cfg.ContainerEngine)
	if err != nil {
		var ae *issue.ActionableError
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, issue.NewErrorContext().
			WithOperation("detect container engine").
			WithIssue(issue.EngineNotFoundId).
			Wrap(err).
			BuildError()
	}
	return engine, nil
}
