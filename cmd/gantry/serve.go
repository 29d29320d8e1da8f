// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"time"

	"github.com/gantryhq/gantry/internal/config"
	"github.com/gantryhq/gantry/internal/issue"
	"github.com/gantryhq/gantry/internal/launcher"

	"github.com/spf13/cobra"
)

type serveFlags struct {
	workers         int
	host            string
	port            int
	app             string
	gracefulTimeout time.Duration
	startupTimeout  time.Duration
	metricsAddr     string
}

func newServeCommand(app *App, gf *globalFlags) *cobra.Command {
	sf := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP worker pool",
		Long: `Bind the listening socket and supervise a pool of worker processes
serving the application object.

The worker count and port come from, in increasing priority: the config
file, GANTRY_WORKERS/WEB_CONCURRENCY and GANTRY_PORT/PORT, then flags.
SIGINT or SIGTERM drains the workers before exiting.

Exit codes: 0 clean shutdown, 1 fatal error, 3 worker boot failure,
4 application load failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.load(cmd.Context(), gf)
			if err != nil {
				return err
			}
			cfg := launchConfig(s.cfg.Launch, sf, cmd.Flags().Changed)
			logger := s.logger.WithPrefix("launcher")

			spawner := launcher.NewExecSpawner(launcher.ExecSpawnerConfig{
				Args:   workerArgs(cfg.App, gf),
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
				Logger: logger,
			})
			m, err := launcher.New(cfg, launcher.WithSpawner(spawner), launcher.WithLogger(logger))
			if err != nil {
				return &ExitError{Code: launcher.ExitFatal, Err: err}
			}
			if err := m.Run(cmd.Context()); err != nil {
				return &ExitError{Code: launcher.ExitCode(err), Err: serveError(cfg, err)}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVarP(&sf.workers, "workers", "w", 0, "number of worker processes")
	f.StringVar(&sf.host, "host", "", "bind address")
	f.IntVarP(&sf.port, "port", "p", 0, "listening port")
	f.StringVar(&sf.app, "app", "", "application object as module:object")
	f.DurationVar(&sf.gracefulTimeout, "graceful-timeout", 0, "time workers get to finish in-flight requests")
	f.DurationVar(&sf.startupTimeout, "startup-timeout", 0, "time every worker gets to become ready")
	f.StringVar(&sf.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

// launchConfig overlays the flags the user set on the configured defaults.
func launchConfig(base config.LaunchConfig, sf *serveFlags, changed func(string) bool) launcher.Config {
	cfg := launcher.Config{
		Workers:         base.Workers,
		Host:            base.Host,
		Port:            base.Port,
		App:             base.App,
		GracefulTimeout: base.GracefulTimeout,
		StartupTimeout:  base.StartupTimeout,
		MaxRestarts:     base.MaxRestarts,
		RestartWindow:   base.RestartWindow,
		RespawnInterval: base.RespawnInterval,
		MetricsAddr:     base.MetricsAddr,
	}
	if changed("workers") {
		cfg.Workers = sf.workers
	}
	if changed("host") {
		cfg.Host = sf.host
	}
	if changed("port") {
		cfg.Port = sf.port
	}
	if changed("app") {
		cfg.App = sf.app
	}
	if changed("graceful-timeout") {
		cfg.GracefulTimeout = sf.gracefulTimeout
	}
	if changed("startup-timeout") {
		cfg.StartupTimeout = sf.startupTimeout
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = sf.metricsAddr
	}
	return cfg
}

// workerArgs passes the settings a worker needs to load the same
// configuration as the master.
func workerArgs(app string, gf *globalFlags) []string {
	args := []string{"worker", "--app", app}
	if gf.configPath != "" {
		args = append(args, "--config", gf.configPath)
	}
	if gf.verbose {
		args = append(args, "--verbose")
	}
	return args
}

func serveError(cfg launcher.Config, err error) error {
	ec := issue.NewErrorContext().WithOperation("serve").Wrap(err)
	switch {
	case errors.Is(err, launcher.ErrBind):
		ec.WithResource(cfg.Address()).
			WithSuggestion("Stop the process holding the port or pass --port").
			WithIssue(issue.PortInUseId)
	case errors.Is(err, launcher.ErrAppLoad):
		ec.WithResource(cfg.App).
			WithSuggestion("Run 'gantry apps' to list the registered application objects").
			WithIssue(issue.AppNotFoundId)
	case errors.Is(err, launcher.ErrCrashLoop):
		ec.WithSuggestion("Check the worker logs above for the cause of the exits").
			WithIssue(issue.CrashLoopId)
	}
	return ec.BuildError()
}
