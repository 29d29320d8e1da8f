// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"os"
	"os/signal"

	"github.com/gantryhq/gantry/internal/issue"
	"github.com/gantryhq/gantry/internal/launcher"

	"github.com/spf13/cobra"
)

func newWorkerCommand(app *App, gf *globalFlags) *cobra.Command {
	var appRef string
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Serve the application on the socket inherited from 'gantry serve'",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Ctrl-C reaches the whole process group; the master drains
			// workers with SIGTERM instead.
			signal.Ignore(os.Interrupt)

			s, err := app.load(cmd.Context(), gf)
			if err != nil {
				return &ExitError{Code: launcher.ExitWorkerBoot, Err: err}
			}
			if appRef == "" {
				appRef = s.cfg.Launch.App
			}
			logger := s.logger.WithPrefix("worker").With(
				"id", os.Getenv(launcher.WorkerIDEnv),
				"pid", os.Getpid(),
			)

			ln, err := launcher.InheritedListener()
			if err != nil {
				return &ExitError{Code: launcher.ExitCode(err), Err: issue.WrapWithOperation(err, "adopt inherited listener")}
			}
			wd, err := os.Getwd()
			if err != nil {
				return &ExitError{Code: launcher.ExitWorkerBoot, Err: err}
			}

			err = launcher.RunWorker(cmd.Context(), launcher.WorkerOptions{
				App:             appRef,
				Registry:        app.Registry,
				Listener:        ln,
				Ready:           launcher.InheritedReadyPipe(),
				WorkDir:         wd,
				Logger:          logger,
				ShutdownTimeout: s.cfg.Launch.GracefulTimeout,
				Getenv:          os.Getenv,
			})
			if err != nil {
				logger.Error("worker failed", "err", err)
				return &ExitError{Code: launcher.ExitCode(err), Err: err}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&appRef, "app", "", "application object as module:object")
	return cmd
}
