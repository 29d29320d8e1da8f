// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/gantryhq/gantry/internal/imagebuild"
	"github.com/gantryhq/gantry/internal/issue"
	"github.com/gantryhq/gantry/internal/recipe"
	"github.com/gantryhq/gantry/internal/smoke"

	"github.com/spf13/cobra"
)

// missingAppRef is an application object no image provides.
const missingAppRef = "gantry_smoke:missing"

var errSmokeFailed = errors.New("smoke checks failed")

type checkFlags struct {
	recipe         string
	image          string
	startupTimeout time.Duration
	stopTimeout    time.Duration
	skipMissingApp bool
}

func newCheckCommand(app *App, gf *globalFlags) *cobra.Command {
	cf := &checkFlags{}
	cmd := &cobra.Command{
		Use:   "check [dir]",
		Short: "Build the image and run the deploy smoke checks",
		Long: `Build the image (or use --image) and run it through the container
engine to verify that it listens on the documented port, stops within the
grace period, and exits non-zero when the application object is missing.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, app, gf, cf, projectDir(args))
		},
	}

	f := cmd.Flags()
	f.StringVar(&cf.recipe, "recipe", "", "recipe file (default is <dir>/gantry.cue)")
	f.StringVar(&cf.image, "image", "", "check this image instead of building one")
	f.DurationVar(&cf.startupTimeout, "startup-timeout", 30*time.Second, "time the container gets to start listening")
	f.DurationVar(&cf.stopTimeout, "stop-timeout", 10*time.Second, "time the container gets to stop")
	f.BoolVar(&cf.skipMissingApp, "skip-missing-app", false, "skip the missing application probe")
	return cmd
}

func runCheck(cmd *cobra.Command, app *App, gf *globalFlags, cf *checkFlags, dir string) error {
	ctx := cmd.Context()
	s, err := app.load(ctx, gf)
	if err != nil {
		return err
	}
	r, err := s.loadRecipe(dir, cf.recipe)
	if err != nil {
		return err
	}
	engine, err := app.engine(s.cfg)
	if err != nil {
		return err
	}

	image := cf.image
	if image == "" {
		builder := imagebuild.NewBuilder(engine,
			imagebuild.WithLogger(s.logger.WithPrefix("build")),
			imagebuild.WithOutput(cmd.ErrOrStderr(), cmd.ErrOrStderr()),
		)
		res, err := builder.Build(ctx, imagebuild.Request{
			Recipe:    r,
			SourceDir: dir,
			Name:      s.cfg.Build.Name,
		})
		if err != nil {
			return err
		}
		image = res.Tag
	}

	opts := smoke.Options{
		Image:          image,
		Port:           r.Launch.Port,
		StartupTimeout: cf.startupTimeout,
		StopTimeout:    cf.stopTimeout,
	}
	if !cf.skipMissingApp {
		if opts.MissingAppCommand, err = missingAppCommand(r); err != nil {
			return err
		}
	}

	checker := smoke.NewChecker(engine, smoke.WithLogger(s.logger.WithPrefix("smoke")))
	report, err := checker.Run(ctx, opts)
	if err != nil {
		return issue.WrapWithOperation(err, "run smoke checks")
	}

	printMarkdown(cmd.OutOrStdout(), report.Markdown())
	if report.Failed() {
		return &ExitError{Code: 1, Err: fmt.Errorf("%w: %s", errSmokeFailed, image)}
	}
	return nil
}

// missingAppCommand is the image command with the application reference
// replaced by one that cannot be loaded. Custom commands are opaque, so the
// probe is skipped for them.
func missingAppCommand(r *recipe.Recipe) ([]string, error) {
	if r.Launch.Manager == recipe.ManagerCustom {
		return nil, nil
	}
	launch := r.Launch
	launch.App = missingAppRef
	sh, err := launch.ShellCommand()
	if err != nil {
		return nil, err
	}
	return []string{"/bin/sh", "-c", sh}, nil
}
