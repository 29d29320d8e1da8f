// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/gantryhq/gantry/internal/imagebuild"

	"github.com/spf13/cobra"
)

type buildFlags struct {
	recipe        string
	name          string
	noCache       bool
	force         bool
	pull          bool
	requirePinned bool
	keepContext   bool
	dryRun        bool
	binary        string
}

func newBuildCommand(app *App, gf *globalFlags) *cobra.Command {
	bf := &buildFlags{}
	cmd := &cobra.Command{
		Use:   "build [dir]",
		Short: "Build the application image",
		Long: `Build the application image for a source tree.

The Dockerfile is rendered from the recipe (gantry.cue in the project
directory, or the built-in default). The image tag is derived from the
rendered Dockerfile and the source tree, so an unchanged project reuses
the existing image unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, app, gf, bf, projectDir(args))
		},
	}

	f := cmd.Flags()
	f.StringVar(&bf.recipe, "recipe", "", "recipe file (default is <dir>/gantry.cue)")
	f.StringVar(&bf.name, "name", "", "image repository name")
	f.BoolVar(&bf.noCache, "no-cache", false, "disable the engine layer cache")
	f.BoolVar(&bf.force, "force", false, "rebuild even when the image exists")
	f.BoolVar(&bf.pull, "pull", false, "refresh the base image")
	f.BoolVar(&bf.requirePinned, "require-pinned", false, "fail when a dependency is not pinned to an exact version")
	f.BoolVar(&bf.keepContext, "keep-context", false, "keep the temporary build context for inspection")
	f.BoolVar(&bf.dryRun, "dry-run", false, "print the tag and Dockerfile without building")
	f.StringVar(&bf.binary, "binary", "", "gantry binary copied into images using the gantry manager (default is this executable)")
	return cmd
}

func runBuild(cmd *cobra.Command, app *App, gf *globalFlags, bf *buildFlags, dir string) error {
	s, err := app.load(cmd.Context(), gf)
	if err != nil {
		return err
	}
	r, err := s.loadRecipe(dir, bf.recipe)
	if err != nil {
		return err
	}

	req := imagebuild.Request{
		Recipe:        r,
		SourceDir:     dir,
		Name:          bf.name,
		NoCache:       bf.noCache || s.cfg.Build.NoCache,
		Force:         bf.force,
		Pull:          bf.pull,
		RequirePinned: bf.requirePinned || s.cfg.Build.RequirePinned,
		BinaryPath:    bf.binary,
	}
	if req.Name == "" {
		req.Name = s.cfg.Build.Name
	}
	out := cmd.OutOrStdout()

	if bf.dryRun {
		res, err := imagebuild.NewBuilder(nil, imagebuild.WithLogger(s.logger)).Plan(req)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, CmdStyle.Render(res.Tag))
		fmt.Fprintln(out)
		fmt.Fprint(out, res.Dockerfile)
		warnUnpinned(cmd, res)
		return nil
	}

	engine, err := app.engine(s.cfg)
	if err != nil {
		return err
	}
	builder := imagebuild.NewBuilder(engine,
		imagebuild.WithLogger(s.logger.WithPrefix("build")),
		imagebuild.WithOutput(cmd.ErrOrStderr(), cmd.ErrOrStderr()),
		imagebuild.WithKeepContext(bf.keepContext || s.cfg.Build.KeepContext),
	)
	res, err := builder.Build(cmd.Context(), req)
	if err != nil {
		return err
	}

	verb := "Built"
	if res.Cached {
		verb = "Reused"
	}
	fmt.Fprintln(out, SuccessStyle.Render(verb)+" "+CmdStyle.Render(res.Tag))
	if res.ContextDir != "" {
		fmt.Fprintln(out, SubtitleStyle.Render("build context: "+res.ContextDir))
	}
	warnUnpinned(cmd, res)
	return nil
}

func warnUnpinned(cmd *cobra.Command, res *imagebuild.Result) {
	if len(res.Unpinned) == 0 {
		return
	}
	names := make([]string, 0, len(res.Unpinned))
	for _, u := range res.Unpinned {
		names = append(names, u.String())
	}
	fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render("Unpinned dependencies: ")+strings.Join(names, ", "))
}
