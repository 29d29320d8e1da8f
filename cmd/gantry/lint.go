// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"strings"

	"github.com/gantryhq/gantry/internal/dockerfile"

	"github.com/spf13/cobra"
)

// errLintFindings is returned when the report contains errors.
var errLintFindings = errors.New("dockerfile violates the build contract")

func newLintCommand(app *App, gf *globalFlags) *cobra.Command {
	var (
		recipePath string
		dir        string
	)
	cmd := &cobra.Command{
		Use:   "lint [Dockerfile]",
		Short: "Check a Dockerfile against the build contract",
		Long: `Check a Dockerfile for the layer ordering, environment and signal
handling rules gantry images follow.

Without an argument the Dockerfile rendered from the recipe is checked.
The command exits 1 when an error-level finding is reported.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.load(cmd.Context(), gf)
			if err != nil {
				return err
			}
			r, err := s.loadRecipe(dir, recipePath)
			if err != nil {
				return err
			}
			opts := dockerfile.OptionsFor(r)

			var (
				report *dockerfile.Report
				name   string
			)
			if len(args) == 1 {
				name = args[0]
				report, err = dockerfile.LintFile(name, opts)
			} else {
				name = "rendered Dockerfile"
				var df string
				if df, err = r.Render(); err == nil {
					report, err = dockerfile.Lint(strings.NewReader(df), opts)
				}
			}
			if err != nil {
				return err
			}

			printMarkdown(cmd.OutOrStdout(), report.Markdown(name))
			if report.HasErrors() {
				return &ExitError{Code: 1, Err: errLintFindings}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&recipePath, "recipe", "", "recipe file supplying the binding names (default is <dir>/gantry.cue)")
	cmd.Flags().StringVar(&dir, "dir", ".", "project directory")
	return cmd
}
