// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDockerfileCommand(app *App, gf *globalFlags) *cobra.Command {
	var recipePath string
	cmd := &cobra.Command{
		Use:   "dockerfile [dir]",
		Short: "Print the Dockerfile rendered from the recipe",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.load(cmd.Context(), gf)
			if err != nil {
				return err
			}
			r, err := s.loadRecipe(projectDir(args), recipePath)
			if err != nil {
				return err
			}
			df, err := r.Render()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), df)
			return nil
		},
	}
	cmd.Flags().StringVar(&recipePath, "recipe", "", "recipe file (default is <dir>/gantry.cue)")
	return cmd
}
