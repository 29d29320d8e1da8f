// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAppsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "List the application objects the worker can serve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, ref := range app.Registry.Refs() {
				fmt.Fprintln(cmd.OutOrStdout(), ref)
			}
			return nil
		},
	}
}
