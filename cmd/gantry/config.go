// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/gantryhq/gantry/internal/config"

	"github.com/spf13/cobra"
)

// newConfigCommand creates the `gantry config` command tree.
func newConfigCommand(app *App, gf *globalFlags) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage gantry configuration",
		Long: `Manage gantry configuration.

Configuration is read from the first of:
  - the --config flag
  - Linux: ~/.config/gantry/config.cue
  - macOS: ~/Library/Application Support/gantry/config.cue
  - Windows: %APPDATA%\gantry\config.cue
  - ./gantry.config.cue

GANTRY_* environment variables override file values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.load(cmd.Context(), gf)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			source := s.cfgPath
			if source == "" {
				source = "built-in defaults"
			}
			fmt.Fprintln(out, SubtitleStyle.Render("// source: "+source))
			fmt.Fprint(out, config.GenerateCUE(s.cfg))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, created, err := config.CreateDefaultConfig("")
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Created ")+CmdStyle.Render(path))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), WarningStyle.Render("Exists ")+CmdStyle.Render(path))
			}
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the user configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(dir, config.ConfigFileName))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a configuration file against the schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ValidateFile(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("valid ")+args[0])
			return nil
		},
	})

	return cfgCmd
}
