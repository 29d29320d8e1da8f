// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/gantryhq/gantry/internal/issue"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	return newRootCommand(app, &globalFlags{})
}

func newRootCommand(app *App, flags *globalFlags) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gantry",
		Short: "Build and serve Python web application images",
		Long: TitleStyle.Render("gantry") + SubtitleStyle.Render(" - Build and serve web application images") + `

gantry renders a container recipe into a cache-friendly image, builds it
with podman or docker, and supervises a pool of HTTP workers inside it.

` + SubtitleStyle.Render("Examples:") + `
  gantry build              Build the image for the current directory
  gantry lint Dockerfile    Check a Dockerfile for layer and signal problems
  gantry check              Build the image and smoke test it
  gantry serve -w 2         Serve the registered application with two workers`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/gantry/config.cue)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&flags.engine, "engine", "", "container engine override (podman or docker)")

	rootCmd.AddCommand(
		newBuildCommand(app, flags),
		newDockerfileCommand(app, flags),
		newLintCommand(app, flags),
		newCheckCommand(app, flags),
		newServeCommand(app, flags),
		newWorkerCommand(app, flags),
		newAppsCommand(app),
		newConfigCommand(app, flags),
	)
	return rootCmd
}

// Execute runs the CLI and exits the process. It is called by main.main.
func Execute() {
	app, err := NewApp(Dependencies{})
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}

	flags := &globalFlags{}
	if err := fang.Execute(
		context.Background(),
		newRootCommand(app, flags),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		renderDiagnostics(app.stderr, err, flags.verbose)
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// renderDiagnostics prints the suggestions and remediation guide attached
// to err, if any.
func renderDiagnostics(w io.Writer, err error, verbose bool) {
	var ae *issue.ActionableError
	if errors.As(err, &ae) && (len(ae.Suggestions) > 0 || verbose) {
		fmt.Fprintln(w, ae.Format(verbose))
	}

	is, ok := issue.IssueOf(err)
	if !ok {
		return
	}
	out, rerr := is.Render("auto")
	if rerr != nil {
		return
	}
	fmt.Fprint(w, out)
}
