// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"mvdan.cc/sh/v3/syntax"
)

var (
	//go:embed Dockerfile.tmpl
	dockerfileTemplate string

	dockerfileTmpl = template.Must(template.New("Dockerfile").Parse(dockerfileTemplate))

	plainEnvValue = regexp.MustCompile(`^[A-Za-z0-9_./:@+,=-]+$`)
)

type renderData struct {
	BaseImage      string
	Bindings       []string
	WorkDir        string
	ManifestSource string
	Manifest       string
	Install        string
	SourceDir      string
	Binary         bool
	BinaryName     string
	BinaryPath     string
	LaunchBindings []string
	Port           int
	Command        string
}

// Render validates the recipe and renders its Dockerfile. The build context
// is expected to hold the source tree under SourceDir and, when NeedsBinary,
// the gantry binary as BinaryName.
func (r *Recipe) Render() (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}

	cmd, err := r.Launch.ShellCommand()
	if err != nil {
		return "", err
	}

	data := renderData{
		BaseImage:      r.BaseImage,
		Bindings:       formatBindings(r.Bindings()),
		WorkDir:        r.WorkDir,
		ManifestSource: SourceDir + "/" + strings.TrimPrefix(r.Manifest, "./"),
		Manifest:       strings.TrimPrefix(r.Manifest, "./"),
		Install:        r.Install,
		SourceDir:      SourceDir,
		Binary:         r.NeedsBinary(),
		BinaryName:     BinaryName,
		BinaryPath:     BinaryPath,
		LaunchBindings: formatBindings(r.LaunchBindings()),
		Port:           r.Launch.Port,
		Command:        cmd,
	}

	var sb strings.Builder
	if err := dockerfileTmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render Dockerfile: %w", err)
	}
	return sb.String(), nil
}

// ShellCommand returns the shell-form entry-point command. It execs the
// process manager so termination signals reach it directly, and reads the
// worker count and port from the environment.
func (l Launch) ShellCommand() (string, error) {
	app, err := syntax.Quote(l.App, syntax.LangPOSIX)
	if err != nil {
		return "", fmt.Errorf("quote application reference: %w", err)
	}
	workers := `"${` + WorkersEnv + `}"`
	port := `"${` + PortEnv + `}"`

	switch l.Manager {
	case ManagerGunicorn:
		return fmt.Sprintf("exec gunicorn --workers %s --bind %s %s",
			workers, `"`+BindHost+`:${`+PortEnv+`}"`, app), nil
	case ManagerGantry:
		return fmt.Sprintf("exec %s serve --workers %s --host %s --port %s --app %s",
			BinaryPath, workers, BindHost, port, app), nil
	case ManagerCustom:
		return "exec " + strings.TrimSpace(l.Command), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownManager, l.Manager)
	}
}

func formatBindings(bindings []EnvBinding) []string {
	out := make([]string, len(bindings))
	for i, b := range bindings {
		out[i] = b.Name + "=" + quoteEnvValue(b.Value)
	}
	return out
}

// quoteEnvValue quotes v for an ENV instruction, escaping the characters the
// Dockerfile parser treats specially inside double quotes.
func quoteEnvValue(v string) string {
	if plainEnvValue.MatchString(v) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`)
	return `"` + r.Replace(v) + `"`
}
