// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"
	"maps"
	"slices"

	"github.com/charmbracelet/glamour"
)

// Id identifies a remediation guide.
type Id int

const (
	EngineNotFoundId Id = iota + 1
	ManifestInvalidId
	RecipeInvalidId
	ImageBuildFailedId
	PortInUseId
	AppNotFoundId
	CrashLoopId
	ConfigLoadFailedId
)

type (
	// MarkdownMsg is Markdown rendered with glamour.
	MarkdownMsg string

	// Issue is a remediation guide shown after a user-facing failure.
	Issue struct {
		id    Id
		title string
		mdMsg MarkdownMsg
	}
)

// Id returns the guide identifier.
func (i *Issue) Id() Id { return i.id }

// Title returns the one-line headline.
func (i *Issue) Title() string { return i.title }

// MarkdownMsg returns the raw Markdown body.
func (i *Issue) MarkdownMsg() MarkdownMsg { return i.mdMsg }

// Render renders the guide for a terminal using the named glamour style.
func (i *Issue) Render(style string) (string, error) {
	return render("# "+i.title+"\n"+string(i.mdMsg), style)
}

var (
	render = glamour.Render

	issues = map[Id]*Issue{
		EngineNotFoundId: {
			id:    EngineNotFoundId,
			title: "Container engine not found",
			mdMsg: `
gantry builds and checks images through the Docker or Podman CLI, and neither
responded.

## Things you can try
- Install Podman or Docker and make sure the daemon or socket is running.
- Pick the engine explicitly:
~~~
$ gantry --engine podman build
~~~
- Or set it in the configuration file:
~~~cue
container_engine: "docker"
~~~`,
		},
		ManifestInvalidId: {
			id:    ManifestInvalidId,
			title: "Dependency manifest is invalid",
			mdMsg: `
The dependency manifest could not be parsed, so the install step would fail.
The build stopped before any layer was produced.

## Things you can try
- Fix the specifier on the reported line (` + "`name==1.2.3`" + `).
- Remove stray characters or unterminated line continuations.
- Pin every dependency to make the install reproducible:
~~~
$ gantry build --require-pinned
~~~`,
		},
		RecipeInvalidId: {
			id:    RecipeInvalidId,
			title: "Build recipe is invalid",
			mdMsg: `
The build recipe failed validation.

## Common causes
- The base image has no tag or uses ` + "`latest`" + `.
- The working directory binding does not match ` + "`workdir`" + `.
- The worker count or port is out of range.
- The application reference is not of the form ` + "`module:object`" + `.`,
		},
		ImageBuildFailedId: {
			id:    ImageBuildFailedId,
			title: "Image build failed",
			mdMsg: `
The container engine rejected the build. No image was tagged.

## Things you can try
- Inspect the generated Dockerfile:
~~~
$ gantry dockerfile
~~~
- Re-run with ` + "`--verbose`" + ` to see the engine output.
- Check that the dependency index is reachable from the build host.`,
		},
		PortInUseId: {
			id:    PortInUseId,
			title: "Port already in use",
			mdMsg: `
The process manager could not bind its listener.

## Things you can try
- Stop the process holding the port.
- Serve on another port:
~~~
$ PORT=9090 gantry serve
~~~`,
		},
		AppNotFoundId: {
			id:    AppNotFoundId,
			title: "Application object not found",
			mdMsg: `
The workers could not resolve the application reference, so none of them
became ready.

## Things you can try
- List the registered application objects:
~~~
$ gantry apps
~~~
- Pass a registered reference with ` + "`--app module:object`" + `.`,
		},
		CrashLoopId: {
			id:    CrashLoopId,
			title: "Workers are crash looping",
			mdMsg: `
Workers kept exiting faster than the restart budget allows, so the process
manager gave up.

## Things you can try
- Read the worker logs above the failure.
- Raise ` + "`launch.max_restarts`" + ` or ` + "`launch.restart_window`" + ` if the
  exits are expected.`,
		},
		ConfigLoadFailedId: {
			id:    ConfigLoadFailedId,
			title: "Failed to load configuration",
			mdMsg: `
The configuration file could not be read or does not match the schema.

## Things you can try
- Write a fresh default configuration:
~~~
$ gantry config init
~~~
- Show the effective configuration:
~~~
$ gantry config show
~~~`,
		},
	}
)

// Values returns every guide ordered by Id.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int {
		return cmp.Compare(a.id, b.id)
	})
}

// Get returns the guide for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
