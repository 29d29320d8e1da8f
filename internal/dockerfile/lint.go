// SPDX-License-Identifier: MPL-2.0

package dockerfile

import (
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/gantryhq/gantry/internal/recipe"

	"github.com/moby/buildkit/frontend/dockerfile/parser"
)

// Options names the bindings and files the contract refers to.
type Options struct {
	WorkDirEnv    string
	UnbufferedEnv string
	// Manifest is the dependency manifest path relative to the source tree.
	Manifest string
	// SourceDirs are the context paths that hold the whole source tree.
	SourceDirs []string
}

// DefaultOptions matches the default recipe.
func DefaultOptions() Options {
	return OptionsFor(recipe.Default())
}

// OptionsFor derives lint options from a recipe.
func OptionsFor(r *recipe.Recipe) Options {
	return Options{
		WorkDirEnv:    r.WorkDirEnv,
		UnbufferedEnv: r.UnbufferedEnv,
		Manifest:      r.Manifest,
		SourceDirs:    []string{".", recipe.SourceDir},
	}
}

type instruction struct {
	cmd   string
	args  []string
	flags []string
	json  bool
	line  int
}

func (i instruction) hasFlag(prefix string) bool {
	return slices.ContainsFunc(i.flags, func(f string) bool { return strings.HasPrefix(f, prefix) })
}

// LintFile lints the Dockerfile at path.
func LintFile(p string, opts Options) (*Report, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Lint(f, opts)
}

// Lint parses a Dockerfile and checks it against the build contract. A
// syntax error is returned as an error, not as a finding.
func Lint(r io.Reader, opts Options) (*Report, error) {
	res, err := parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse Dockerfile: %w", err)
	}

	report := &Report{}
	for _, w := range res.Warnings {
		report.add(RuleParser, SeverityWarning, 0, "%s", w.Short)
	}

	var stages [][]instruction
	stageNames := map[string]bool{}
	for _, node := range res.AST.Children {
		inst := instruction{
			cmd:   strings.ToLower(node.Value),
			flags: node.Flags,
			json:  node.Attributes["json"],
			line:  node.StartLine,
		}
		for n := node.Next; n != nil; n = n.Next {
			inst.args = append(inst.args, n.Value)
		}

		if inst.cmd == "from" {
			checkBase(report, inst, stageNames)
			if len(inst.args) == 3 && strings.EqualFold(inst.args[1], "as") {
				stageNames[strings.ToLower(inst.args[2])] = true
			}
			stages = append(stages, nil)
		}
		if len(stages) == 0 {
			// ARG before the first FROM.
			continue
		}
		stages[len(stages)-1] = append(stages[len(stages)-1], inst)
	}

	if len(stages) == 0 {
		report.add(RuleUnpinnedBase, SeverityError, 0, "no FROM instruction")
		return report, nil
	}

	checkFinalStage(report, stages[len(stages)-1], opts)
	report.sort()
	return report, nil
}

func checkBase(report *Report, inst instruction, stageNames map[string]bool) {
	if len(inst.args) == 0 {
		report.add(RuleUnpinnedBase, SeverityError, inst.line, "FROM without an image")
		return
	}
	image := inst.args[0]
	switch {
	case image == "scratch", stageNames[strings.ToLower(image)]:
		return
	case strings.Contains(image, "$"):
		report.add(RuleUnpinnedBase, SeverityWarning, inst.line, "base image %q depends on a build argument and cannot be checked", image)
		return
	}
	if err := recipe.CheckPinned(image); err != nil {
		report.add(RuleUnpinnedBase, SeverityError, inst.line, "%v", err)
	}
}

func checkFinalStage(report *Report, stage []instruction, opts Options) {
	env := map[string]string{}
	envLine := map[string]int{}
	workdir := "/"
	workdirLine := 0
	var (
		expose, cmd, entrypoint *instruction
		install                 *instruction
		manifestCopies          []int
		treeCopies              []int
	)

	for i := range stage {
		inst := &stage[i]
		switch inst.cmd {
		case "env":
			for j := 0; j+1 < len(inst.args); j += 3 {
				env[inst.args[j]] = unquote(inst.args[j+1])
				envLine[inst.args[j]] = inst.line
			}
		case "workdir":
			if len(inst.args) > 0 {
				dir := os.Expand(unquote(inst.args[0]), func(k string) string { return env[k] })
				if !path.IsAbs(dir) {
					dir = path.Join(workdir, dir)
				}
				workdir = path.Clean(dir)
				workdirLine = inst.line
			}
		case "copy", "add":
			if inst.hasFlag("--from") || len(inst.args) < 2 {
				continue
			}
			for _, src := range inst.args[:len(inst.args)-1] {
				switch {
				case isTree(src, opts.SourceDirs):
					treeCopies = append(treeCopies, inst.line)
				case opts.Manifest != "" && path.Base(src) == path.Base(opts.Manifest):
					manifestCopies = append(manifestCopies, inst.line)
				}
			}
		case "run":
			if install == nil && isInstall(inst, opts.Manifest) {
				install = inst
			}
		case "expose":
			expose = inst
		case "cmd":
			cmd = inst
		case "entrypoint":
			entrypoint = inst
		}
	}

	if workdirLine == 0 {
		report.add(RuleMissingWorkdir, SeverityError, 0, "no WORKDIR; the source tree lands in /")
	}
	if expose == nil {
		report.add(RuleMissingExpose, SeverityWarning, 0, "no EXPOSE; the listening port is undocumented")
	}
	if opts.UnbufferedEnv != "" {
		if _, ok := env[opts.UnbufferedEnv]; !ok {
			report.add(RuleMissingUnbuffered, SeverityWarning, 0, "no %s binding; application output may be buffered", opts.UnbufferedEnv)
		}
	}
	if opts.WorkDirEnv != "" {
		if v, ok := env[opts.WorkDirEnv]; !ok {
			report.add(RuleWorkdirBinding, SeverityWarning, 0, "no %s binding for the working directory", opts.WorkDirEnv)
		} else if workdirLine != 0 && path.Clean(v) != workdir {
			report.add(RuleWorkdirBinding, SeverityError, envLine[opts.WorkDirEnv],
				"%s=%q does not match WORKDIR %q", opts.WorkDirEnv, v, workdir)
		}
	}

	if install != nil {
		before := func(lines []int) bool {
			return slices.ContainsFunc(lines, func(l int) bool { return l < install.line })
		}
		switch {
		case !before(manifestCopies) && !before(treeCopies):
			report.add(RuleInstallOrder, SeverityError, install.line, "dependency install runs before the manifest is copied")
		case before(treeCopies):
			report.add(RuleSourceBeforeDeps, SeverityWarning, treeCopies[0],
				"source tree copied before the dependency install; every source change reinstalls dependencies")
		}
	}
	if len(treeCopies) > 1 {
		report.add(RuleRedundantCopy, SeverityError, treeCopies[1],
			"source tree copied %d times; copy it once after the dependency install", len(treeCopies))
	}

	switch {
	case entrypoint != nil:
		checkExec(report, *entrypoint)
	case cmd != nil:
		checkExec(report, *cmd)
	default:
		report.add(RuleMissingCmd, SeverityError, 0, "no CMD or ENTRYPOINT")
	}
}

// checkExec flags shell-form commands that leave /bin/sh as PID 1, which does
// not forward SIGTERM to the process manager.
func checkExec(report *Report, inst instruction) {
	var script string
	switch {
	case !inst.json:
		script = strings.Join(inst.args, " ")
	case len(inst.args) >= 3 && isShell(inst.args[0]) && inst.args[1] == "-c":
		script = inst.args[2]
	default:
		return
	}
	if !strings.HasPrefix(strings.TrimSpace(script), "exec ") {
		report.add(RuleCmdWithoutExec, SeverityWarning, inst.line,
			"%s runs through a shell without exec; termination signals will not reach the process manager",
			strings.ToUpper(inst.cmd))
	}
}

func isShell(s string) bool {
	switch path.Base(s) {
	case "sh", "bash", "dash", "ash":
		return true
	}
	return false
}

func isTree(src string, dirs []string) bool {
	clean := path.Clean(src)
	return slices.ContainsFunc(dirs, func(d string) bool { return path.Clean(d) == clean })
}

func isInstall(inst *instruction, manifest string) bool {
	text := strings.Join(inst.args, " ")
	if manifest != "" && strings.Contains(text, path.Base(manifest)) {
		return true
	}
	return strings.Contains(text, " install ")
}

// unquote strips one level of Dockerfile double or single quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		switch {
		case s[0] == '"' && s[len(s)-1] == '"':
			r := strings.NewReplacer(`\\`, `\`, `\"`, `"`, `\$`, `$`)
			return r.Replace(s[1 : len(s)-1])
		case s[0] == '\'' && s[len(s)-1] == '\'':
			return s[1 : len(s)-1]
		}
	}
	return s
}
