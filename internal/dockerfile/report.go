// SPDX-License-Identifier: MPL-2.0

package dockerfile

import (
	"fmt"
	"slices"
	"strings"
)

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Rule names.
const (
	RuleParser            = "parser"
	RuleUnpinnedBase      = "unpinned-base"
	RuleMissingWorkdir    = "missing-workdir"
	RuleMissingExpose     = "missing-expose"
	RuleMissingCmd        = "missing-cmd"
	RuleMissingUnbuffered = "missing-unbuffered-env"
	RuleWorkdirBinding    = "workdir-binding-mismatch"
	RuleInstallOrder      = "install-before-manifest"
	RuleSourceBeforeDeps  = "source-before-install"
	RuleRedundantCopy     = "redundant-source-copy"
	RuleCmdWithoutExec    = "cmd-without-exec"
)

type (
	// Severity ranks a finding. Errors fail `gantry lint`.
	Severity string

	// Finding is one contract violation.
	Finding struct {
		Rule     string
		Severity Severity
		// Line is the 1-based source line, or 0 for whole-file findings.
		Line    int
		Message string
	}

	// Report is the result of Lint.
	Report struct {
		Findings []Finding
	}
)

func (f Finding) String() string {
	if f.Line > 0 {
		return fmt.Sprintf("%d: %s [%s] %s", f.Line, f.Severity, f.Rule, f.Message)
	}
	return fmt.Sprintf("%s [%s] %s", f.Severity, f.Rule, f.Message)
}

// HasErrors reports whether any finding is an error.
func (r *Report) HasErrors() bool {
	return slices.ContainsFunc(r.Findings, func(f Finding) bool { return f.Severity == SeverityError })
}

// Rules returns the rule of every finding in report order.
func (r *Report) Rules() []string {
	out := make([]string, len(r.Findings))
	for i, f := range r.Findings {
		out[i] = f.Rule
	}
	return out
}

// Markdown renders the report as a Markdown document for glamour.
func (r *Report) Markdown(name string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", name)
	if len(r.Findings) == 0 {
		sb.WriteString("No findings. The Dockerfile follows the build contract.\n")
		return sb.String()
	}

	sb.WriteString("| Line | Severity | Rule | Message |\n")
	sb.WriteString("|---:|---|---|---|\n")
	for _, f := range r.Findings {
		line := "-"
		if f.Line > 0 {
			line = fmt.Sprint(f.Line)
		}
		msg := strings.ReplaceAll(f.Message, "|", `\|`)
		fmt.Fprintf(&sb, "| %s | %s | `%s` | %s |\n", line, f.Severity, f.Rule, msg)
	}
	return sb.String()
}

func (r *Report) add(rule string, sev Severity, line int, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{
		Rule:     rule,
		Severity: sev,
		Line:     line,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (r *Report) sort() {
	slices.SortStableFunc(r.Findings, func(a, b Finding) int { return a.Line - b.Line })
}
