// SPDX-License-Identifier: MPL-2.0

package smoke

import (
	"fmt"
	"strings"
	"time"
)

// Check names.
const (
	CheckBoot       = "boot"
	CheckShutdown   = "shutdown"
	CheckMissingApp = "missing-app"
)

type (
	// Result is the outcome of one check.
	Result struct {
		Name     string
		Passed   bool
		Duration time.Duration
		Detail   string
	}

	// Report collects the results of one Checker.Run.
	Report struct {
		Image   string
		Results []Result
	}
)

// Failed reports whether any check failed.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if !res.Passed {
			return true
		}
	}
	return false
}

// Result returns the named check, if it ran.
func (r *Report) Result(name string) (Result, bool) {
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return Result{}, false
}

// Markdown renders the report as a table.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Smoke checks for `%s`\n\n", r.Image)
	b.WriteString("| Check | Result | Time | Detail |\n|---|---|---|---|\n")
	for _, res := range r.Results {
		status := "pass"
		if !res.Passed {
			status = "**FAIL**"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", res.Name, status,
			res.Duration.Round(time.Millisecond), strings.ReplaceAll(res.Detail, "|", `\|`))
	}
	return b.String()
}
