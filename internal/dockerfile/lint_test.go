// SPDX-License-Identifier: MPL-2.0

package dockerfile

import (
	"slices"
	"strings"
	"testing"

	"github.com/gantryhq/gantry/internal/recipe"

	"github.com/google/go-cmp/cmp"
)

func lint(t *testing.T, src string) *Report {
	t.Helper()
	report, err := Lint(strings.NewReader(src), DefaultOptions())
	if err != nil {
		t.Fatalf("Lint: %v", err)
	}
	return report
}

func TestLintRenderedRecipesAreClean(t *testing.T) {
	t.Parallel()

	for _, m := range []recipe.Manager{recipe.ManagerGunicorn, recipe.ManagerGantry} {
		r := recipe.Default()
		r.Launch.Manager = m
		src, err := r.Render()
		if err != nil {
			t.Fatalf("%s: Render: %v", m, err)
		}
		report, err := Lint(strings.NewReader(src), OptionsFor(r))
		if err != nil {
			t.Fatalf("%s: Lint: %v", m, err)
		}
		if len(report.Findings) != 0 {
			t.Errorf("%s: unexpected findings: %v", m, report.Findings)
		}
	}
}

func TestLintDuplicateTreeCopy(t *testing.T) {
	t.Parallel()

	report := lint(t, `FROM python:3.9-slim
ENV PYTHONUNBUFFERED True
ENV APP_HOME /app
WORKDIR $APP_HOME
COPY . ./
RUN pip install -r requirements.txt
COPY . ./
EXPOSE 8080
CMD gunicorn --workers 4 --bind 0.0.0.0:8080 app:app
`)

	want := []Finding{
		{Rule: RuleSourceBeforeDeps, Severity: SeverityWarning, Line: 5},
		{Rule: RuleRedundantCopy, Severity: SeverityError, Line: 7},
		{Rule: RuleCmdWithoutExec, Severity: SeverityWarning, Line: 9},
	}
	got := make([]Finding, len(report.Findings))
	for i, f := range report.Findings {
		got[i] = Finding{Rule: f.Rule, Severity: f.Severity, Line: f.Line}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}
	if !report.HasErrors() {
		t.Error("HasErrors = false")
	}
}

func TestLintRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want []string
		not  []string
	}{
		{
			name: "unpinned base",
			src:  "FROM python\nENV PYTHONUNBUFFERED=1 APP_HOME=/app\nWORKDIR /app\nEXPOSE 80\nCMD [\"gunicorn\", \"app:app\"]\n",
			want: []string{RuleUnpinnedBase},
		},
		{
			name: "latest base",
			src:  "FROM python:latest\nWORKDIR /app\nCMD [\"x\"]\n",
			want: []string{RuleUnpinnedBase},
		},
		{
			name: "stage reference and scratch",
			src:  "FROM golang:1.25 AS build\nFROM build AS test\nFROM scratch\nWORKDIR /app\nEXPOSE 1\nENV PYTHONUNBUFFERED=1 APP_HOME=/app\nCMD [\"/app\"]\n",
			not:  []string{RuleUnpinnedBase},
		},
		{
			name: "build arg base",
			src:  "ARG BASE=python:3.9\nFROM $BASE\nWORKDIR /app\nCMD [\"x\"]\n",
			want: []string{RuleUnpinnedBase},
		},
		{
			name: "missing structure",
			src:  "FROM python:3.9-slim\nRUN echo hi\n",
			want: []string{RuleMissingWorkdir, RuleMissingExpose, RuleMissingUnbuffered, RuleWorkdirBinding, RuleMissingCmd},
		},
		{
			name: "workdir mismatch",
			src:  "FROM python:3.9-slim\nENV APP_HOME=/srv\nWORKDIR /app\nCMD [\"x\"]\n",
			want: []string{RuleWorkdirBinding},
		},
		{
			name: "relative workdir resolves",
			src:  "FROM python:3.9-slim\nENV APP_HOME=/srv/app PYTHONUNBUFFERED=1\nWORKDIR /srv\nWORKDIR app\nEXPOSE 80\nCMD [\"x\"]\n",
			not:  []string{RuleWorkdirBinding},
		},
		{
			name: "install before manifest",
			src:  "FROM python:3.9-slim\nWORKDIR /app\nRUN pip install -r requirements.txt\nCOPY . ./\nCMD [\"gunicorn\", \"app:app\"]\n",
			want: []string{RuleInstallOrder},
			not:  []string{RuleRedundantCopy},
		},
		{
			name: "shell wrapper without exec",
			src:  "FROM python:3.9-slim\nWORKDIR /app\nCMD [\"sh\", \"-c\", \"gunicorn app:app\"]\n",
			want: []string{RuleCmdWithoutExec},
		},
		{
			name: "shell wrapper with exec",
			src:  "FROM python:3.9-slim\nWORKDIR /app\nCMD [\"/bin/sh\", \"-c\", \"exec gunicorn app:app\"]\n",
			not:  []string{RuleCmdWithoutExec},
		},
		{
			name: "entrypoint wins over cmd",
			src:  "FROM python:3.9-slim\nWORKDIR /app\nENTRYPOINT [\"tini\", \"--\"]\nCMD gunicorn app:app\n",
			not:  []string{RuleCmdWithoutExec, RuleMissingCmd},
		},
		{
			name: "copy from another stage is not the source tree",
			src:  "FROM golang:1.25 AS build\nFROM python:3.9-slim\nWORKDIR /app\nCOPY requirements.txt ./\nRUN pip install -r requirements.txt\nCOPY --from=build . ./\nCOPY . ./\nCMD [\"x\"]\n",
			not:  []string{RuleRedundantCopy, RuleSourceBeforeDeps, RuleInstallOrder},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rules := lint(t, tt.src).Rules()
			for _, r := range tt.want {
				if !slices.Contains(rules, r) {
					t.Errorf("missing %s in %v", r, rules)
				}
			}
			for _, r := range tt.not {
				if slices.Contains(rules, r) {
					t.Errorf("unexpected %s in %v", r, rules)
				}
			}
		})
	}
}

func TestReportMarkdown(t *testing.T) {
	t.Parallel()

	empty := (&Report{}).Markdown("Dockerfile")
	if !strings.Contains(empty, "No findings") {
		t.Errorf("empty report:\n%s", empty)
	}

	r := &Report{}
	r.add(RuleMissingCmd, SeverityError, 0, "no CMD | ENTRYPOINT")
	r.add(RuleUnpinnedBase, SeverityError, 1, "python")
	md := r.Markdown("Dockerfile")
	for _, want := range []string{"# Dockerfile", "| - | error | `missing-cmd` | no CMD \\| ENTRYPOINT |", "| 1 | error | `unpinned-base` | python |"} {
		if !strings.Contains(md, want) {
			t.Errorf("missing %q in:\n%s", want, md)
		}
	}
}

func TestLintEmptyFile(t *testing.T) {
	t.Parallel()

	if _, err := Lint(strings.NewReader("# only a comment\n"), DefaultOptions()); err == nil {
		t.Fatal("expected error for a file with no instructions")
	}
}
