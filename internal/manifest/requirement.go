// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	namePattern    = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?$`)
	clausePattern  = regexp.MustCompile(`^(===|~=|==|!=|<=|>=|<|>)\s*([A-Za-z0-9.*+!_-]+)$`)
	separatorRunRe = regexp.MustCompile(`[-_.]+`)

	errEmptyName = errors.New("missing project name")
)

type (
	// Clause is one version constraint such as ">=1.2".
	Clause struct {
		Op      string
		Version string
	}

	// Requirement is one dependency specifier.
	Requirement struct {
		// Name is the project name as written.
		Name    string
		Extras  []string
		Clauses []Clause
		// URL is set for direct references: "name @ url", a bare archive or
		// VCS URL, or a local path. Name may be empty for the bare forms
		// when no #egg= fragment names the project.
		URL    string
		Marker string
		Hashes []string
		// Line is the 1-based source line, 0 for pyproject entries.
		Line int
	}
)

// NormalizedName lowercases the name and folds runs of "-", "_" and "."
// into a single "-", so "Flask_Login" and "flask-login" compare equal.
func (r Requirement) NormalizedName() string {
	return separatorRunRe.ReplaceAllString(strings.ToLower(r.Name), "-")
}

// Local reports whether the requirement points at a path on the build host.
func (r Requirement) Local() bool {
	return r.URL != "" && !strings.Contains(r.URL, "://")
}

// Key identifies the requirement for duplicate detection: the normalized
// name, or the URL for unnamed direct references.
func (r Requirement) Key() string {
	if r.Name == "" {
		return r.URL + ";" + r.Marker
	}
	return r.NormalizedName() + ";" + r.Marker
}

// Pinned reports whether the requirement resolves to exactly one release:
// a single "==" clause without wildcards, or "===".
func (r Requirement) Pinned() bool {
	if r.URL != "" {
		return len(r.Hashes) > 0
	}
	if len(r.Clauses) != 1 {
		return false
	}
	c := r.Clauses[0]
	switch c.Op {
	case "===":
		return true
	case "==":
		return !strings.Contains(c.Version, "*")
	default:
		return false
	}
}

// String renders the requirement in canonical form.
func (r Requirement) String() string {
	var b strings.Builder
	if r.Name == "" {
		b.WriteString(r.URL)
		if r.Marker != "" {
			b.WriteString(" ; " + r.Marker)
		}
		return b.String()
	}
	b.WriteString(r.NormalizedName())
	if len(r.Extras) > 0 {
		b.WriteString("[" + strings.Join(r.Extras, ",") + "]")
	}
	if r.URL != "" {
		b.WriteString(" @ " + r.URL)
	}
	for i, c := range r.Clauses {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(c.Op + c.Version)
	}
	if r.Marker != "" {
		b.WriteString("; " + r.Marker)
	}
	return b.String()
}

// ParseRequirement parses a single PEP 508 style specifier without pip
// options.
func ParseRequirement(s string) (Requirement, error) {
	var req Requirement

	if isDirectReference(s) {
		return parseDirectReference(s)
	}

	spec, marker, _ := strings.Cut(s, ";")
	req.Marker = strings.Join(strings.Fields(marker), " ")
	spec = strings.TrimSpace(spec)

	if name, url, ok := strings.Cut(spec, "@"); ok {
		req.URL = strings.TrimSpace(url)
		if req.URL == "" {
			return req, errors.New("direct reference without URL")
		}
		spec = strings.TrimSpace(name)
	}

	name := spec
	if i := strings.IndexAny(spec, "[<>=!~ "); i >= 0 {
		name, spec = spec[:i], strings.TrimSpace(spec[i:])
	} else {
		spec = ""
	}
	if name == "" {
		return req, errEmptyName
	}
	if !namePattern.MatchString(name) {
		return req, fmt.Errorf("invalid project name %q", name)
	}
	req.Name = name

	if strings.HasPrefix(spec, "[") {
		end := strings.IndexByte(spec, ']')
		if end < 0 {
			return req, errors.New("unterminated extras")
		}
		for extra := range strings.SplitSeq(spec[1:end], ",") {
			extra = strings.TrimSpace(extra)
			if !namePattern.MatchString(extra) {
				return req, fmt.Errorf("invalid extra %q", extra)
			}
			req.Extras = append(req.Extras, strings.ToLower(extra))
		}
		spec = strings.TrimSpace(spec[end+1:])
	}

	spec = strings.TrimSuffix(strings.TrimPrefix(spec, "("), ")")
	if spec == "" {
		return req, nil
	}
	if req.URL != "" {
		return req, errors.New("direct reference cannot carry version clauses")
	}
	for raw := range strings.SplitSeq(spec, ",") {
		m := clausePattern.FindStringSubmatch(strings.TrimSpace(raw))
		if m == nil {
			return req, fmt.Errorf("invalid version clause %q", strings.TrimSpace(raw))
		}
		req.Clauses = append(req.Clauses, Clause{Op: m[1], Version: m[2]})
	}

	return req, nil
}

// isDirectReference reports whether the line starts with a bare URL or a
// filesystem path rather than a project name.
func isDirectReference(s string) bool {
	head := strings.TrimSpace(s)
	if i := strings.IndexAny(head, " \t;"); i >= 0 {
		head = head[:i]
	}
	if scheme := strings.Index(head, "://"); scheme >= 0 {
		// "name@https://..." is a named reference.
		at := strings.IndexByte(head, '@')
		return at < 0 || at > scheme
	}
	return strings.HasPrefix(head, ".") || strings.HasPrefix(head, "/")
}

// parseDirectReference handles "git+https://host/repo.git@v1#egg=name",
// archive URLs and local paths. A marker after a URL needs whitespace
// before the ";" since URLs may contain one.
func parseDirectReference(s string) (Requirement, error) {
	var req Requirement

	ref, marker, _ := strings.Cut(strings.ReplaceAll(strings.TrimSpace(s), "\t", " "), " ;")
	ref = strings.TrimSpace(ref)
	req.Marker = strings.Join(strings.Fields(marker), " ")
	if strings.Contains(ref, " ") {
		return req, fmt.Errorf("unexpected text after direct reference %q", ref)
	}
	req.URL = ref

	_, fragment, _ := strings.Cut(ref, "#")
	for part := range strings.SplitSeq(fragment, "&") {
		egg, ok := strings.CutPrefix(part, "egg=")
		if !ok {
			continue
		}
		name := egg
		if i := strings.IndexByte(egg, '['); i >= 0 {
			name = egg[:i]
		}
		if !namePattern.MatchString(name) {
			return req, fmt.Errorf("invalid project name %q in #egg fragment", name)
		}
		req.Name = name
	}

	return req, nil
}
