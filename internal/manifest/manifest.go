// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// FormatRequirements and FormatPyProject are the supported manifest formats.
const (
	FormatRequirements Format = "requirements"
	FormatPyProject    Format = "pyproject"
)

// ErrInvalidManifest is wrapped by every parse failure.
var ErrInvalidManifest = errors.New("invalid dependency manifest")

type (
	// Format is a manifest file format.
	Format string

	// Manifest is a parsed dependency manifest.
	Manifest struct {
		Name         string
		Format       Format
		Requirements []Requirement
		// Options holds pip global options such as "--index-url".
		Options []string
	}

	// ParseError locates a manifest problem.
	ParseError struct {
		File   string
		Line   int
		Text   string
		Reason error
	}

	pyProject struct {
		Project struct {
			Dependencies []string `toml:"dependencies"`
		} `toml:"project"`
	}
)

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %v: %q", e.File, e.Line, e.Reason, e.Text)
	}
	return fmt.Sprintf("%s: %v", e.File, e.Reason)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrInvalidManifest, e.Reason}
}

// FormatFor picks the format from the manifest file name.
func FormatFor(name string) Format {
	if filepath.Base(name) == "pyproject.toml" {
		return FormatPyProject
	}
	return FormatRequirements
}

// ParseFile reads and parses the manifest at path.
func ParseFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dependency manifest: %w", err)
	}
	defer f.Close()

	return Parse(filepath.Base(path), f)
}

// Parse parses a manifest named name. Every malformed line is reported.
func Parse(name string, r io.Reader) (*Manifest, error) {
	if FormatFor(name) == FormatPyProject {
		return parsePyProject(name, r)
	}
	return parseRequirements(name, r)
}

func parseRequirements(name string, r io.Reader) (*Manifest, error) {
	m := &Manifest{Name: name, Format: FormatRequirements}
	seen := make(map[string]int)
	var errs []error

	sc := bufio.NewScanner(r)
	var (
		pending   strings.Builder
		startLine int
		lineNo    int
	)
	flush := func() {
		text := strings.TrimSpace(pending.String())
		pending.Reset()
		if text == "" {
			return
		}
		if err := m.addLine(text, startLine, seen); err != nil {
			errs = append(errs, &ParseError{File: name, Line: startLine, Text: text, Reason: err})
		}
	}

	for sc.Scan() {
		lineNo++
		line := stripComment(sc.Text())
		if pending.Len() == 0 {
			startLine = lineNo
		}
		if cont, ok := strings.CutSuffix(strings.TrimRight(line, " \t"), `\`); ok {
			pending.WriteString(cont)
			pending.WriteByte(' ')
			continue
		}
		pending.WriteString(line)
		flush()
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if pending.Len() > 0 {
		errs = append(errs, &ParseError{File: name, Line: startLine, Text: strings.TrimSpace(pending.String()), Reason: errors.New("unterminated line continuation")})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return m, nil
}

func (m *Manifest) addLine(text string, line int, seen map[string]int) error {
	if strings.HasPrefix(text, "-") {
		return m.addOption(text)
	}

	spec, hashes, err := splitHashes(text)
	if err != nil {
		return err
	}
	req, err := ParseRequirement(spec)
	if err != nil {
		return err
	}
	req.Hashes = hashes
	req.Line = line

	key := req.Key()
	if prev, dup := seen[key]; dup {
		return fmt.Errorf("duplicate requirement %q (first on line %d)", req.String(), prev)
	}
	seen[key] = line
	m.Requirements = append(m.Requirements, req)

	return nil
}

func (m *Manifest) addOption(text string) error {
	flag, _, _ := strings.Cut(strings.Fields(text)[0], "=")
	switch flag {
	case "-i", "--index-url", "--extra-index-url", "-f", "--find-links",
		"--no-index", "--pre", "--prefer-binary", "--trusted-host", "--only-binary", "--no-binary":
		m.Options = append(m.Options, strings.Join(strings.Fields(text), " "))
		return nil
	case "-r", "--requirement", "-c", "--constraint":
		return fmt.Errorf("nested manifest %q is not copied into the dependency layer", text)
	case "-e", "--editable":
		return errors.New("editable installs need the source tree and cannot live in the dependency layer")
	default:
		return fmt.Errorf("unknown option %q", flag)
	}
}

func splitHashes(text string) (string, []string, error) {
	spec, rest, found := strings.Cut(text, "--hash")
	if !found {
		return text, nil, nil
	}
	var hashes []string
	for f := range strings.FieldsSeq("--hash" + rest) {
		v, ok := strings.CutPrefix(f, "--hash=")
		if !ok || !strings.Contains(v, ":") {
			return "", nil, fmt.Errorf("invalid hash option %q", f)
		}
		hashes = append(hashes, v)
	}
	slices.Sort(hashes)
	return strings.TrimSpace(spec), hashes, nil
}

func stripComment(line string) string {
	for i := 0; i < len(line); i++ {
		if line[i] == '#' && (i == 0 || line[i-1] == ' ' || line[i-1] == '\t') {
			return line[:i]
		}
	}
	return line
}

func parsePyProject(name string, r io.Reader) (*Manifest, error) {
	var doc pyProject
	if err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, &ParseError{File: name, Reason: err}
	}

	m := &Manifest{Name: name, Format: FormatPyProject}
	seen := make(map[string]int)
	var errs []error
	for i, dep := range doc.Project.Dependencies {
		req, err := ParseRequirement(dep)
		if err != nil {
			errs = append(errs, &ParseError{File: name, Text: dep, Reason: fmt.Errorf("dependencies[%d]: %w", i, err)})
			continue
		}
		key := req.Key()
		if _, dup := seen[key]; dup {
			errs = append(errs, &ParseError{File: name, Text: dep, Reason: fmt.Errorf("duplicate requirement %q", req.NormalizedName())})
			continue
		}
		seen[key] = i
		m.Requirements = append(m.Requirements, req)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return m, nil
}

// Unpinned returns the requirements that do not resolve to one release.
func (m *Manifest) Unpinned() []Requirement {
	var out []Requirement
	for _, r := range m.Requirements {
		if !r.Pinned() {
			out = append(out, r)
		}
	}
	return out
}

// Digest is a hex sha256 over the canonical requirement set and options. It
// ignores ordering, comments and name spelling, so two manifests that install
// the same thing share a digest.
func (m *Manifest) Digest() string {
	lines := make([]string, 0, len(m.Requirements)+len(m.Options))
	for _, r := range m.Requirements {
		line := r.String()
		if len(r.Hashes) > 0 {
			line += " --hash=" + strings.Join(r.Hashes, " --hash=")
		}
		lines = append(lines, line)
	}
	opts := slices.Clone(m.Options)
	slices.Sort(opts)
	slices.Sort(lines)

	h := sha256.New()
	for _, o := range opts {
		io.WriteString(h, "option "+o+"\n")
	}
	for _, l := range lines {
		io.WriteString(h, l+"\n")
	}
	return hex.EncodeToString(h.Sum(nil))
}
