// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

func TestValues(t *testing.T) {
	t.Parallel()

	all := Values()
	if len(all) != int(ConfigLoadFailedId) {
		t.Fatalf("Values() returned %d guides, want %d", len(all), ConfigLoadFailedId)
	}
	for i, is := range all {
		if is.Id() != Id(i+1) {
			t.Errorf("Values()[%d].Id() = %d, want %d", i, is.Id(), i+1)
		}
		if is.Title() == "" || is.MarkdownMsg() == "" {
			t.Errorf("guide %d has empty title or body", is.Id())
		}
	}
}

func TestGetUnknown(t *testing.T) {
	t.Parallel()

	if Get(Id(999)) != nil {
		t.Error("Get(999) should be nil")
	}
}

//nolint:paralleltest // swaps the package-level renderer
func TestIssue_Render(t *testing.T) {
	original := render
	defer func() { render = original }()

	var gotStyle string
	render = func(in, style string) (string, error) {
		gotStyle = style
		return "rendered:" + in, nil
	}

	out, err := Get(PortInUseId).Render("dark")
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if gotStyle != "dark" {
		t.Errorf("style = %q, want dark", gotStyle)
	}
	if !strings.Contains(out, "# Port already in use") {
		t.Errorf("rendered output missing title:\n%s", out)
	}
}
