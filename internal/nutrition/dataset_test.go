// SPDX-License-Identifier: MPL-2.0

package nutrition

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func loadTestDataset(t *testing.T) *Dataset {
	t.Helper()
	ds, err := LoadDataset(filepath.Join("testdata", DatasetFileName))
	if err != nil {
		t.Fatalf("LoadDataset() error = %v", err)
	}
	return ds
}

func TestLoadDataset(t *testing.T) {
	t.Parallel()

	ds := loadTestDataset(t)
	if ds.Len() != 7 {
		t.Fatalf("Len() = %d, want 7", ds.Len())
	}
	want := Food{Name: "Tempe Goreng", Calories: 350, Carbs: 9.4, Protein: 20, Fat: 26.6}
	if diff := cmp.Diff(want, ds.At(2)); diff != "" {
		t.Errorf("At(2) mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDatasetErrors(t *testing.T) {
	t.Parallel()

	if _, err := LoadDataset(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing file error = %v, want fs.ErrNotExist", err)
	}

	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"empty array", `[]`, ErrEmptyDataset},
		{"not json", `{`, nil},
		{"unnamed food", `[{"Kalori (kcal)": 1}]`, nil},
	}
	for _, tt := range tests {
		_, err := ParseDataset([]byte(tt.data))
		if err == nil {
			t.Errorf("%s: ParseDataset() succeeded", tt.name)
			continue
		}
		if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: error = %v, want %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestFindByName(t *testing.T) {
	t.Parallel()

	ds := loadTestDataset(t)
	for _, name := range []string{"Tahu Goreng", "tahu goreng", "TAHU GORENG"} {
		f, err := ds.FindByName(name)
		if err != nil {
			t.Errorf("FindByName(%q) error = %v", name, err)
			continue
		}
		if f.Name != "Tahu Goreng" {
			t.Errorf("FindByName(%q) = %q", name, f.Name)
		}
	}
	if _, err := ds.FindByName("Tahu"); !errors.Is(err, ErrFoodNotFound) {
		t.Errorf("partial name error = %v, want ErrFoodNotFound", err)
	}
}
