// SPDX-License-Identifier: MPL-2.0

package nutrition

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// DatasetFileName is the dataset looked up in the application directory.
const DatasetFileName = "dataset.json"

var (
	// ErrEmptyDataset is returned for a dataset without foods.
	ErrEmptyDataset = errors.New("dataset has no foods")
	// ErrFoodNotFound is returned by FindByName.
	ErrFoodNotFound = errors.New("food not found in dataset")
)

type (
	// Food is one dataset row. The JSON keys are those of the published
	// dataset.
	Food struct {
		Name     string  `json:"Nama Makanan/Minuman"`
		Calories float64 `json:"Kalori (kcal)"`
		Carbs    float64 `json:"Karbohidrat (g)"`
		Protein  float64 `json:"Protein (g)"`
		Fat      float64 `json:"Lemak (g)"`
	}

	// Dataset is an immutable list of foods.
	Dataset struct {
		foods  []Food
		byName map[string]int
	}
)

// Features returns the macronutrient vector used for similarity.
func (f Food) Features() Macros {
	return Macros{Carbs: f.Carbs, Protein: f.Protein, Fat: f.Fat}
}

// LoadDataset reads a dataset file.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	ds, err := ParseDataset(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// ParseDataset decodes a JSON array of foods.
func ParseDataset(data []byte) (*Dataset, error) {
	var foods []Food
	if err := json.Unmarshal(data, &foods); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	return NewDataset(foods)
}

// NewDataset builds a dataset. Every food needs a name. The first of
// several foods sharing a name wins FindByName.
func NewDataset(foods []Food) (*Dataset, error) {
	if len(foods) == 0 {
		return nil, ErrEmptyDataset
	}
	ds := &Dataset{
		foods:  append([]Food(nil), foods...),
		byName: make(map[string]int, len(foods)),
	}
	for i, f := range ds.foods {
		if strings.TrimSpace(f.Name) == "" {
			return nil, fmt.Errorf("food %d has no name", i)
		}
		key := strings.ToLower(f.Name)
		if _, dup := ds.byName[key]; !dup {
			ds.byName[key] = i
		}
	}
	return ds, nil
}

// Len returns the number of foods.
func (d *Dataset) Len() int { return len(d.foods) }

// At returns the i-th food.
func (d *Dataset) At(i int) Food { return d.foods[i] }

// FindByName matches a name case-insensitively.
func (d *Dataset) FindByName(name string) (Food, error) {
	i, ok := d.byName[strings.ToLower(name)]
	if !ok {
		return Food{}, fmt.Errorf("%w: %q", ErrFoodNotFound, name)
	}
	return d.foods[i], nil
}
