// SPDX-License-Identifier: MPL-2.0

package nutrition

import (
	"errors"
	"fmt"
	"strings"
)

// Activity levels accepted by CalculateNeeds.
const (
	ActivityLight    = "ringan"
	ActivityModerate = "sedang"
	ActivityHeavy    = "berat"

	// GenderMale selects the male BMR constant. Any other value uses the
	// female constant.
	GenderMale = "pria"
)

// Energy per gram of each macronutrient, and the share of daily energy
// assigned to it.
const (
	kcalPerGramCarbs   = 4
	kcalPerGramProtein = 4
	kcalPerGramFat     = 9

	shareCarbs   = 0.55
	shareProtein = 0.20
	shareFat     = 0.25
)

// ErrInvalidActivity is returned for an unknown activity level.
var ErrInvalidActivity = errors.New("invalid activity level: choose ringan, sedang or berat")

var activityMultipliers = map[string]float64{
	ActivityLight:    1.375,
	ActivityModerate: 1.55,
	ActivityHeavy:    1.725,
}

type (
	// Person is the input to CalculateNeeds. Weight is in kg, height in cm
	// and age in years.
	Person struct {
		Weight   float64
		Height   float64
		Age      float64
		Gender   string
		Activity string
	}

	// Macros holds grams per day.
	Macros struct {
		Carbs   float64
		Protein float64
		Fat     float64
	}

	// Needs is the daily requirement for one person.
	Needs struct {
		BMR   float64
		TDEE  float64
		Daily Macros
	}
)

// CalculateNeeds applies the Mifflin-St Jeor equation and the activity
// multiplier, then splits the energy into macronutrients.
func CalculateNeeds(p Person) (Needs, error) {
	multiplier, ok := activityMultipliers[strings.ToLower(strings.TrimSpace(p.Activity))]
	if !ok {
		return Needs{}, fmt.Errorf("%w: %q", ErrInvalidActivity, p.Activity)
	}

	bmr := 10*p.Weight + 6.25*p.Height - 5*p.Age
	if strings.EqualFold(strings.TrimSpace(p.Gender), GenderMale) {
		bmr += 5
	} else {
		bmr -= 161
	}
	tdee := bmr * multiplier

	return Needs{BMR: bmr, TDEE: tdee, Daily: MacrosFor(tdee)}, nil
}

// MacrosFor splits a daily energy budget in kcal into grams.
func MacrosFor(kcal float64) Macros {
	return Macros{
		Carbs:   kcal * shareCarbs / kcalPerGramCarbs,
		Protein: kcal * shareProtein / kcalPerGramProtein,
		Fat:     kcal * shareFat / kcalPerGramFat,
	}
}
