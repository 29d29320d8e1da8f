// SPDX-License-Identifier: MPL-2.0

package httpapi

import (
	"errors"
	"net/http"

	"github.com/gantryhq/gantry/internal/nutrition"

	"github.com/labstack/echo/v4"
)

type (
	errorResponse struct {
		Error string `json:"error"`
	}

	// calculateRequest uses pointers so missing fields are distinguishable
	// from zero values.
	calculateRequest struct {
		Weight        *float64 `json:"weight"`
		Height        *float64 `json:"height"`
		Age           *float64 `json:"age"`
		Gender        *string  `json:"gender"`
		ActivityLevel *string  `json:"activity_level"`
	}

	calculateResponse struct {
		BMR   float64    `json:"bmr"`
		TDEE  float64    `json:"tdee"`
		Daily macroGrams `json:"kebutuhan_harian"`
	}

	macroGrams struct {
		Carbs   float64 `json:"karbohidrat"`
		Protein float64 `json:"protein"`
		Fat     float64 `json:"lemak"`
	}

	recommendRequest struct {
		Carbs   *float64 `json:"karbohidrat"`
		Protein *float64 `json:"protein"`
		Fat     *float64 `json:"lemak"`
	}

	recommendByNameRequest struct {
		FoodName *string `json:"food_name"`
	}

	nutritionFacts struct {
		Calories float64 `json:"kalori"`
		Carbs    float64 `json:"karbohidrat"`
		Protein  float64 `json:"protein"`
		Fat      float64 `json:"lemak"`
	}

	foodView struct {
		Name      string         `json:"nama"`
		Nutrition nutritionFacts `json:"nutrition"`
	}

	recommendationView struct {
		Name       string         `json:"nama"`
		Nutrition  nutritionFacts `json:"nutrition"`
		Similarity float64        `json:"similarity_score"`
	}

	recommendResponse struct {
		InputFood       *foodView            `json:"input_food,omitempty"`
		Recommendations []recommendationView `json:"recommendations"`
	}
)

var (
	errMissingFields   = echo.NewHTTPError(http.StatusBadRequest, "Missing required fields")
	errMissingFoodName = echo.NewHTTPError(http.StatusBadRequest, "Missing food_name field")
	errFoodNotFound    = echo.NewHTTPError(http.StatusNotFound, "Food not found in database")
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "foods": s.dataset.Len()})
}

func (s *Server) handleCalculate(c echo.Context) error {
	var req calculateRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if req.Weight == nil || req.Height == nil || req.Age == nil || req.Gender == nil || req.ActivityLevel == nil {
		return errMissingFields
	}

	needs, err := nutrition.CalculateNeeds(nutrition.Person{
		Weight:   *req.Weight,
		Height:   *req.Height,
		Age:      *req.Age,
		Gender:   *req.Gender,
		Activity: *req.ActivityLevel,
	})
	if errors.Is(err, nutrition.ErrInvalidActivity) {
		return echo.NewHTTPError(http.StatusBadRequest, nutrition.ErrInvalidActivity.Error())
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, calculateResponse{
		BMR:  needs.BMR,
		TDEE: needs.TDEE,
		Daily: macroGrams{
			Carbs:   needs.Daily.Carbs,
			Protein: needs.Daily.Protein,
			Fat:     needs.Daily.Fat,
		},
	})
}

func (s *Server) handleRecommend(c echo.Context) error {
	var req recommendRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if req.Carbs == nil || req.Protein == nil || req.Fat == nil {
		return errMissingFields
	}

	recs := s.recommender.Recommend(nutrition.Macros{Carbs: *req.Carbs, Protein: *req.Protein, Fat: *req.Fat})
	return c.JSON(http.StatusOK, recommendResponse{Recommendations: viewRecommendations(recs)})
}

func (s *Server) handleRecommendByName(c echo.Context) error {
	var req recommendByNameRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if req.FoodName == nil {
		return errMissingFoodName
	}

	food, err := s.dataset.FindByName(*req.FoodName)
	if errors.Is(err, nutrition.ErrFoodNotFound) {
		return errFoodNotFound
	}
	if err != nil {
		return err
	}

	input := viewFood(food)
	return c.JSON(http.StatusOK, recommendResponse{
		InputFood:       &input,
		Recommendations: viewRecommendations(s.recommender.Recommend(food.Features())),
	})
}

// bindJSON decodes the request body. A body that is not a JSON object is a
// 400.
func bindJSON(c echo.Context, dst any) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Request body must be a JSON object")
	}
	return nil
}

func viewFood(f nutrition.Food) foodView {
	return foodView{Name: f.Name, Nutrition: facts(f)}
}

func viewRecommendations(recs []nutrition.Recommendation) []recommendationView {
	out := make([]recommendationView, len(recs))
	for i, r := range recs {
		out[i] = recommendationView{Name: r.Food.Name, Nutrition: facts(r.Food), Similarity: r.Similarity}
	}
	return out
}

func facts(f nutrition.Food) nutritionFacts {
	return nutritionFacts{Calories: f.Calories, Carbs: f.Carbs, Protein: f.Protein, Fat: f.Fat}
}
