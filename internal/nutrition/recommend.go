// SPDX-License-Identifier: MPL-2.0

package nutrition

import (
	"cmp"
	"math"
	"slices"
)

// DefaultNeighbors is the number of recommendations returned.
const DefaultNeighbors = 5

type (
	// Recommendation is one neighbour of the query.
	Recommendation struct {
		Food     Food
		Distance float64
		// Similarity is 1/(1+Distance).
		Similarity float64
	}

	// Recommender finds the foods nearest to a macronutrient vector.
	Recommender struct {
		ds *Dataset
		k  int
	}
)

// NewRecommender returns a recommender over ds. k <= 0 selects
// DefaultNeighbors. k is capped at the dataset size.
func NewRecommender(ds *Dataset, k int) *Recommender {
	if k <= 0 {
		k = DefaultNeighbors
	}
	return &Recommender{ds: ds, k: min(k, ds.Len())}
}

// Recommend returns the k nearest foods by Euclidean distance over carbs,
// protein and fat, nearest first. Ties keep dataset order.
func (r *Recommender) Recommend(q Macros) []Recommendation {
	all := make([]Recommendation, r.ds.Len())
	for i := range all {
		f := r.ds.At(i)
		d := distance(q, f.Features())
		all[i] = Recommendation{Food: f, Distance: d, Similarity: 1 / (1 + d)}
	}
	slices.SortStableFunc(all, func(a, b Recommendation) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	return all[:r.k]
}

func distance(a, b Macros) float64 {
	dc := a.Carbs - b.Carbs
	dp := a.Protein - b.Protein
	df := a.Fat - b.Fat
	return math.Sqrt(dc*dc + dp*dp + df*df)
}
