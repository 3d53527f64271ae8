// internal/recommendation/types.go

// Package recommendation implements the hybrid recommendation engine: a
// content-based scorer, a collaborative-filtering scorer, and the blender
// that merges, backfills, ranks, and hydrates their output.
package recommendation

import (
	"fmt"
	"sort"

	"shop-recommender/internal/models"
)

// Method tags how a recommendation was produced.
type Method string

const (
	MethodContentBased  Method = "content-based"
	MethodCollaborative Method = "collaborative"
	MethodHybrid        Method = "hybrid"
	MethodPopular       Method = "popular"
)

// ScoredProduct is an intermediate scorer result. Scores are unbounded
// positive reals until the blender caps them.
type ScoredProduct struct {
	ProductID string  `json:"productId"`
	Score     float64 `json:"score"`
}

// Recommendation is a final ranked result with product details attached.
type Recommendation struct {
	ProductID   string         `json:"productId"`
	Score       float64        `json:"score"`
	Method      Method         `json:"method"`
	Product     models.Product `json:"product"`
	Explanation string         `json:"explanation,omitempty"`
}

// PreferenceProfile is the derived per-user taste profile, built from the
// most recent interactions weighted by type.
type PreferenceProfile struct {
	CategoryWeight map[string]float64 `json:"categoryWeight"`
	TagWeight      map[string]float64 `json:"tagWeight"`
	AveragePrice   float64            `json:"averagePrice"`
	SampleSize     int                `json:"sampleSize"`
}

// sortScored orders by score descending; equal scores order by product id so
// rankings are reproducible across runs.
func sortScored(scored []ScoredProduct) {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ProductID < scored[j].ProductID
	})
}

func profileCacheKey(userID string) string {
	return fmt.Sprintf("user:%s:profile", userID)
}

func resultCacheKey(userID string, limit int) string {
	return fmt.Sprintf("user:%s:recommendations:%d", userID, limit)
}

func statsCacheKey(userID string) string {
	return fmt.Sprintf("user:%s:stats", userID)
}
