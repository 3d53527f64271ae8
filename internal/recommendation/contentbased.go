// internal/recommendation/contentbased.go
package recommendation

import (
	"context"
	"encoding/json"
	"time"

	"shop-recommender/internal/cache"
	"shop-recommender/internal/common/logger"
	"shop-recommender/internal/common/metrics"
	"shop-recommender/internal/models"
	"shop-recommender/internal/store"
)

const recentInteractionCap = 50

// ContentBasedScorer scores candidate products against a weighted profile of
// the user's recent interactions.
type ContentBasedScorer struct {
	store      store.Store
	cache      cache.Cache
	logger     logger.Logger
	profileTTL time.Duration
}

func NewContentBasedScorer(st store.Store, c cache.Cache, log logger.Logger, profileTTL time.Duration) *ContentBasedScorer {
	return &ContentBasedScorer{
		store:      st,
		cache:      c,
		logger:     log.WithFields(map[string]interface{}{"scorer": string(MethodContentBased)}),
		profileTTL: profileTTL,
	}
}

// Recommend never fails: store errors degrade to an empty result, a user
// with no history gets the popularity fallback.
func (s *ContentBasedScorer) Recommend(ctx context.Context, userID string, limit int) []ScoredProduct {
	interactions, err := s.store.FindInteractions(ctx, store.InteractionFilter{
		UserID:               userID,
		Limit:                recentInteractionCap,
		OrderByTimestampDesc: true,
	})
	if err != nil {
		s.logger.Warn("interaction lookup failed", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		return nil
	}

	if len(interactions) == 0 {
		return s.popularProducts(ctx, limit)
	}

	profile := s.profileFor(ctx, userID, interactions)

	// Exclusion covers the user's whole strong history, not just the recent
	// window the profile is built from.
	strong, err := s.store.FindInteractions(ctx, store.InteractionFilter{
		UserID: userID,
		Types:  models.StrongInteractionTypes(),
	})
	if err != nil {
		s.logger.Warn("strong interaction lookup failed", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		return nil
	}

	excluded := strongProductIDs(strong)
	candidates, err := s.store.FindProducts(ctx, store.ProductFilter{ExcludeIDsIn: excluded})
	if err != nil {
		s.logger.Warn("candidate lookup failed", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		return nil
	}

	// A user who has acted on the whole catalog still gets recommendations.
	if len(candidates) == 0 {
		candidates, err = s.store.FindProducts(ctx, store.ProductFilter{})
		if err != nil || len(candidates) == 0 {
			return nil
		}
	}

	scored := make([]ScoredProduct, 0, len(candidates))
	for _, product := range candidates {
		score := similarityScore(product, profile)
		if score > 0 {
			scored = append(scored, ScoredProduct{ProductID: product.ID, Score: score})
		}
	}

	sortScored(scored)
	if len(scored) > limit {
		scored = scored[:limit]
	}

	metrics.ScorerCandidates.WithLabelValues(string(MethodContentBased)).Observe(float64(len(scored)))
	return scored
}

// profileFor returns the cached preference profile, rebuilding it from the
// supplied interactions when absent.
func (s *ContentBasedScorer) profileFor(ctx context.Context, userID string, interactions []models.Interaction) PreferenceProfile {
	key := profileCacheKey(userID)
	if raw, ok := s.cache.Get(ctx, key); ok {
		var profile PreferenceProfile
		if err := json.Unmarshal([]byte(raw), &profile); err == nil {
			return profile
		}
	}

	profile := s.buildProfile(ctx, interactions)

	if raw, err := json.Marshal(profile); err == nil {
		s.cache.Set(ctx, key, string(raw), s.profileTTL)
	}
	return profile
}

func (s *ContentBasedScorer) buildProfile(ctx context.Context, interactions []models.Interaction) PreferenceProfile {
	profile := PreferenceProfile{
		CategoryWeight: make(map[string]float64),
		TagWeight:      make(map[string]float64),
	}

	products, err := s.productsByID(ctx, interactions)
	if err != nil {
		s.logger.Warn("profile product lookup failed", map[string]interface{}{"error": err.Error()})
		return profile
	}

	var totalPrice, totalWeight float64
	for _, interaction := range interactions {
		product, ok := products[interaction.ProductID]
		if !ok {
			continue
		}

		weight := interaction.InteractionType.Weight()
		profile.CategoryWeight[product.Category] += weight
		for _, tag := range product.Tags {
			profile.TagWeight[tag] += weight
		}

		totalPrice += product.Price * weight
		totalWeight += weight
		profile.SampleSize++
	}

	if totalWeight > 0 {
		profile.AveragePrice = totalPrice / totalWeight
	}
	return profile
}

func (s *ContentBasedScorer) productsByID(ctx context.Context, interactions []models.Interaction) (map[string]models.Product, error) {
	ids := make([]string, 0, len(interactions))
	seen := make(map[string]bool, len(interactions))
	for _, interaction := range interactions {
		if !seen[interaction.ProductID] {
			seen[interaction.ProductID] = true
			ids = append(ids, interaction.ProductID)
		}
	}

	products, err := s.store.FindProducts(ctx, store.ProductFilter{IDsIn: ids})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, nil
}

// similarityScore weights category match 40%, tag overlap 40%, and price
// proximity 20%. The price term only applies once the profile has samples.
func similarityScore(product models.Product, profile PreferenceProfile) float64 {
	score := profile.CategoryWeight[product.Category] * 0.4

	var tagScore float64
	for _, tag := range product.Tags {
		tagScore += profile.TagWeight[tag]
	}
	score += tagScore * 0.4

	if profile.SampleSize > 0 {
		priceDiff := product.Price - profile.AveragePrice
		if priceDiff < 0 {
			priceDiff = -priceDiff
		}
		priceScore := 100 - priceDiff/2
		if priceScore > 0 {
			score += priceScore * 0.2
		}
	}

	return score
}

// popularProducts is the cold-start fallback: rank by total interaction
// count, newest catalog entries when there are no interactions at all.
func (s *ContentBasedScorer) popularProducts(ctx context.Context, limit int) []ScoredProduct {
	counts, err := s.store.CountInteractionsGroupedByProduct(ctx, limit)
	if err != nil {
		s.logger.Warn("popularity lookup failed", map[string]interface{}{"error": err.Error()})
		return nil
	}

	if len(counts) == 0 {
		products, err := s.store.FindProducts(ctx, store.ProductFilter{
			Limit:                limit,
			OrderByCreatedAtDesc: true,
		})
		if err != nil {
			return nil
		}
		scored := make([]ScoredProduct, 0, len(products))
		for i, p := range products {
			scored = append(scored, ScoredProduct{ProductID: p.ID, Score: float64(100 - i*5)})
		}
		return scored
	}

	scored := make([]ScoredProduct, 0, len(counts))
	for i, c := range counts {
		scored = append(scored, ScoredProduct{ProductID: c.ProductID, Score: float64(100 - i*5)})
	}
	return scored
}

func strongProductIDs(interactions []models.Interaction) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, interaction := range interactions {
		if interaction.InteractionType.Strong() && !seen[interaction.ProductID] {
			seen[interaction.ProductID] = true
			ids = append(ids, interaction.ProductID)
		}
	}
	return ids
}
