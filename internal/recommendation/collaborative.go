// internal/recommendation/collaborative.go
package recommendation

import (
	"context"
	"sort"

	"shop-recommender/internal/common/logger"
	"shop-recommender/internal/common/metrics"
	"shop-recommender/internal/store"
)

const (
	// similarityThreshold is deliberately permissive so sparse datasets
	// still find neighbors.
	similarityThreshold = 0.05
	maxNeighbors        = 20
)

// userSimilarity is a Jaccard-scored neighbor candidate.
type userSimilarity struct {
	userID string
	score  float64
}

// CollaborativeScorer propagates the interactions of similar users into
// product scores for the target user.
type CollaborativeScorer struct {
	store  store.Store
	logger logger.Logger
}

func NewCollaborativeScorer(st store.Store, log logger.Logger) *CollaborativeScorer {
	return &CollaborativeScorer{
		store:  st,
		logger: log.WithFields(map[string]interface{}{"scorer": string(MethodCollaborative)}),
	}
}

// Recommend never fails: store errors and users without history both degrade
// to an empty result, leaving the blender to content-based and popularity
// signals.
func (s *CollaborativeScorer) Recommend(ctx context.Context, userID string, limit int) []ScoredProduct {
	interactions, err := s.store.FindInteractions(ctx, store.InteractionFilter{UserID: userID})
	if err != nil {
		s.logger.Warn("interaction lookup failed", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		return nil
	}
	if len(interactions) == 0 {
		return nil
	}

	userProducts := make(map[string]bool, len(interactions))
	for _, interaction := range interactions {
		userProducts[interaction.ProductID] = true
	}

	neighbors := s.findSimilarUsers(ctx, userID, userProducts)
	if len(neighbors) == 0 {
		return nil
	}

	excluded := make(map[string]bool)
	for _, id := range strongProductIDs(interactions) {
		excluded[id] = true
	}

	scored := s.scoreNeighborInteractions(ctx, neighbors, excluded)

	sortScored(scored)
	if len(scored) > limit {
		scored = scored[:limit]
	}

	metrics.ScorerCandidates.WithLabelValues(string(MethodCollaborative)).Observe(float64(len(scored)))
	return scored
}

// findSimilarUsers ranks other users by Jaccard similarity of interacted
// product sets, keeping the top qualifying neighbors.
func (s *CollaborativeScorer) findSimilarUsers(ctx context.Context, userID string, userProducts map[string]bool) []userSimilarity {
	productIDs := make([]string, 0, len(userProducts))
	for id := range userProducts {
		productIDs = append(productIDs, id)
	}

	others, err := s.store.FindInteractions(ctx, store.InteractionFilter{
		ProductIDIn:   productIDs,
		ExcludeUserID: userID,
	})
	if err != nil {
		s.logger.Warn("neighbor lookup failed", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		return nil
	}

	byUser := make(map[string]map[string]bool)
	for _, interaction := range others {
		set, ok := byUser[interaction.UserID]
		if !ok {
			set = make(map[string]bool)
			byUser[interaction.UserID] = set
		}
		set[interaction.ProductID] = true
	}

	var similarities []userSimilarity
	for otherID, otherProducts := range byUser {
		similarity := jaccard(userProducts, otherProducts)
		if similarity > similarityThreshold {
			similarities = append(similarities, userSimilarity{userID: otherID, score: similarity})
		}
	}

	sort.Slice(similarities, func(i, j int) bool {
		if similarities[i].score != similarities[j].score {
			return similarities[i].score > similarities[j].score
		}
		return similarities[i].userID < similarities[j].userID
	})
	if len(similarities) > maxNeighbors {
		similarities = similarities[:maxNeighbors]
	}
	return similarities
}

func (s *CollaborativeScorer) scoreNeighborInteractions(ctx context.Context, neighbors []userSimilarity, excluded map[string]bool) []ScoredProduct {
	neighborIDs := make([]string, len(neighbors))
	similarityByUser := make(map[string]float64, len(neighbors))
	for i, n := range neighbors {
		neighborIDs[i] = n.userID
		similarityByUser[n.userID] = n.score
	}

	interactions, err := s.store.FindInteractions(ctx, store.InteractionFilter{UserIDIn: neighborIDs})
	if err != nil {
		s.logger.Warn("neighbor interaction lookup failed", map[string]interface{}{"error": err.Error()})
		return nil
	}

	// Multiple neighbors contribute additively to the same product.
	productScores := make(map[string]float64)
	for _, interaction := range interactions {
		if excluded[interaction.ProductID] {
			continue
		}
		similarity := similarityByUser[interaction.UserID]
		productScores[interaction.ProductID] += similarity * interaction.InteractionType.Weight() * 100
	}

	scored := make([]ScoredProduct, 0, len(productScores))
	for productID, score := range productScores {
		scored = append(scored, ScoredProduct{ProductID: productID, Score: score})
	}
	return scored
}

// jaccard computes |intersection| / |union| over two product-id sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	intersection := 0
	for id := range a {
		if b[id] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
