// internal/recommendation/stats.go
package recommendation

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"shop-recommender/internal/models"
	"shop-recommender/internal/store"
)

const (
	statsTTL            = 10 * time.Minute
	topCategoryCount    = 5
	recentActivityCount = 5
)

// UserStats summarizes a user's interaction history for the stats endpoint.
type UserStats struct {
	UserID            string           `json:"userId"`
	TotalInteractions int              `json:"totalInteractions"`
	Breakdown         StatsBreakdown   `json:"breakdown"`
	TopCategories     []CategoryCount  `json:"topCategories"`
	RecentActivity    []RecentActivity `json:"recentActivity"`
}

type StatsBreakdown struct {
	Views     int `json:"views"`
	Clicks    int `json:"clicks"`
	Likes     int `json:"likes"`
	Purchases int `json:"purchases"`
}

type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type RecentActivity struct {
	ProductName string    `json:"productName"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
}

// GetUserStats aggregates interaction counts, top categories, and recent
// activity for the user. Results are cached briefly; a store failure
// surfaces as an error rather than degraded data.
func (e *Engine) GetUserStats(ctx context.Context, userID string) (*UserStats, error) {
	key := statsCacheKey(userID)
	if raw, ok := e.cache.Get(ctx, key); ok {
		var stats UserStats
		if err := json.Unmarshal([]byte(raw), &stats); err == nil {
			return &stats, nil
		}
	}

	interactions, err := e.store.FindInteractions(ctx, store.InteractionFilter{
		UserID:               userID,
		OrderByTimestampDesc: true,
	})
	if err != nil {
		return nil, err
	}

	stats := &UserStats{
		UserID:            userID,
		TotalInteractions: len(interactions),
		TopCategories:     []CategoryCount{},
		RecentActivity:    []RecentActivity{},
	}

	for _, interaction := range interactions {
		switch interaction.InteractionType {
		case models.InteractionView:
			stats.Breakdown.Views++
		case models.InteractionClick:
			stats.Breakdown.Clicks++
		case models.InteractionLike:
			stats.Breakdown.Likes++
		case models.InteractionPurchase:
			stats.Breakdown.Purchases++
		}
	}

	products, err := e.productsForInteractions(ctx, interactions)
	if err != nil {
		return nil, err
	}

	stats.TopCategories = topCategories(interactions, products)

	for _, interaction := range interactions {
		if len(stats.RecentActivity) >= recentActivityCount {
			break
		}
		product, ok := products[interaction.ProductID]
		if !ok {
			continue
		}
		stats.RecentActivity = append(stats.RecentActivity, RecentActivity{
			ProductName: product.Name,
			Type:        string(interaction.InteractionType),
			Timestamp:   interaction.Timestamp,
		})
	}

	if raw, err := json.Marshal(stats); err == nil {
		e.cache.Set(ctx, key, string(raw), statsTTL)
	}
	return stats, nil
}

func (e *Engine) productsForInteractions(ctx context.Context, interactions []models.Interaction) (map[string]models.Product, error) {
	ids := make([]string, 0, len(interactions))
	seen := make(map[string]bool, len(interactions))
	for _, interaction := range interactions {
		if !seen[interaction.ProductID] {
			seen[interaction.ProductID] = true
			ids = append(ids, interaction.ProductID)
		}
	}
	if len(ids) == 0 {
		return map[string]models.Product{}, nil
	}

	products, err := e.store.FindProducts(ctx, store.ProductFilter{IDsIn: ids})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, nil
}

func topCategories(interactions []models.Interaction, products map[string]models.Product) []CategoryCount {
	counts := make(map[string]int)
	for _, interaction := range interactions {
		if product, ok := products[interaction.ProductID]; ok {
			counts[product.Category]++
		}
	}

	categories := make([]CategoryCount, 0, len(counts))
	for category, count := range counts {
		categories = append(categories, CategoryCount{Category: category, Count: count})
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Count != categories[j].Count {
			return categories[i].Count > categories[j].Count
		}
		return categories[i].Category < categories[j].Category
	})
	if len(categories) > topCategoryCount {
		categories = categories[:topCategoryCount]
	}
	return categories
}
