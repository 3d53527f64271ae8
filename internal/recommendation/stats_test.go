// internal/recommendation/stats_test.go
package recommendation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-recommender/internal/models"
)

func TestEngine_GetUserStats(t *testing.T) {
	st := &fakeStore{
		products: []models.Product{
			testProduct("p1", "Electronics", 100),
			testProduct("p2", "Electronics", 120),
			testProduct("p3", "Furniture", 300),
		},
		interactions: []models.Interaction{
			testInteraction("u1", "p1", models.InteractionPurchase, 10),
			testInteraction("u1", "p1", models.InteractionView, 20),
			testInteraction("u1", "p2", models.InteractionLike, 30),
			testInteraction("u1", "p2", models.InteractionClick, 40),
			testInteraction("u1", "p3", models.InteractionView, 50),
		},
	}
	engine, c := newTestEngine(st)

	stats, err := engine.GetUserStats(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalInteractions)
	assert.Equal(t, StatsBreakdown{Views: 2, Clicks: 1, Likes: 1, Purchases: 1}, stats.Breakdown)

	require.Len(t, stats.TopCategories, 2)
	assert.Equal(t, CategoryCount{Category: "Electronics", Count: 4}, stats.TopCategories[0])
	assert.Equal(t, CategoryCount{Category: "Furniture", Count: 1}, stats.TopCategories[1])

	require.Len(t, stats.RecentActivity, 5)
	assert.Equal(t, "Product p1", stats.RecentActivity[0].ProductName)
	assert.Equal(t, "purchase", stats.RecentActivity[0].Type)

	_, cached := c.entries[statsCacheKey("u1")]
	assert.True(t, cached)
}

func TestEngine_GetUserStats_EmptyHistory(t *testing.T) {
	engine, _ := newTestEngine(&fakeStore{})

	stats, err := engine.GetUserStats(context.Background(), "nobody")

	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalInteractions)
	assert.Empty(t, stats.TopCategories)
	assert.Empty(t, stats.RecentActivity)
}

func TestEngine_GetUserStats_StoreErrorSurfaces(t *testing.T) {
	engine, _ := newTestEngine(&fakeStore{failInteractions: true})

	_, err := engine.GetUserStats(context.Background(), "u1")

	assert.Error(t, err)
}
