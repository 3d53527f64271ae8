// internal/recommendation/hybrid_test.go
package recommendation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-recommender/internal/common/logger"
	"shop-recommender/internal/models"
)

func newTestEngine(st *fakeStore) (*Engine, *fakeCache) {
	c := newFakeCache()
	log := logger.NewNoOpLogger()
	engine := NewEngine(
		NewContentBasedScorer(st, c, log, 10*time.Minute),
		NewCollaborativeScorer(st, log),
		st, c, nil, log,
		10, 30*time.Minute,
	)
	return engine, c
}

func TestBlend_WeightsAndMethodTags(t *testing.T) {
	content := []ScoredProduct{
		{ProductID: "only-content", Score: 50},
		{ProductID: "shared", Score: 80},
	}
	collab := []ScoredProduct{
		{ProductID: "shared", Score: 100},
		{ProductID: "only-collab", Score: 40},
	}

	blended := blend(content, collab)

	byID := make(map[string]blendedProduct, len(blended))
	for _, bp := range blended {
		byID[bp.ProductID] = bp
	}

	require.Len(t, blended, 3)
	assert.InDelta(t, 30.0, byID["only-content"].Score, 0.001) // 50*0.6
	assert.Equal(t, MethodContentBased, byID["only-content"].Method)
	assert.InDelta(t, 88.0, byID["shared"].Score, 0.001) // 80*0.6 + 100*0.4
	assert.Equal(t, MethodHybrid, byID["shared"].Method)
	assert.InDelta(t, 16.0, byID["only-collab"].Score, 0.001) // 40*0.4
	assert.Equal(t, MethodCollaborative, byID["only-collab"].Method)
}

func TestRank_CapsOrdersAndTruncates(t *testing.T) {
	blended := []blendedProduct{
		{ScoredProduct: ScoredProduct{ProductID: "huge", Score: 260}, Method: MethodHybrid},
		{ScoredProduct: ScoredProduct{ProductID: "b", Score: 40}, Method: MethodContentBased},
		{ScoredProduct: ScoredProduct{ProductID: "a", Score: 40}, Method: MethodCollaborative},
		{ScoredProduct: ScoredProduct{ProductID: "low", Score: 5}, Method: MethodPopular},
	}

	ranked := rank(blended, 3)

	require.Len(t, ranked, 3)
	assert.Equal(t, "huge", ranked[0].ProductID)
	assert.Equal(t, float64(100), ranked[0].Score, "scores are capped at 100")
	assert.Equal(t, "a", ranked[1].ProductID, "ties order by product id")
	assert.Equal(t, "b", ranked[2].ProductID)
}

func TestRank_RawScoreOrderSurvivesCapping(t *testing.T) {
	blended := []blendedProduct{
		{ScoredProduct: ScoredProduct{ProductID: "z-strong", Score: 250}, Method: MethodHybrid},
		{ScoredProduct: ScoredProduct{ProductID: "a-weaker", Score: 120}, Method: MethodCollaborative},
	}

	ranked := rank(blended, 2)

	// Both scores end up capped at 100, but the ordering was decided on
	// the raw scores, not on the capped tie.
	require.Len(t, ranked, 2)
	assert.Equal(t, "z-strong", ranked[0].ProductID)
	assert.Equal(t, "a-weaker", ranked[1].ProductID)
	assert.Equal(t, float64(100), ranked[0].Score)
	assert.Equal(t, float64(100), ranked[1].Score)
}

func TestEngine_BlendsBackfillsAndHydrates(t *testing.T) {
	st := &fakeStore{
		products: []models.Product{
			testProduct("p1", "Electronics", 100, "wireless", "audio"),
			testProduct("p2", "Electronics", 110, "wireless"),
			testProduct("p3", "Furniture", 500, "wood"),
		},
		interactions: []models.Interaction{
			testInteraction("u1", "p1", models.InteractionPurchase, 5),
		},
		counts: []models.ProductInteractionCount{
			{ProductID: "p2", Count: 5},
			{ProductID: "p3", Count: 3},
		},
	}
	engine, c := newTestEngine(st)

	recs := engine.GetRecommendations(context.Background(), "u1", 10)

	// Content-based yields p2 at 23, blended to 13.8. Backfill adds p3 at
	// (100-3)*0.3 = 29.1 with the popular tag, which outranks p2.
	require.Len(t, recs, 2)
	assert.Equal(t, "p3", recs[0].ProductID)
	assert.Equal(t, MethodPopular, recs[0].Method)
	assert.InDelta(t, 29.1, recs[0].Score, 0.001)
	assert.Equal(t, "Product p3", recs[0].Product.Name)

	assert.Equal(t, "p2", recs[1].ProductID)
	assert.Equal(t, MethodContentBased, recs[1].Method)
	assert.InDelta(t, 13.8, recs[1].Score, 0.001)

	_, cached := c.entries[resultCacheKey("u1", 10)]
	assert.True(t, cached, "blended results should be cached")
}

func TestEngine_ServesCachedResultWithoutStore(t *testing.T) {
	st := &fakeStore{
		products: []models.Product{testProduct("p1", "Electronics", 100)},
		counts:   []models.ProductInteractionCount{{ProductID: "p1", Count: 9}},
	}
	engine, _ := newTestEngine(st)

	first := engine.GetRecommendations(context.Background(), "u1", 10)
	require.NotEmpty(t, first)

	// Even with the store down, the cached result is served.
	st.failInteractions = true
	st.failProducts = true
	st.failCounts = true

	second := engine.GetRecommendations(context.Background(), "u1", 10)
	assert.Equal(t, first, second)
}

func TestEngine_DropsProductsMissingFromCatalog(t *testing.T) {
	st := &fakeStore{
		products: []models.Product{testProduct("p1", "Electronics", 100)},
		counts: []models.ProductInteractionCount{
			{ProductID: "p1", Count: 9},
			{ProductID: "ghost", Count: 8},
		},
	}
	engine, _ := newTestEngine(st)

	recs := engine.GetRecommendations(context.Background(), "u1", 10)

	require.Len(t, recs, 1)
	assert.Equal(t, "p1", recs[0].ProductID)
}

func TestEngine_FallbackServesNewestProducts(t *testing.T) {
	newer := testProduct("new", "Electronics", 100)
	newer.CreatedAt = newer.CreatedAt.Add(time.Hour)
	st := &fakeStore{
		products:         []models.Product{testProduct("old", "Furniture", 50), newer},
		failInteractions: true,
		failCounts:       true,
	}
	engine, c := newTestEngine(st)

	recs := engine.GetRecommendations(context.Background(), "u1", 2)

	require.Len(t, recs, 2)
	assert.Equal(t, "new", recs[0].ProductID)
	assert.Equal(t, float64(100), recs[0].Score)
	assert.Equal(t, MethodPopular, recs[0].Method)
	assert.Equal(t, float64(95), recs[1].Score)

	assert.Empty(t, c.entries, "fallback results must not be cached")
}

func TestEngine_RefreshClearsCacheFirst(t *testing.T) {
	st := &fakeStore{
		products: []models.Product{testProduct("p1", "Electronics", 100)},
		counts:   []models.ProductInteractionCount{{ProductID: "p1", Count: 9}},
	}
	engine, c := newTestEngine(st)

	c.entries["user:u1:profile"] = "stale"

	recs := engine.RefreshRecommendations(context.Background(), "u1", 10)

	require.NotEmpty(t, recs)
	_, stale := c.entries["user:u1:profile"]
	assert.False(t, stale, "refresh should drop stale entries")
	_, cached := c.entries[resultCacheKey("u1", 10)]
	assert.True(t, cached, "refresh should repopulate the result cache")
}

func TestEngine_DefaultLimitApplied(t *testing.T) {
	st := &fakeStore{
		products: []models.Product{testProduct("p1", "Electronics", 100)},
		counts:   []models.ProductInteractionCount{{ProductID: "p1", Count: 9}},
	}
	engine, c := newTestEngine(st)

	engine.GetRecommendations(context.Background(), "u1", 0)

	_, cached := c.entries[resultCacheKey("u1", 10)]
	assert.True(t, cached, "limit 0 should use the configured default")
}
