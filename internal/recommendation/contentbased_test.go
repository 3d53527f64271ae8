// internal/recommendation/contentbased_test.go
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

func newContentScorer(st *fakeStore) (*ContentBasedScorer, *fakeCache) {
	c := newFakeCache()
	return NewContentBasedScorer(st, c, logger.NewNoOpLogger(), 10*time.Minute), c
}

func TestContentBased_ScoresByProfileSimilarity(t *testing.T) {
	st := &fakeStore{
		products: []models.Product{
			testProduct("p1", "Electronics", 100, "wireless", "audio"),
			testProduct("p2", "Electronics", 110, "wireless"),
			testProduct("p3", "Furniture", 500, "wood"),
		},
		interactions: []models.Interaction{
			testInteraction("u1", "p1", models.InteractionPurchase, 5),
		},
	}
	scorer, _ := newContentScorer(st)

	scored := scorer.Recommend(context.Background(), "u1", 10)

	// Purchase weight 5 yields category 5*0.4=2, tag 5*0.4=2, price
	// (100-10/2)*0.2=19, total 23 for p2. p1 is excluded by the purchase
	// and p3 scores zero.
	require.Len(t, scored, 1)
	assert.Equal(t, "p2", scored[0].ProductID)
	assert.InDelta(t, 23.0, scored[0].Score, 0.001)
}

func TestContentBased_ViewsDoNotExcludeProducts(t *testing.T) {
	st := &fakeStore{
		products: []models.Product{
			testProduct("p1", "Electronics", 100, "wireless", "audio"),
		},
		interactions: []models.Interaction{
			testInteraction("u1", "p1", models.InteractionView, 5),
		},
	}
	scorer, _ := newContentScorer(st)

	scored := scorer.Recommend(context.Background(), "u1", 10)

	// A viewed product stays recommendable: category 1*0.4 + tags 2*0.4 +
	// price 100*0.2 = 21.2
	require.Len(t, scored, 1)
	assert.Equal(t, "p1", scored[0].ProductID)
	assert.InDelta(t, 21.2, scored[0].Score, 0.001)
}

func TestContentBased_OldStrongInteractionsStillExclude(t *testing.T) {
	// Fifty fresh views push the old purchase out of the recent window the
	// profile is built from; the purchase must still exclude p1.
	interactions := []models.Interaction{
		testInteraction("u1", "p1", models.InteractionPurchase, 10000),
	}
	for i := 0; i < recentInteractionCap; i++ {
		interactions = append(interactions,
			testInteraction("u1", "p2", models.InteractionView, i+1))
	}
	st := &fakeStore{
		products: []models.Product{
			testProduct("p1", "Electronics", 100, "wireless"),
			testProduct("p2", "Electronics", 100, "wireless"),
		},
		interactions: interactions,
	}
	scorer, _ := newContentScorer(st)

	scored := scorer.Recommend(context.Background(), "u1", 10)

	require.Len(t, scored, 1)
	assert.Equal(t, "p2", scored[0].ProductID)
}

func TestContentBased_PreferredCategoryOutranksOthers(t *testing.T) {
	st := &fakeStore{
		products: []models.Product{
			testProduct("e1", "Electronics", 100, "wireless"),
			testProduct("e2", "Electronics", 120, "wireless"),
			testProduct("f1", "Furniture", 110, "wood"),
		},
		interactions: []models.Interaction{
			testInteraction("u1", "e1", models.InteractionLike, 10),
			testInteraction("u1", "e1", models.InteractionView, 20),
		},
	}
	scorer, _ := newContentScorer(st)

	scored := scorer.Recommend(context.Background(), "u1", 10)

	require.NotEmpty(t, scored)
	assert.Equal(t, "e2", scored[0].ProductID, "remaining Electronics product should rank first")
	for _, sp := range scored {
		if sp.ProductID == "f1" {
			assert.Less(t, sp.Score, scored[0].Score)
		}
	}
}

func TestContentBased_ColdStartFallsBackToPopularity(t *testing.T) {
	st := &fakeStore{
		products: []models.Product{
			testProduct("p1", "Electronics", 100),
			testProduct("p2", "Electronics", 100),
		},
		counts: []models.ProductInteractionCount{
			{ProductID: "p2", Count: 40},
			{ProductID: "p1", Count: 12},
		},
	}
	scorer, _ := newContentScorer(st)

	scored := scorer.Recommend(context.Background(), "new-user", 10)

	require.Len(t, scored, 2)
	assert.Equal(t, ScoredProduct{ProductID: "p2", Score: 100}, scored[0])
	assert.Equal(t, ScoredProduct{ProductID: "p1", Score: 95}, scored[1])
}

func TestContentBased_ColdStartEmptyCatalogHistoryUsesNewest(t *testing.T) {
	newer := testProduct("new", "Electronics", 100)
	newer.CreatedAt = newer.CreatedAt.Add(time.Hour)
	st := &fakeStore{
		products: []models.Product{testProduct("old", "Electronics", 100), newer},
	}
	scorer, _ := newContentScorer(st)

	scored := scorer.Recommend(context.Background(), "new-user", 10)

	require.Len(t, scored, 2)
	assert.Equal(t, "new", scored[0].ProductID)
	assert.Equal(t, float64(100), scored[0].Score)
	assert.Equal(t, float64(95), scored[1].Score)
}

func TestContentBased_ProfileIsCached(t *testing.T) {
	st := &fakeStore{
		products: []models.Product{
			testProduct("p1", "Electronics", 100, "wireless"),
			testProduct("p2", "Electronics", 100, "wireless"),
		},
		interactions: []models.Interaction{
			testInteraction("u1", "p1", models.InteractionClick, 5),
		},
	}
	scorer, c := newContentScorer(st)

	scorer.Recommend(context.Background(), "u1", 10)

	_, ok := c.entries[profileCacheKey("u1")]
	assert.True(t, ok, "profile should be cached after the first request")
}

func TestContentBased_StoreFailureReturnsEmpty(t *testing.T) {
	scorer, _ := newContentScorer(&fakeStore{failInteractions: true})

	scored := scorer.Recommend(context.Background(), "u1", 10)

	assert.Empty(t, scored)
}
