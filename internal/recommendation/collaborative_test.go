// internal/recommendation/collaborative_test.go
package recommendation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-recommender/internal/common/logger"
	"shop-recommender/internal/models"
)

func newCollabScorer(st *fakeStore) *CollaborativeScorer {
	return NewCollaborativeScorer(st, logger.NewNoOpLogger())
}

func TestCollaborative_EmptyHistoryReturnsEmpty(t *testing.T) {
	scorer := newCollabScorer(&fakeStore{})

	scored := scorer.Recommend(context.Background(), "u1", 10)

	assert.Empty(t, scored)
}

func TestCollaborative_ScoresNeighborProducts(t *testing.T) {
	st := &fakeStore{
		interactions: []models.Interaction{
			testInteraction("u1", "p1", models.InteractionPurchase, 10),
			testInteraction("u1", "p2", models.InteractionPurchase, 20),

			testInteraction("u2", "p1", models.InteractionView, 10),
			testInteraction("u2", "p3", models.InteractionLike, 30),
			testInteraction("u2", "p4", models.InteractionView, 40),
		},
	}
	scorer := newCollabScorer(st)

	scored := scorer.Recommend(context.Background(), "u1", 10)

	// u2's overlap with u1 is p1 out of {p1,p2}, Jaccard 0.5. p1/p2 are
	// excluded by u1's purchases; p3 scores 0.5*3*100=150 and p4
	// 0.5*1*100=50.
	require.Len(t, scored, 2)
	assert.Equal(t, ScoredProduct{ProductID: "p3", Score: 150}, scored[0])
	assert.Equal(t, ScoredProduct{ProductID: "p4", Score: 50}, scored[1])
}

func TestCollaborative_NeighborsBelowThresholdIgnored(t *testing.T) {
	interactions := []models.Interaction{
		testInteraction("u2", "p1", models.InteractionView, 10),
		testInteraction("u2", "p99", models.InteractionLike, 15),
	}
	// u1 has 20 products and shares only p1 with u2, so Jaccard is
	// 1/20 = 0.05, which does not clear the strictly-greater threshold.
	for i := 0; i < 20; i++ {
		interactions = append(interactions,
			testInteraction("u1", fmt.Sprintf("p%d", i+1), models.InteractionView, 20+i))
	}
	scorer := newCollabScorer(&fakeStore{interactions: interactions})

	scored := scorer.Recommend(context.Background(), "u1", 10)

	assert.Empty(t, scored)
}

func TestCollaborative_MultipleNeighborsAccumulate(t *testing.T) {
	st := &fakeStore{
		interactions: []models.Interaction{
			testInteraction("u1", "p1", models.InteractionPurchase, 10),

			testInteraction("u2", "p1", models.InteractionView, 10),
			testInteraction("u2", "p9", models.InteractionView, 20),

			testInteraction("u3", "p1", models.InteractionView, 10),
			testInteraction("u3", "p9", models.InteractionView, 20),
		},
	}
	scorer := newCollabScorer(st)

	scored := scorer.Recommend(context.Background(), "u1", 10)

	// Both neighbors cover u1's single product, Jaccard 1.0 each. p1 is
	// excluded by u1's purchase; both neighbors viewed p9, so their
	// contributions add: 100 + 100 = 200.
	require.Len(t, scored, 1)
	assert.Equal(t, ScoredProduct{ProductID: "p9", Score: 200}, scored[0])
}

func TestCollaborative_StoreFailureReturnsEmpty(t *testing.T) {
	scorer := newCollabScorer(&fakeStore{failInteractions: true})

	assert.Empty(t, scorer.Recommend(context.Background(), "u1", 10))
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []string
		expected float64
	}{
		{"identical sets", []string{"p1", "p2"}, []string{"p1", "p2"}, 1.0},
		{"disjoint sets", []string{"p1"}, []string{"p2"}, 0.0},
		{"partial overlap", []string{"p1", "p2"}, []string{"p2", "p3", "p4"}, 0.25},
		{"two shared of six distinct", []string{"p1", "p2", "p3", "p4"}, []string{"p3", "p4", "p5", "p6"}, 1.0 / 3.0},
		{"both empty", nil, nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := toSet(tt.a)
			b := toSet(tt.b)
			assert.InDelta(t, tt.expected, jaccard(a, b), 0.001)
			assert.InDelta(t, jaccard(a, b), jaccard(b, a), 0.001, "jaccard must be symmetric")
		})
	}
}
