// internal/recommendation/fakes_test.go
package recommendation

import (
	"context"
	"errors"
	"sort"
	"time"

	"shop-recommender/internal/cache"
	"shop-recommender/internal/models"
	"shop-recommender/internal/store"
)

// ==========================
// Test Helper Functions
// ==========================

// fakeStore is an in-memory store.Store that applies the same filter
// semantics as the real backends.
type fakeStore struct {
	interactions []models.Interaction
	products     []models.Product
	counts       []models.ProductInteractionCount

	failInteractions bool
	failProducts     bool
	failCounts       bool
}

var errStoreDown = errors.New("store unavailable")

func (f *fakeStore) FindInteractions(_ context.Context, filter store.InteractionFilter) ([]models.Interaction, error) {
	if f.failInteractions {
		return nil, errStoreDown
	}

	userIn := toSet(filter.UserIDIn)
	productIn := toSet(filter.ProductIDIn)

	var out []models.Interaction
	for _, i := range f.interactions {
		if filter.UserID != "" && i.UserID != filter.UserID {
			continue
		}
		if filter.ExcludeUserID != "" && i.UserID == filter.ExcludeUserID {
			continue
		}
		if len(userIn) > 0 && !userIn[i.UserID] {
			continue
		}
		if len(productIn) > 0 && !productIn[i.ProductID] {
			continue
		}
		if len(filter.Types) > 0 && !containsType(filter.Types, i.InteractionType) {
			continue
		}
		out = append(out, i)
	}

	if filter.OrderByTimestampDesc {
		sort.Slice(out, func(a, b int) bool { return out[a].Timestamp.After(out[b].Timestamp) })
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeStore) CountInteractionsGroupedByProduct(_ context.Context, limit int) ([]models.ProductInteractionCount, error) {
	if f.failCounts {
		return nil, errStoreDown
	}
	counts := f.counts
	if limit > 0 && len(counts) > limit {
		counts = counts[:limit]
	}
	return counts, nil
}

func (f *fakeStore) FindProducts(_ context.Context, filter store.ProductFilter) ([]models.Product, error) {
	if f.failProducts {
		return nil, errStoreDown
	}

	idsIn := toSet(filter.IDsIn)
	excluded := toSet(filter.ExcludeIDsIn)

	var out []models.Product
	for _, p := range f.products {
		if len(idsIn) > 0 && !idsIn[p.ID] {
			continue
		}
		if excluded[p.ID] {
			continue
		}
		out = append(out, p)
	}

	if filter.OrderByCreatedAtDesc {
		sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeStore) FindProductByID(_ context.Context, id string) (*models.Product, error) {
	if f.failProducts {
		return nil, errStoreDown
	}
	for _, p := range f.products {
		if p.ID == id {
			product := p
			return &product, nil
		}
	}
	return nil, nil
}

func containsType(types []models.InteractionType, t models.InteractionType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// fakeCache is a plain map cache with no expiry, enough for scorer and
// engine tests.
type fakeCache struct {
	entries map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]string)}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, bool) {
	value, ok := c.entries[key]
	return value, ok
}

func (c *fakeCache) Set(_ context.Context, key, value string, _ time.Duration) {
	c.entries[key] = value
}

func (c *fakeCache) Delete(_ context.Context, key string) {
	delete(c.entries, key)
}

func (c *fakeCache) DeletePattern(_ context.Context, _ string) int {
	return 0
}

func (c *fakeCache) ClearUser(_ context.Context, _ string) {
	c.entries = make(map[string]string)
}

func (c *fakeCache) Status() cache.Status {
	return cache.Status{DistributedAvailable: false, LocalAvailable: true}
}

// ==========================
// Test Data Builders
// ==========================

func testProduct(id, category string, price float64, tags ...string) models.Product {
	return models.Product{
		ID:        id,
		Name:      "Product " + id,
		Category:  category,
		Price:     price,
		Tags:      tags,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testInteraction(userID, productID string, interactionType models.InteractionType, minutesAgo int) models.Interaction {
	return models.Interaction{
		UserID:          userID,
		ProductID:       productID,
		InteractionType: interactionType,
		Timestamp:       time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC).Add(-time.Duration(minutesAgo) * time.Minute),
	}
}
