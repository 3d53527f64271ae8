// internal/store/store.go

// Package store provides read-only access to interaction records and product
// metadata. Writes belong to the surrounding CRUD surface, not the engine.
package store

import (
	"context"

	"shop-recommender/internal/models"
)

// InteractionFilter narrows FindInteractions queries. Zero values mean
// "no constraint".
type InteractionFilter struct {
	UserID               string
	ExcludeUserID        string
	UserIDIn             []string
	ProductIDIn          []string
	Types                []models.InteractionType
	Limit                int
	OrderByTimestampDesc bool
}

// ProductFilter narrows FindProducts queries.
type ProductFilter struct {
	IDsIn                []string
	ExcludeIDsIn         []string
	Limit                int
	OrderByCreatedAtDesc bool
}

// Store is the read-only contract the engine consumes. Implementations must
// be safe for concurrent use.
type Store interface {
	FindInteractions(ctx context.Context, filter InteractionFilter) ([]models.Interaction, error)

	// CountInteractionsGroupedByProduct returns up to limit products ordered
	// by total interaction count descending; ties break by most recent
	// product creation.
	CountInteractionsGroupedByProduct(ctx context.Context, limit int) ([]models.ProductInteractionCount, error)

	FindProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error)

	// FindProductByID returns (nil, nil) when the product does not exist.
	FindProductByID(ctx context.Context, id string) (*models.Product, error)
}
