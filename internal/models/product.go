// internal/models/product.go
package models

import "time"

// Product is a catalog item. Read-only from the engine's perspective.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	Tags        []string  `json:"tags"`
	ImageURL    string    `json:"imageUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ProductInteractionCount pairs a product with its total interaction count,
// used for popularity ranking.
type ProductInteractionCount struct {
	ProductID string `json:"productId"`
	Count     int    `json:"count"`
}
