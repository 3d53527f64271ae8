// internal/models/interaction.go
package models

import "time"

// InteractionType enumerates the recorded interaction kinds.
type InteractionType string

const (
	InteractionView     InteractionType = "view"
	InteractionClick    InteractionType = "click"
	InteractionLike     InteractionType = "like"
	InteractionPurchase InteractionType = "purchase"
)

// Interaction is a single user-product interaction record. Records are
// immutable once created; multiple records per (user, product) pair are
// expected, e.g. repeated views.
type Interaction struct {
	UserID          string          `json:"userId"`
	ProductID       string          `json:"productId"`
	InteractionType InteractionType `json:"interactionType"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Weight returns the preference weight of the interaction type.
// Unknown types count as a view.
func (t InteractionType) Weight() float64 {
	switch t {
	case InteractionPurchase:
		return 5
	case InteractionLike:
		return 3
	case InteractionClick:
		return 2
	default:
		return 1
	}
}

// Strong reports whether the interaction type excludes the product from
// future recommendations. Views stay recommendable so browsed-but-unacted
// items can resurface.
func (t InteractionType) Strong() bool {
	switch t {
	case InteractionClick, InteractionLike, InteractionPurchase:
		return true
	default:
		return false
	}
}

// StrongInteractionTypes lists the types Strong reports true for, in query
// filter form.
func StrongInteractionTypes() []InteractionType {
	return []InteractionType{InteractionClick, InteractionLike, InteractionPurchase}
}
