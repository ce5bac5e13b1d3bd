package carts

import "time"

// Cart is the single mutable cart a user owns. It is destroyed (lines
// removed) the moment an order is materialized from it.
type Cart struct {
	ID        string
	UserID    string
	StoreID   *string
	Lines     []Line
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Line remembers the unit price the customer last saw; checkout charges the
// authoritative price, never this snapshot.
type Line struct {
	ID                string
	ProductID         string
	VariantID         *string
	Quantity          int
	UnitPriceSnapshot float64
}
