package catalog

import "time"

type Product struct {
	ID                string
	StoreID           *string
	Name              string
	UnitPrice         float64
	DoseMgPerUnit     *float64
	ActivePctByWeight *float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Variant struct {
	ID        string
	ProductID string
	Name      string
	UnitPrice *float64 // nil means the variant sells at the product price
	CreatedAt time.Time
}

// Store is a retail location; its jurisdiction code selects the compliance
// rule set applied at checkout.
type Store struct {
	ID               string
	Name             string
	JurisdictionCode string
	CreatedAt        time.Time
}

// DoseFact carries what is needed to turn a line quantity into milligrams of
// active ingredient: an explicit per-unit dose, or a percentage by weight on
// a 1 g unit-mass basis.
type DoseFact struct {
	MgPerUnit   *float64
	PctByWeight *float64
}
