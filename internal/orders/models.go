package orders

import "time"

type Order struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	StoreID          string    `json:"store_id"`
	Status           Status    `json:"status"`
	PaymentMethod    string    `json:"payment_method"`
	DeliveryMethod   string    `json:"delivery_method"`
	DeliveryAddress  *string   `json:"delivery_address,omitempty"`
	ContactName      *string   `json:"contact_name,omitempty"`
	ContactPhone     *string   `json:"contact_phone,omitempty"`
	Subtotal         float64   `json:"subtotal"`
	Tax              float64   `json:"tax"`
	Total            float64   `json:"total"`
	IdempotencyToken *string   `json:"-"`
	Lines            []Line    `json:"lines"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Line is immutable once written. It records what the user was actually
// charged, independent of later catalog price changes.
type Line struct {
	ID        string  `json:"id"`
	OrderID   string  `json:"order_id"`
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

// DoseLine is the narrow projection used when accumulating a user's
// same-day purchases against a jurisdiction dose cap.
type DoseLine struct {
	ProductID string
	Quantity  int
}
