package orders

import (
	"strings"
	"time"
)

// View is the client-facing projection of a materialized order. Statuses go
// out lower-cased and line items carry display names resolved at read time.
type View struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	StoreName      string     `json:"store_name"`
	PaymentMethod  string     `json:"payment_method"`
	DeliveryMethod string     `json:"delivery_method"`
	Subtotal       float64    `json:"subtotal"`
	Tax            float64    `json:"tax"`
	Total          float64    `json:"total"`
	Lines          []LineView `json:"lines"`
	CreatedAt      time.Time  `json:"created_at"`
}

type LineView struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

const fallbackLineName = "Item"

// BuildView renders an order for clients. Line names prefer the variant
// name, then the product name, then a placeholder for items whose catalog
// entry has since disappeared.
func BuildView(o *Order, storeName string, productNames, variantNames map[string]string) View {
	v := View{
		ID:             o.ID,
		Status:         strings.ToLower(string(o.Status)),
		StoreName:      storeName,
		PaymentMethod:  o.PaymentMethod,
		DeliveryMethod: o.DeliveryMethod,
		Subtotal:       o.Subtotal,
		Tax:            o.Tax,
		Total:          o.Total,
		Lines:          make([]LineView, 0, len(o.Lines)),
		CreatedAt:      o.CreatedAt,
	}
	for _, l := range o.Lines {
		name := ""
		if l.VariantID != nil {
			name = variantNames[*l.VariantID]
		}
		if name == "" {
			name = productNames[l.ProductID]
		}
		if name == "" {
			name = fallbackLineName
		}
		v.Lines = append(v.Lines, LineView{
			Name:      name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.LineTotal,
		})
	}
	return v
}
