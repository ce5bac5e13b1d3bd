package carts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("cart not found")

type Repo struct{ DB *pgxpool.Pool }

// ActiveCart loads the user's cart with its lines. A user without a cart row
// gets ErrNotFound; an existing cart may legitimately have zero lines.
func (r *Repo) ActiveCart(ctx context.Context, userID string) (*Cart, error) {
	var c Cart
	err := r.DB.QueryRow(ctx,
		`SELECT id, user_id, store_id, created_at, updated_at FROM carts WHERE user_id=$1`, userID).
		Scan(&c.ID, &c.UserID, &c.StoreID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, product_id, variant_id, quantity, unit_price_snapshot
		FROM cart_items WHERE cart_id=$1 ORDER BY created_at`, c.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.ProductID, &l.VariantID, &l.Quantity, &l.UnitPriceSnapshot); err != nil {
			return nil, err
		}
		c.Lines = append(c.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &c, nil
}
