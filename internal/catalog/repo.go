package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrStoreNotFound = errors.New("store not found")

type Repo struct{ DB *pgxpool.Pool }

// ProductPrices batch-fetches current unit prices for the given product ids.
// Unknown ids are simply absent from the result.
func (r *Repo) ProductPrices(ctx context.Context, ids []string) (map[string]float64, error) {
	out := make(map[string]float64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.DB.Query(ctx, `SELECT id, unit_price FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var price float64
		if err := rows.Scan(&id, &price); err != nil {
			return nil, err
		}
		out[id] = price
	}
	return out, rows.Err()
}

// VariantPrices batch-fetches variant prices. A present key with a nil value
// is a variant that inherits its product's price.
func (r *Repo) VariantPrices(ctx context.Context, ids []string) (map[string]*float64, error) {
	out := make(map[string]*float64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.DB.Query(ctx, `SELECT id, unit_price FROM product_variants WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var price *float64
		if err := rows.Scan(&id, &price); err != nil {
			return nil, err
		}
		out[id] = price
	}
	return out, rows.Err()
}

// DoseFacts batch-fetches the active-ingredient dose attributes for products.
func (r *Repo) DoseFacts(ctx context.Context, ids []string) (map[string]DoseFact, error) {
	out := make(map[string]DoseFact, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.DB.Query(ctx,
		`SELECT id, dose_mg_per_unit, active_pct_by_weight FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var f DoseFact
		if err := rows.Scan(&id, &f.MgPerUnit, &f.PctByWeight); err != nil {
			return nil, err
		}
		out[id] = f
	}
	return out, rows.Err()
}

func (r *Repo) StoreByID(ctx context.Context, id string) (*Store, error) {
	var s Store
	err := r.DB.QueryRow(ctx,
		`SELECT id, name, jurisdiction_code, created_at FROM stores WHERE id=$1`, id).
		Scan(&s.ID, &s.Name, &s.JurisdictionCode, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStoreNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) ProductNames(ctx context.Context, ids []string) (map[string]string, error) {
	return r.names(ctx, `SELECT id, name FROM products WHERE id = ANY($1)`, ids)
}

func (r *Repo) VariantNames(ctx context.Context, ids []string) (map[string]string, error) {
	return r.names(ctx, `SELECT id, name FROM product_variants WHERE id = ANY($1)`, ids)
}

func (r *Repo) names(ctx context.Context, query string, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.DB.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}
