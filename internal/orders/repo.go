package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrTokenConflict     = errors.New("idempotency token already used")
	ErrIllegalTransition = errors.New("illegal status transition")
)

const uniqueViolation = "23505"

type Repo struct {
	DB *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{DB: db}
}

const orderColumns = `id, user_id, store_id, status, payment_method, delivery_method,
	delivery_address, contact_name, contact_phone,
	subtotal, tax, total, idempotency_token, created_at, updated_at`

func scanOrder(row pgx.Row, o *Order) error {
	return row.Scan(
		&o.ID, &o.UserID, &o.StoreID, &o.Status, &o.PaymentMethod, &o.DeliveryMethod,
		&o.DeliveryAddress, &o.ContactName, &o.ContactPhone,
		&o.Subtotal, &o.Tax, &o.Total, &o.IdempotencyToken, &o.CreatedAt, &o.UpdatedAt,
	)
}

// GetByID loads one order with its lines, or ErrNotFound.
func (r *Repo) GetByID(ctx context.Context, id string) (*Order, error) {
	var o Order
	err := scanOrder(r.DB.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id), &o)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, variant_id, quantity, unit_price, line_total
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.VariantID,
			&l.Quantity, &l.UnitPrice, &l.LineTotal); err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

// FindByToken returns the order previously materialized for this
// (user, token) pair, or ErrNotFound when no attempt has landed yet.
func (r *Repo) FindByToken(ctx context.Context, userID, token string) (*Order, error) {
	var id string
	err := r.DB.QueryRow(ctx,
		`SELECT id FROM orders WHERE user_id = $1 AND idempotency_token = $2`,
		userID, token).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// CreateWithLines persists the order header, all of its lines, and the
// removal of the source cart's lines in one transaction, so a crash can
// never leave an order created with the cart still full. A unique violation
// on (user_id, idempotency_token) maps to ErrTokenConflict so the caller can
// fetch the surviving order instead of double-charging a retried request.
func (r *Repo) CreateWithLines(ctx context.Context, o *Order, cartID string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, store_id, status, payment_method, delivery_method,
			delivery_address, contact_name, contact_phone,
			subtotal, tax, total, idempotency_token, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)`,
		o.ID, o.UserID, o.StoreID, o.Status, o.PaymentMethod, o.DeliveryMethod,
		o.DeliveryAddress, o.ContactName, o.ContactPhone,
		o.Subtotal, o.Tax, o.Total, o.IdempotencyToken, o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrTokenConflict
		}
		return err
	}

	for i := range o.Lines {
		l := &o.Lines[i]
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		l.OrderID = o.ID
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, variant_id, quantity, unit_price, line_total)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			l.ID, l.OrderID, l.ProductID, l.VariantID, l.Quantity, l.UnitPrice, l.LineTotal); err != nil {
			return err
		}
	}

	if cartID != "" {
		if _, err := tx.Exec(ctx,
			`DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// SameDayLines returns the (product, quantity) pairs from the user's orders
// created in [from, to) whose status is in the counted set.
func (r *Repo) SameDayLines(ctx context.Context, userID string, from, to time.Time, statuses []Status) ([]DoseLine, error) {
	counted := make([]string, len(statuses))
	for i, s := range statuses {
		counted[i] = string(s)
	}

	rows, err := r.DB.Query(ctx, `
		SELECT oi.product_id, oi.quantity
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.user_id = $1
		  AND o.created_at >= $2 AND o.created_at < $3
		  AND o.status = ANY($4)`,
		userID, from, to, counted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DoseLine
	for rows.Next() {
		var dl DoseLine
		if err := rows.Scan(&dl.ProductID, &dl.Quantity); err != nil {
			return nil, err
		}
		out = append(out, dl)
	}
	return out, rows.Err()
}

// Cancel moves the order to CANCELLED if the caller owns it and the current
// status still allows cancellation. The row is locked for the duration of
// the check so a concurrent fulfillment update cannot slip in between.
func (r *Repo) Cancel(ctx context.Context, orderID, userID string) (*Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var current Status
	err = tx.QueryRow(ctx,
		`SELECT status FROM orders WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		orderID, userID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !CanTransition(current, StatusCancelled) {
		return nil, ErrIllegalTransition
	}

	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		orderID, StatusCancelled); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, orderID)
}
