package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ordersys/go-order-fulfillment/internal/postgres"
)

// Repo persists orders and their items. Writes issued inside WithTx share
// one transaction; nothing outside it observes partial order state.
type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return postgres.WithTx(ctx, r.DB, fn)
}

func (r *Repo) InsertOrder(ctx context.Context, o *Order) error {
	q := postgres.FromContext(ctx, r.DB)
	err := q.QueryRow(ctx, `
		INSERT INTO orders(id, user_id, status, total_cents)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		o.ID, o.BuyerID, o.Status, o.TotalCents,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *Repo) InsertItems(ctx context.Context, items []OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	q := postgres.FromContext(ctx, r.DB)

	b := new(pgx.Batch)
	for pos, it := range items {
		b.Queue(`
			INSERT INTO order_items(id, order_id, product_id, qty, line_total_cents, line_no)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			it.ID, it.OrderID, it.ProductID, it.Qty, it.LineTotalCents, pos)
	}
	br := q.SendBatch(ctx, b)
	defer br.Close()
	for range items {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
	}
	return nil
}

func (r *Repo) UpdateTotal(ctx context.Context, orderID string, totalCents int) error {
	q := postgres.FromContext(ctx, r.DB)
	ct, err := q.Exec(ctx, `
		UPDATE orders SET total_cents = $2, updated_at = now() WHERE id = $1`,
		orderID, totalCents)
	if err != nil {
		return fmt.Errorf("update total: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// UpdateStatus sets the target status regardless of the current one, which
// keeps the fulfillment transitions idempotent under event redelivery.
func (r *Repo) UpdateStatus(ctx context.Context, orderID string, status Status) error {
	q := postgres.FromContext(ctx, r.DB)
	ct, err := q.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		orderID, status)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// GetOrderStatusForUpdate locks the order row until the ambient transaction
// ends, serializing competing admin transitions.
func (r *Repo) GetOrderStatusForUpdate(ctx context.Context, orderID string) (Status, error) {
	q := postgres.FromContext(ctx, r.DB)
	var s string
	err := q.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrOrderNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get status: %w", err)
	}
	return Status(s), nil
}

func (r *Repo) GetOrderStatus(ctx context.Context, orderID string) (Status, error) {
	q := postgres.FromContext(ctx, r.DB)
	var s string
	err := q.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrOrderNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get status: %w", err)
	}
	return Status(s), nil
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (Order, error) {
	q := postgres.FromContext(ctx, r.DB)

	var o Order
	var buyer *string
	err := q.QueryRow(ctx, `
		SELECT id, user_id, status, total_cents, created_at, updated_at
		FROM orders WHERE id = $1`, orderID,
	).Scan(&o.ID, &buyer, &o.Status, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	if buyer != nil {
		o.BuyerID = *buyer
	}

	items, err := r.itemsFor(ctx, q, orderID)
	if err != nil {
		return Order{}, err
	}
	o.Items = items
	return o, nil
}

func (r *Repo) ListOrders(ctx context.Context) ([]Order, error) {
	q := postgres.FromContext(ctx, r.DB)

	rows, err := q.Query(ctx, `
		SELECT id, user_id, status, total_cents, created_at, updated_at
		FROM orders ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		var buyer *string
		if err := rows.Scan(&o.ID, &buyer, &o.Status, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		if buyer != nil {
			o.BuyerID = *buyer
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		items, err := r.itemsFor(ctx, q, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

func (r *Repo) itemsFor(ctx context.Context, q postgres.Querier, orderID string) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, qty, line_total_cents
		FROM order_items WHERE order_id = $1 ORDER BY line_no`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Qty, &it.LineTotalCents); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
