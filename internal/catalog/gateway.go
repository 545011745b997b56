// Package catalog is a thin facade over the product catalog. It exposes
// lookups and the atomic stock decrement; catalog CRUD lives elsewhere.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ordersys/go-order-fulfillment/internal/orders"
	"github.com/ordersys/go-order-fulfillment/internal/postgres"
)

type Gateway struct{ DB *pgxpool.Pool }

func (g *Gateway) FindByID(ctx context.Context, id string) (orders.Product, error) {
	q := postgres.FromContext(ctx, g.DB)

	var p orders.Product
	err := q.QueryRow(ctx, `
		SELECT id, name, description, price_cents, stock, created_at, updated_at
		FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, fmt.Errorf("%w: %s", orders.ErrProductNotFound, id)
	}
	if err != nil {
		return orders.Product{}, fmt.Errorf("find product: %w", err)
	}
	return p, nil
}

// DecrementStock is the reservation primitive. The stock check and the
// decrement are one conditional UPDATE, so Postgres row locking serializes
// concurrent reservations of the same product: two orders can never both
// succeed when their combined qty exceeds the available stock.
func (g *Gateway) DecrementStock(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: product %s qty %d", orders.ErrInvalidQuantity, id, qty)
	}
	q := postgres.FromContext(ctx, g.DB)

	ct, err := q.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`, id, qty)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	// Either the product vanished or the stock ran short; read back to tell.
	var available int
	err = q.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", orders.ErrProductNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("read stock: %w", err)
	}
	return &orders.InsufficientStockError{ProductID: id, Requested: qty, Available: available}
}

func (g *Gateway) ListProducts(ctx context.Context) ([]orders.Product, error) {
	q := postgres.FromContext(ctx, g.DB)

	rows, err := q.Query(ctx, `
		SELECT id, name, description, price_cents, stock, created_at, updated_at
		FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []orders.Product
	for rows.Next() {
		var p orders.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
