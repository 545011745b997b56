// Package accounts is a thin facade over user storage; account management
// itself lives outside this service.
package accounts

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

func (g *Gateway) FindByID(ctx context.Context, id string) (orders.Account, error) {
	q := postgres.FromContext(ctx, g.DB)

	var a orders.Account
	err := q.QueryRow(ctx, `
		SELECT id, name, email, created_at FROM users WHERE id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.Email, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Account{}, orders.ErrBuyerNotFound
	}
	if err != nil {
		return orders.Account{}, fmt.Errorf("find account: %w", err)
	}
	return a, nil
}
