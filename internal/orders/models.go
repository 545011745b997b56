package orders

import "time"

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceCents  int       `json:"price_cents"`
	Stock       int       `json:"stock"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Order struct {
	ID string `json:"id"`
	// BuyerID is empty when the owning account has been deleted
	// (user_id set NULL by the FK policy).
	BuyerID    string      `json:"buyer_id,omitempty"`
	Status     Status      `json:"status"`
	TotalCents int         `json:"total_cents"`
	Items      []OrderItem `json:"items"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

type OrderItem struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	// LineTotalCents is a price snapshot: product price * qty at creation
	// time, unaffected by later catalog changes.
	LineTotalCents int `json:"line_total_cents"`
}

type ItemInput struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}
