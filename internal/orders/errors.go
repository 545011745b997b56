package orders

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrBuyerNotFound     = errors.New("buyer not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// InsufficientStockError names the offending product so callers can tell
// which line of the request cannot be fulfilled.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}
