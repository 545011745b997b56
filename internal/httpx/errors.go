package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ordersys/go-order-fulfillment/internal/orders"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFromError maps the domain taxonomy onto HTTP codes. Callers can
// tell "retry is useless" (4xx) from "retry may help" (500).
func statusFromError(err error) int {
	var stockErr *orders.InsufficientStockError
	switch {
	case errors.Is(err, orders.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, orders.ErrBuyerNotFound),
		errors.Is(err, orders.ErrProductNotFound),
		errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.As(err, &stockErr),
		errors.Is(err, orders.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, orders.ErrInvalidQuantity):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFromError(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		// keep the cause in logs, not in the response
		msg = "internal error"
	}
	writeJSON(w, code, map[string]string{"error": msg})
}
