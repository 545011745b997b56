package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ordersys/go-order-fulfillment/internal/orders"
	"github.com/ordersys/go-order-fulfillment/internal/redisx"
)

// The buyer identity arrives pre-authenticated in this header; token
// validation is the auth service's job.
const headerUserID = "X-User-Id"

type OrderService interface {
	Create(ctx context.Context, buyerID string, items []orders.ItemInput) (orders.Order, error)
	Get(ctx context.Context, orderID string) (orders.Order, error)
	List(ctx context.Context) ([]orders.Order, error)
	Transition(ctx context.Context, orderID string, to orders.Status) error
}

type Catalog interface {
	ListProducts(ctx context.Context) ([]orders.Product, error)
}

type OrdersHandler struct {
	Service OrderService
	Catalog Catalog
	Redis   *redis.Client
	Logger  *zap.Logger
}

type CreateOrderReq struct {
	Items []orders.ItemInput `json:"items"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Patch("/orders/{id}/status", h.updateOrderStatus)
	r.Get("/products", h.listProducts)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order needs at least one item"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	buyerID := r.Header.Get(headerUserID)
	order, err := h.Service.Create(ctx, buyerID, req.Items)
	if err != nil {
		if statusFromError(err) == http.StatusInternalServerError {
			h.Logger.Error("create order failed", zap.Error(err))
		}
		writeError(w, err)
		return
	}

	h.cacheStatus(ctx, order.ID, order.Status)
	writeJSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	order, err := h.Service.Get(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

// getOrderStatus serves the hot polling path from the Redis cache, falling
// back to the store on a miss.
func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	order, err := h.Service.Get(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, order.ID, order.Status)
	writeJSON(w, http.StatusOK, map[string]any{"status": order.Status})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Service.List(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

type updateStatusReq struct {
	Status string `json:"status"`
}

// updateOrderStatus is the manual path to DELIVERED and CANCELLED, which
// the automatic pipeline never produces.
func (h *OrdersHandler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	to, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Service.Transition(ctx, orderID, to); err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, orderID, to)
	writeJSON(w, http.StatusOK, map[string]any{"status": to})
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.ListProducts(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": ps})
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, orderID string, st orders.Status) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	body, _ := json.Marshal(map[string]any{"status": st})
	if err := h.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err(); err != nil {
		h.Logger.Warn("status cache set failed", zap.String("order_id", orderID), zap.Error(err))
	}
}
