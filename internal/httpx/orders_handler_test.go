package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ordersys/go-order-fulfillment/internal/orders"
)

type fakeOrderService struct {
	orders map[string]orders.Order
}

func (f *fakeOrderService) Create(ctx context.Context, buyerID string, items []orders.ItemInput) (orders.Order, error) {
	if buyerID == "" {
		return orders.Order{}, orders.ErrUnauthorized
	}
	for _, it := range items {
		switch it.ProductID {
		case "missing":
			return orders.Order{}, fmt.Errorf("%w: %s", orders.ErrProductNotFound, it.ProductID)
		case "scarce":
			return orders.Order{}, &orders.InsufficientStockError{ProductID: it.ProductID, Requested: it.Qty, Available: 1}
		}
	}
	o := orders.Order{ID: "o1", BuyerID: buyerID, Status: orders.StatusPending, TotalCents: 200}
	return o, nil
}

func (f *fakeOrderService) Get(ctx context.Context, orderID string) (orders.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeOrderService) List(ctx context.Context) ([]orders.Order, error) {
	out := make([]orders.Order, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeOrderService) Transition(ctx context.Context, orderID string, to orders.Status) error {
	o, ok := f.orders[orderID]
	if !ok {
		return orders.ErrOrderNotFound
	}
	if !orders.CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", orders.ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	f.orders[orderID] = o
	return nil
}

type fakeCatalog struct{ products []orders.Product }

func (f *fakeCatalog) ListProducts(ctx context.Context) ([]orders.Product, error) {
	return f.products, nil
}

func newTestHandler(t *testing.T, svc *fakeOrderService) http.Handler {
	t.Helper()
	router := NewRouter()
	h := &OrdersHandler{
		Service: svc,
		Catalog: &fakeCatalog{products: []orders.Product{{ID: "p1", Name: "Widget", PriceCents: 100, Stock: 5}}},
		Logger:  zaptest.NewLogger(t),
	}
	h.Register(router)
	return router
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateOrderHandler(t *testing.T) {
	svc := &fakeOrderService{orders: map[string]orders.Order{}}
	h := newTestHandler(t, svc)
	withUser := map[string]string{headerUserID: "u1"}

	t.Run("created", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/orders", `{"items":[{"product_id":"p1","qty":2}]}`, withUser)
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp struct {
			Order orders.Order `json:"order"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "o1", resp.Order.ID)
		assert.Equal(t, orders.StatusPending, resp.Order.Status)
	})

	t.Run("missing user header", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/orders", `{"items":[{"product_id":"p1","qty":2}]}`, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid json", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/orders", `{`, withUser)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty items", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/orders", `{"items":[]}`, withUser)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown product", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/orders", `{"items":[{"product_id":"missing","qty":1}]}`, withUser)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("insufficient stock", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/orders", `{"items":[{"product_id":"scarce","qty":9}]}`, withUser)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "scarce")
	})
}

func TestGetOrderHandler(t *testing.T) {
	svc := &fakeOrderService{orders: map[string]orders.Order{
		"o1": {ID: "o1", BuyerID: "u1", Status: orders.StatusShipped, TotalCents: 200},
	}}
	h := newTestHandler(t, svc)

	rec := doJSON(t, h, http.MethodGet, "/orders/o1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"SHIPPED"`)

	rec = doJSON(t, h, http.MethodGet, "/orders/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/orders/o1/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"SHIPPED"`)
}

func TestUpdateOrderStatusHandler(t *testing.T) {
	svc := &fakeOrderService{orders: map[string]orders.Order{
		"o1": {ID: "o1", Status: orders.StatusShipped},
	}}
	h := newTestHandler(t, svc)

	rec := doJSON(t, h, http.MethodPatch, "/orders/o1/status", `{"status":"DELIVERED"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orders.StatusDelivered, svc.orders["o1"].Status)

	rec = doJSON(t, h, http.MethodPatch, "/orders/o1/status", `{"status":"CANCELLED"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodPatch, "/orders/o1/status", `{"status":"bogus"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListProductsHandler(t *testing.T) {
	svc := &fakeOrderService{orders: map[string]orders.Order{}}
	h := newTestHandler(t, svc)

	rec := doJSON(t, h, http.MethodGet, "/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Widget")
}
