package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-shop-orders.git/internal/catalog"
	"github.com/ariefcatur/go-shop-orders.git/internal/orders"
)

// OrderService is what the handlers need from the reservation core.
type OrderService interface {
	PlaceOrder(ctx context.Context, userID string, items []orders.ItemInput, addr orders.Address) (orders.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status orders.Status) (orders.Order, error)
	ListOrders(ctx context.Context, userID string) ([]orders.Order, error)
	GetOrder(ctx context.Context, orderID string) (orders.Order, error)
}

type OrdersHandler struct {
	Service OrderService
}

type CreateOrderReq struct {
	Items []orders.ItemInput `json:"items"`
	// accepted for wire compatibility, ignored: the server recomputes the
	// total from catalog prices
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	ShippingAddress orders.Address  `json:"shippingAddress"`
}

type UpdateStatusReq struct {
	Status orders.Status `json:"status"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Route("/orders", func(r chi.Router) {
		r.Use(IdentityFromHeaders)
		r.Post("/", RequireUser(h.createOrder))
		r.Get("/", RequireAdmin(h.listAllOrders))
		r.Get("/my-orders", RequireUser(h.listMyOrders))
		r.Get("/{id}", RequireUser(h.getOrder))
		r.Put("/{id}", RequireAdmin(h.updateStatus))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var stockErr *orders.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     "insufficient stock",
			"shortages": stockErr.Shortages,
		})
	case errors.Is(err, orders.ErrValidation),
		errors.Is(err, orders.ErrInvalidStatus),
		errors.Is(err, orders.ErrInvalidTransition):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, orders.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	ctx = orders.WithTraceID(ctx, middleware.GetReqID(r.Context()))

	order, err := h.Service.PlaceOrder(ctx, GetIdentity(r.Context()).UserID, req.Items, req.ShippingAddress)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req UpdateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	ctx = orders.WithTraceID(ctx, middleware.GetReqID(r.Context()))

	order, err := h.Service.UpdateStatus(ctx, orderID, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Service.ListOrders(ctx, "")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Service.ListOrders(ctx, GetIdentity(r.Context()).UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	order, err := h.Service.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	id := GetIdentity(r.Context())
	if id.Role != RoleAdmin && order.UserID != id.UserID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}
	writeJSON(w, http.StatusOK, order)
}
