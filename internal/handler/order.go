package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/order"
)

// PlaceOrder handles POST /api/orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	who, _ := requester(r)
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodePlaceOrder(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.orders.PlaceOrder(r.Context(), who, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/orders/"+res.Order.ID)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, res.Order, true) })
}

// GetOrder handles GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	who, _ := requester(r)
	o, err := h.orders.GetOrder(r.Context(), who, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o, true) })
}

// ListOrders handles GET /api/orders. Only admins may filter by userId;
// customers always see their own orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	who, _ := requester(r)
	q := r.URL.Query()

	var page order.Page
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"page", &page.Number},
		{"pageSize", &page.Size},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, badRequest(p.name+" must be an integer"))
			return
		}
		*p.dst = v
	}

	filter := order.ListFilter{Status: order.Status(q.Get("status"))}
	if userID := q.Get("userId"); userID != "" {
		if !who.IsAdmin() && userID != who.UserID {
			writeError(w, r, auth.ErrForbidden)
			return
		}
		filter.UserID = userID
	}

	res, err := h.orders.ListOrders(r.Context(), who, filter, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeList(e, res) })
}

// UpdateOrderStatus handles PATCH /api/orders/{id}/status.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	who, _ := requester(r)
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status, err := decodeStatus(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateOrderStatus(r.Context(), who, chi.URLParam(r, "id"), order.Status(status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o, true) })
}

// CancelOrder handles POST /api/orders/{id}/cancel.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	who, _ := requester(r)
	o, err := h.orders.CancelOrder(r.Context(), who, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o, true) })
}

// Checkout handles POST /api/orders/{id}/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	who, _ := requester(r)
	res, err := h.orders.Checkout(r.Context(), who, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("order", func(e *jx.Encoder) { encodeOrder(e, res.Order, true) })
			e.Field("paymentReference", func(e *jx.Encoder) { e.Str(res.PaymentReference) })
		})
	})
}
