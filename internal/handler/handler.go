// Package handler exposes the order core over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/review"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the order and review endpoints. Every route expects an
// authenticated requester in the request context.
type Handler struct {
	orders  *order.Service
	reviews *review.Service
}

// NewHandler constructs a Handler with the required domain services.
func NewHandler(orders *order.Service, reviews *review.Service) *Handler {
	return &Handler{orders: orders, reviews: reviews}
}

// Routes registers the API endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.PlaceOrder)
		r.Get("/", h.ListOrders)
		r.Get("/{id}", h.GetOrder)
		r.Patch("/{id}/status", h.UpdateOrderStatus)
		r.Post("/{id}/cancel", h.CancelOrder)
		r.Post("/{id}/checkout", h.Checkout)
	})
	r.Post("/products/{id}/reviews", h.CreateReview)
}

// NewRouter mounts the API under /api behind sec and the given middlewares,
// which run after authentication.
func NewRouter(h *Handler, sec *SecurityHandler, mws ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(routeTelemetry)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusNotFound, "NotFound", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
	})
	r.Route("/api", func(r chi.Router) {
		r.Use(sec.Authenticate)
		r.Use(mws...)
		h.Routes(r)
	})
	return r
}

func requester(r *http.Request) (auth.Requester, bool) {
	return auth.RequesterFrom(r.Context())
}
