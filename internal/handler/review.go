package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
)

// CreateReview handles POST /api/products/{id}/reviews.
func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	who, _ := requester(r)
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeReview(data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.ProductID = chi.URLParam(r, "id")

	rv, err := h.reviews.Create(r.Context(), who, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeReview(e, rv) })
}
