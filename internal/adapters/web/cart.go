package web

import (
	"net/http"
	"strconv"

	"lab-booking/internal/app"

	"github.com/go-chi/chi/v5"
)

// getCart handles GET /api/cart.
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetCartContents(r.Context(), session(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// addCartItem handles POST /api/cart/items.
func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req app.AddCartItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.AddCartItem(r.Context(), session(r), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, res)
}

// removeCartItem handles DELETE /api/cart/items/{lineID}.
func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	lineID, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	if err != nil || lineID <= 0 {
		writeError(w, r, "invalid line id", "VALIDATION_ERROR", http.StatusBadRequest)
		return
	}
	if err := h.svc.RemoveCartItem(r.Context(), session(r), lineID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// clearCart handles DELETE /api/cart.
func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearCart(r.Context(), session(r)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// checkout handles POST /api/cart/checkout.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Checkout(r.Context(), session(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, res)
}
