package web

import (
	"net/http"
	"strconv"

	"lab-booking/internal/app"

	"github.com/go-chi/chi/v5"
)

// getBooking handles GET /api/bookings/{groupID}.
func (h *Handler) getBooking(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetBooking(r.Context(), session(r), chi.URLParam(r, "groupID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// cancelBooking handles DELETE /api/bookings/{groupID}.
func (h *Handler) cancelBooking(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CancelBooking(r.Context(), session(r), chi.URLParam(r, "groupID")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// addToBooking handles POST /api/bookings/{groupID}/items.
func (h *Handler) addToBooking(w http.ResponseWriter, r *http.Request) {
	var req app.BookingItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.AddToBooking(r.Context(), session(r), chi.URLParam(r, "groupID"), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// removeFromBooking handles DELETE /api/bookings/{groupID}/items/{reservationID}.
// The optional quantity query parameter defaults to one unit.
func (h *Handler) removeFromBooking(w http.ResponseWriter, r *http.Request) {
	reservationID, err := strconv.ParseInt(chi.URLParam(r, "reservationID"), 10, 64)
	if err != nil || reservationID <= 0 {
		writeError(w, r, "invalid reservation id", "VALIDATION_ERROR", http.StatusBadRequest)
		return
	}
	quantity := 1
	if q := r.URL.Query().Get("quantity"); q != "" {
		if quantity, err = strconv.Atoi(q); err != nil {
			writeError(w, r, "quantity must be a number", "VALIDATION_ERROR", http.StatusBadRequest)
			return
		}
	}
	res, err := h.svc.RemoveFromBooking(r.Context(), session(r), chi.URLParam(r, "groupID"), reservationID, quantity)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// monthCalendar handles GET /api/calendar/{year}/{month}.
func (h *Handler) monthCalendar(w http.ResponseWriter, r *http.Request) {
	year, errY := strconv.Atoi(chi.URLParam(r, "year"))
	month, errM := strconv.Atoi(chi.URLParam(r, "month"))
	if errY != nil || errM != nil {
		writeError(w, r, "year and month must be numbers", "VALIDATION_ERROR", http.StatusBadRequest)
		return
	}
	res, err := h.svc.MonthCalendar(r.Context(), session(r), year, month)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// dayBookings handles GET /api/calendar/days/{date}.
func (h *Handler) dayBookings(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.DayBookings(r.Context(), session(r), chi.URLParam(r, "date"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, res)
}
