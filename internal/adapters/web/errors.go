package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"lab-booking/internal/core"

	"go.uber.org/zap"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorDetails(w, r, message, code, status, nil)
}

func writeErrorDetails(w http.ResponseWriter, r *http.Request, message, code string, status int, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
		Details:   details,
	}
	_ = json.NewEncoder(w).Encode(resp)
}

type availabilityDetails struct {
	Type      core.LineType `json:"type"`
	ID        int64         `json:"id"`
	Requested int           `json:"requested"`
	Available int           `json:"available"`
}

// writeDomainError maps the reservation error taxonomy onto HTTP responses.
// Unclassified errors are logged and reported generically.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch core.KindOf(err) {
	case core.KindValidation:
		writeError(w, r, err.Error(), "VALIDATION_ERROR", http.StatusBadRequest)
	case core.KindTenantIsolation:
		writeError(w, r, err.Error(), "FORBIDDEN_REFERENCE", http.StatusForbidden)
	case core.KindTemporalRule:
		writeError(w, r, err.Error(), "TEMPORAL_RULE", http.StatusUnprocessableEntity)
	case core.KindCapacity:
		writeError(w, r, err.Error(), "CAPACITY_EXCEEDED", http.StatusUnprocessableEntity)
	case core.KindAvailability:
		var ae *core.AvailabilityError
		errors.As(err, &ae)
		writeErrorDetails(w, r, err.Error(), "UNAVAILABLE", http.StatusConflict, availabilityDetails{
			Type:      ae.RefType,
			ID:        ae.RefID,
			Requested: ae.Requested,
			Available: ae.Available,
		})
	case core.KindConcurrency:
		w.Header().Set("Retry-After", "1")
		writeError(w, r, err.Error(), "CONCURRENT_MODIFICATION", http.StatusConflict)
	case core.KindForbidden:
		writeError(w, r, err.Error(), "FORBIDDEN", http.StatusForbidden)
	case core.KindPersistence:
		writeError(w, r, err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
	default:
		h.logger.Error("unhandled error",
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
