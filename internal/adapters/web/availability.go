package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"lab-booking/internal/app"
	"lab-booking/internal/core"
)

// availability handles GET /api/availability?date=&start=&end=[&include_cart=true][&cart=<json>].
func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := app.AvailabilityRequest{
		Date:      q.Get("date"),
		Start:     q.Get("start"),
		End:       q.Get("end"),
		Simulated: parseSimulatedCart(q.Get("cart")),
	}
	if v := q.Get("include_cart"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, "include_cart must be a boolean", "VALIDATION_ERROR", http.StatusBadRequest)
			return
		}
		req.IncludeCart = b
	}

	res, err := h.svc.ComputeAvailability(r.Context(), session(r), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// parseSimulatedCart reads a best-effort list of {type, id, quantity} entries.
// Anything that is not a JSON list yields nil; malformed entries are skipped.
func parseSimulatedCart(raw string) []core.RequestedItem {
	if raw == "" {
		return nil
	}
	var entries []map[string]any
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil
	}
	out := make([]core.RequestedItem, 0, len(entries))
	for _, e := range entries {
		t, _ := e["type"].(string)
		id, okID := positiveInt(e["id"])
		qty, okQty := positiveInt(e["quantity"])
		if !core.LineType(t).Valid() || !okID || !okQty {
			continue
		}
		out = append(out, core.RequestedItem{Type: core.LineType(t), ID: int64(id), Quantity: qty})
	}
	return out
}

// positiveInt accepts JSON numbers and numeric strings.
func positiveInt(v any) (int, bool) {
	var n int
	switch x := v.(type) {
	case float64:
		if x != float64(int(x)) {
			return 0, false
		}
		n = int(x)
	case string:
		i, err := strconv.Atoi(x)
		if err != nil {
			return 0, false
		}
		n = i
	default:
		return 0, false
	}
	return n, n > 0
}
