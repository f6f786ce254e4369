package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"lab-booking/internal/app"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Options tunes the HTTP adapter.
type Options struct {
	AllowedOrigins    string
	JWTSecret         string
	AddPerMinute      int
	CheckoutPerMinute int
}

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	router    chi.Router
	logger    *zap.Logger
	jwtSecret string
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, logger *zap.Logger, opts Options) http.Handler {
	if opts.AddPerMinute <= 0 {
		opts.AddPerMinute = 60
	}
	if opts.CheckoutPerMinute <= 0 {
		opts.CheckoutPerMinute = 10
	}

	h := &Handler{
		svc:       svc,
		logger:    logger,
		jwtSecret: opts.JWTSecret,
	}
	addLimiter := newUserLimiter(opts.AddPerMinute)
	checkoutLimiter := newUserLimiter(opts.CheckoutPerMinute)

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recoverer(logger))
	r.Use(CORS(opts.AllowedOrigins))

	// ── Public ────────────────────────────────────────────────────────────────
	r.Get("/api/health", h.health)
	r.Get("/api/schemas/cart-item", h.cartItemSchema)

	// ── Protected API routes (return 401 JSON if unauthenticated) ────────────
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		r.Get("/api/auth/me", h.me)

		// ── Availability ──────────────────────────────────────────────────────
		r.Get("/api/availability", h.availability)

		// ── Cart ──────────────────────────────────────────────────────────────
		r.Get("/api/cart", h.getCart)
		r.Delete("/api/cart", h.clearCart)
		r.With(RateLimit(addLimiter)).Post("/api/cart/items", h.addCartItem)
		r.Delete("/api/cart/items/{lineID}", h.removeCartItem)
		r.With(RateLimit(checkoutLimiter)).Post("/api/cart/checkout", h.checkout)

		// ── Bookings ──────────────────────────────────────────────────────────
		r.Get("/api/bookings/{groupID}", h.getBooking)
		r.Delete("/api/bookings/{groupID}", h.cancelBooking)
		r.With(RateLimit(addLimiter)).Post("/api/bookings/{groupID}/items", h.addToBooking)
		r.Delete("/api/bookings/{groupID}/items/{reservationID}", h.removeFromBooking)
		r.Get("/api/calendar/{year}/{month}", h.monthCalendar)
		r.Get("/api/calendar/days/{date}", h.dayBookings)
	})

	h.router = r
	return r
}

// health returns service status.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	writeJSON(w, response{Status: "ok"})
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "VALIDATION_ERROR", http.StatusBadRequest)
		return false
	}
	return true
}
