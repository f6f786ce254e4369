package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"lab-booking/internal/app"
	"lab-booking/internal/clock"
	"lab-booking/internal/core"
	"lab-booking/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSecret = "test-secret"

type testServer struct {
	t       *testing.T
	store   *memory.Store
	handler http.Handler
	scope   core.Item
	lamp    core.Item
	foreign core.Item
	kit     core.Kit
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	ts := &testServer{t: t, store: store}
	ts.scope = store.SeedItem(core.Item{TenantID: 1, Name: "Microscope", TotalQuantity: 5})
	ts.lamp = store.SeedItem(core.Item{TenantID: 1, Name: "Cold light", TotalQuantity: 3})
	ts.foreign = store.SeedItem(core.Item{TenantID: 2, Name: "Centrifuge", TotalQuantity: 1})
	ts.kit = store.SeedKit(core.Kit{
		TenantID:   1,
		Name:       "Lit microscope",
		Components: []core.KitComponent{{ItemID: ts.scope.ID, Quantity: 1}, {ItemID: ts.lamp.ID, Quantity: 1}},
	})

	rules := core.DefaultRules()
	rules.Location = time.UTC
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	logger := zaptest.NewLogger(t)
	svc := app.NewFromStore(store, nil, rules, clock.NewFixed(now), logger)
	ts.handler = NewHandler(svc, logger, Options{JWTSecret: testSecret, CheckoutPerMinute: 3})
	return ts
}

func (ts *testServer) token(userID, tenantID int64, role string) string {
	ts.t.Helper()
	tok, err := IssueToken(testSecret, AuthClaims{UserID: userID, TenantID: tenantID, Role: role}, time.Hour)
	require.NoError(ts.t, err)
	return tok
}

func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(ts.t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func cartItem(typ string, id int64, qty int, start, end string) app.AddCartItemRequest {
	return app.AddCartItemRequest{Type: typ, ID: id, Quantity: qty, Date: "2026-03-02", Start: start, End: end}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/api/cart", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := IssueToken("other-secret", AuthClaims{UserID: 10, TenantID: 1}, time.Hour)
	require.NoError(t, err)
	rec = ts.do(http.MethodGet, "/api/cart", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/api/cart", ts.token(10, 0, core.RoleUser), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "a token without tenant is rejected")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: ts.token(10, 1, core.RoleAdmin)})
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody[map[string]any](t, rec)
	assert.Equal(t, float64(10), me["user_id"])
	assert.Equal(t, core.RoleAdmin, me["role"])
}

func TestAvailabilityEndpoint(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(10, 1, core.RoleUser)

	rec := ts.do(http.MethodGet, "/api/availability?date=2026-03-02&start=10:00&end=12:00", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[app.AvailabilityResult](t, rec)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "Cold light", res.Items[0].Name, "items are sorted by name")
	require.Len(t, res.Kits, 1)
	assert.Equal(t, 3, res.Kits[0].Available)

	cart := url.QueryEscape(fmt.Sprintf(`[{"type":"item","id":%d,"quantity":2},{"type":"bogus"}]`, ts.lamp.ID))
	rec = ts.do(http.MethodGet, "/api/availability?date=2026-03-02&start=10:00&end=12:00&cart="+cart, tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res = decodeBody[app.AvailabilityResult](t, rec)
	assert.Equal(t, 1, res.Items[0].Available, "simulated cart is subtracted")

	rec = ts.do(http.MethodGet, "/api/availability?date=2026-03-02&start=12:00&end=10:00", tok, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "TEMPORAL_RULE", decodeBody[errorResponse](t, rec).Code)

	rec = ts.do(http.MethodGet, "/api/availability?date=tomorrow&start=10:00&end=12:00", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/availability?date=2026-03-02&start=10:00&end=12:00&include_cart=perhaps", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartLifecycle(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(10, 1, core.RoleUser)

	rec := ts.do(http.MethodPost, "/api/cart/items", tok, cartItem("item", ts.scope.ID, 2, "10:00", "12:00"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decodeBody[app.CartResult](t, rec)
	require.Len(t, added.Cart.Lines, 1)
	lineID := added.Cart.Lines[0].LineID

	rec = ts.do(http.MethodPost, "/api/cart/items", tok, cartItem("kit", ts.kit.ID, 1, "14:00", "15:00"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(http.MethodGet, "/api/cart", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cart := decodeBody[app.CartResult](t, rec)
	assert.Equal(t, 2, cart.Cart.Total)

	rec = ts.do(http.MethodDelete, fmt.Sprintf("/api/cart/items/%d", lineID), tok, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(http.MethodDelete, fmt.Sprintf("/api/cart/items/%d", lineID), tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/cart/items/abc", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/cart", tok, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(http.MethodGet, "/api/cart", tok, nil)
	assert.Empty(t, decodeBody[app.CartResult](t, rec).Cart.Lines)
}

func TestAddCartItemErrors(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(10, 1, core.RoleUser)

	rec := ts.do(http.MethodPost, "/api/cart/items", tok, cartItem("item", ts.foreign.ID, 1, "10:00", "12:00"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN_REFERENCE", decodeBody[errorResponse](t, rec).Code)

	rec = ts.do(http.MethodPost, "/api/cart/items", tok, cartItem("item", ts.lamp.ID, 4, "10:00", "12:00"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody[struct {
		Code    string              `json:"code"`
		Details availabilityDetails `json:"details"`
	}](t, rec)
	assert.Equal(t, "UNAVAILABLE", body.Code)
	assert.Equal(t, availabilityDetails{Type: core.LineTypeItem, ID: ts.lamp.ID, Requested: 4, Available: 3}, body.Details)

	rec = ts.do(http.MethodPost, "/api/cart/items", tok, cartItem("item", ts.scope.ID, 101, "10:00", "12:00"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "CAPACITY_EXCEEDED", decodeBody[errorResponse](t, rec).Code)

	rec = ts.do(http.MethodPost, "/api/cart/items", tok, `{"type":"item","id":1,"quantity":1,"colour":"red"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")

	rec = ts.do(http.MethodPost, "/api/cart/items", tok, `{"type":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutAndBookings(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(10, 1, core.RoleUser)
	bob := ts.token(11, 1, core.RoleUser)

	rec := ts.do(http.MethodPost, "/api/cart/checkout", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "empty cart")

	rec = ts.do(http.MethodPost, "/api/cart/items", alice, cartItem("kit", ts.kit.ID, 2, "10:00", "12:00"))
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(http.MethodPost, "/api/cart/checkout", alice, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decodeBody[app.CheckoutResult](t, rec)
	require.Len(t, res.BookingGroups, 1)
	groupID := res.BookingGroups[0].ID

	rec = ts.do(http.MethodGet, "/api/bookings/"+groupID, bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	booking := decodeBody[app.BookingResult](t, rec)
	assert.False(t, booking.Booking.CanEdit)
	assert.Equal(t, "Lit microscope", booking.Booking.Lines[0].Name)

	rec = ts.do(http.MethodGet, "/api/calendar/2026/3", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"2026-03-02": 1}, decodeBody[app.CalendarResult](t, rec).Days)

	rec = ts.do(http.MethodGet, "/api/calendar/2026/march", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/calendar/days/2026-03-02", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[app.DayBookingsResult](t, rec).Bookings, 1)

	rec = ts.do(http.MethodDelete, "/api/bookings/"+groupID, bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decodeBody[errorResponse](t, rec).Code)

	rec = ts.do(http.MethodDelete, "/api/bookings/"+groupID, alice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(http.MethodGet, "/api/bookings/"+groupID, alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEditBookingGroup(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(10, 1, core.RoleUser)
	bob := ts.token(11, 1, core.RoleUser)

	rec := ts.do(http.MethodPost, "/api/cart/items", alice, cartItem("item", ts.scope.ID, 1, "10:00", "12:00"))
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(http.MethodPost, "/api/cart/checkout", alice, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	groupID := decodeBody[app.CheckoutResult](t, rec).BookingGroups[0].ID
	items := "/api/bookings/" + groupID + "/items"

	rec = ts.do(http.MethodPost, items, bob, app.BookingItemRequest{Type: "item", ID: ts.lamp.ID, Quantity: 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodPost, items, alice, app.BookingItemRequest{Type: "item", ID: ts.lamp.ID, Quantity: 4})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "UNAVAILABLE", decodeBody[errorResponse](t, rec).Code)

	rec = ts.do(http.MethodPost, items, alice, app.BookingItemRequest{Type: "item", ID: ts.lamp.ID, Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	booking := decodeBody[app.BookingResult](t, rec).Booking
	require.Len(t, booking.Lines, 2)
	lamp := booking.Lines[1]
	assert.Equal(t, "Cold light", lamp.Name)
	assert.Equal(t, 2, lamp.Quantity)

	rec = ts.do(http.MethodDelete, fmt.Sprintf("%s/%d", items, lamp.ReservationID), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decodeBody[app.BookingChangeResult](t, rec).Remaining, "one unit removed by default")

	rec = ts.do(http.MethodDelete, fmt.Sprintf("%s/%d?quantity=1", items, lamp.ReservationID), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[app.BookingChangeResult](t, rec).Remaining)

	rec = ts.do(http.MethodDelete, items+"/abc", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(http.MethodDelete, fmt.Sprintf("%s/%d?quantity=all", items, booking.Lines[0].ReservationID), alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutLockContention(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(10, 1, core.RoleUser)

	rec := ts.do(http.MethodPost, "/api/cart/items", tok, cartItem("item", ts.lamp.ID, 1, "10:00", "12:00"))
	require.Equal(t, http.StatusCreated, rec.Code)
	ts.store.HoldLock(ts.lamp.ID)

	rec = ts.do(http.MethodPost, "/api/cart/checkout", tok, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "CONCURRENT_MODIFICATION", decodeBody[errorResponse](t, rec).Code)
}

func TestCheckoutRateLimit(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(10, 1, core.RoleUser)
	other := ts.token(11, 1, core.RoleUser)

	for i := 0; i < 3; i++ {
		rec := ts.do(http.MethodPost, "/api/cart/checkout", tok, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec := ts.do(http.MethodPost, "/api/cart/checkout", tok, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", decodeBody[errorResponse](t, rec).Code)

	rec = ts.do(http.MethodPost, "/api/cart/checkout", other, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "budgets are per user")
}

func TestPersistenceErrorsAreGeneric(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(10, 1, core.RoleUser)
	ts.store.FailOn("ListItems", errors.New("pq: password authentication failed"))

	rec := ts.do(http.MethodGet, "/api/availability?date=2026-03-02&start=10:00&end=12:00", tok, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestDeadlineExceededIsAPersistenceFailure(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(10, 1, core.RoleUser)
	ts.store.FailOn("ListItems", context.DeadlineExceeded)

	rec := ts.do(http.MethodGet, "/api/availability?date=2026-03-02&start=10:00&end=12:00", tok, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "INTERNAL_ERROR", resp.Code)
	assert.Equal(t, "technical failure, please try again later", resp.Error)
}

func TestWriteDomainError_Unknown(t *testing.T) {
	h := &Handler{logger: zaptest.NewLogger(t)}
	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	rec := httptest.NewRecorder()

	h.writeDomainError(rec, req, errors.New("nil map write"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "INTERNAL_ERROR", resp.Code)
	assert.Equal(t, "internal server error", resp.Error)
}

func TestCartItemSchema(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/api/schemas/cart-item", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	schema := decodeBody[map[string]any](t, rec)
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	for _, field := range []string{"type", "id", "quantity", "date", "start", "end"} {
		assert.Contains(t, props, field)
	}
	assert.Equal(t, false, schema["additionalProperties"])

	quantity := props["quantity"].(map[string]any)
	assert.EqualValues(t, 100, quantity["maximum"])
}

func TestParseSimulatedCart(t *testing.T) {
	assert.Nil(t, parseSimulatedCart(""))
	assert.Nil(t, parseSimulatedCart(`{"type":"item"}`))
	assert.Equal(t, []core.RequestedItem{
		{Type: core.LineTypeItem, ID: 3, Quantity: 2},
		{Type: core.LineTypeKit, ID: 4, Quantity: 1},
	}, parseSimulatedCart(`[
		{"type":"item","id":3,"quantity":2},
		{"type":"kit","id":"4","quantity":"1"},
		{"type":"item","id":1.5,"quantity":1},
		{"type":"item","id":5,"quantity":0},
		{"type":"robot","id":6,"quantity":1}
	]`))
}
