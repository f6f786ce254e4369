package core_test

import (
	"fmt"
	"testing"
	"time"

	"lab-booking/internal/clock"
	"lab-booking/internal/core"
	"lab-booking/internal/storage/memory"

	"go.uber.org/zap/zaptest"
)

const (
	tenantA int64 = 1
	tenantB int64 = 2
	alice   int64 = 10
	bob     int64 = 11
)

// testDay is the calendar day most scenarios book on; the clock starts at
// 08:00 that morning.
const testDay = "2026-03-02"

var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	clock    *clock.Manual
	rules    core.Rules
	resolver *core.KitResolver
	engine   *core.AvailabilityEngine
	carts    *core.CartService
	checkout *core.CheckoutService
	bookings *core.BookingService

	scope   core.Item // 5 units
	slide   core.Item // 20 units
	lamp    core.Item // 3 units
	kit     core.Kit  // 1 scope, 2 slides, 1 lamp
	foreign core.Item // belongs to tenantB
}

// newBareFixture wires the services over an empty store.
func newBareFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.New(),
		clock: clock.NewManual(testNow),
		rules: utcRules(),
	}
	f.wire(t)
	return f
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := newBareFixture(t)
	f.scope = f.store.SeedItem(core.Item{TenantID: tenantA, Name: "Microscope", TotalQuantity: 5})
	f.slide = f.store.SeedItem(core.Item{TenantID: tenantA, Name: "Slide box", TotalQuantity: 20})
	f.lamp = f.store.SeedItem(core.Item{TenantID: tenantA, Name: "Cold light", TotalQuantity: 3})
	f.foreign = f.store.SeedItem(core.Item{TenantID: tenantB, Name: "Centrifuge", TotalQuantity: 2})
	f.kit = f.store.SeedKit(core.Kit{
		TenantID: tenantA,
		Name:     "Microscopy kit",
		Components: []core.KitComponent{
			{ItemID: f.scope.ID, Quantity: 1},
			{ItemID: f.slide.ID, Quantity: 2},
			{ItemID: f.lamp.ID, Quantity: 1},
		},
	})
	return f
}

// wire (re)builds the services so tests can tweak rules first.
func (f *fixture) wire(t *testing.T) {
	logger := zaptest.NewLogger(t)
	f.resolver = core.NewKitResolver(f.store, f.rules, logger)
	f.engine = core.NewAvailabilityEngine(f.store, nil, f.resolver, f.rules, f.clock, logger)
	f.carts = core.NewCartService(f.store, f.engine, f.rules, f.clock, logger)
	f.checkout = core.NewCheckoutService(f.store, f.carts, f.engine, f.rules, f.clock, logger)
	f.bookings = core.NewBookingService(f.store, f.engine, f.rules, f.clock, logger)
}

func utcRules() core.Rules {
	r := core.DefaultRules()
	r.Location = time.UTC
	return r
}

func window(date, start, end string) core.Window {
	w, err := utcRules().ParseSlot(core.SlotKey{Date: date, Start: start, End: end})
	if err != nil {
		panic(fmt.Sprintf("bad test window %s %s-%s: %v", date, start, end, err))
	}
	return w
}

func item(id int64, qty int) core.RequestedItem {
	return core.RequestedItem{Type: core.LineTypeItem, ID: id, Quantity: qty}
}

func kit(id int64, qty int) core.RequestedItem {
	return core.RequestedItem{Type: core.LineTypeKit, ID: id, Quantity: qty}
}

func addInput(t core.LineType, id int64, qty int, start, end string) core.AddItemInput {
	return core.AddItemInput{Type: t, ID: id, Quantity: qty, Date: testDay, Start: start, End: end}
}

// reserve seeds a confirmed reservation of an item in tenantA.
func (f *fixture) reserve(itemID int64, qty int, w core.Window) {
	id := itemID
	f.store.SeedReservation(core.Reservation{
		TenantID:       tenantA,
		UserID:         bob,
		ItemID:         &id,
		Quantity:       qty,
		Start:          w.Start,
		End:            w.End,
		Status:         core.ReservationConfirmed,
		BookingGroupID: "seed",
	})
}
