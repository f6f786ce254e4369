package core_test

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"lab-booking/internal/core"

	"github.com/cucumber/godog"
)

type reservationWorld struct {
	t        *testing.T
	f        *fixture
	users    map[string]int64
	refs     map[string]core.RequestedItem
	avail    *core.Availability
	checkout *core.CheckoutResult
	err      error
}

func (w *reservationWorld) reset() {
	w.f = newBareFixture(w.t)
	w.users = map[string]int64{"alice": alice, "bob": bob}
	w.refs = make(map[string]core.RequestedItem)
	w.avail = nil
	w.checkout = nil
	w.err = nil
}

func (w *reservationWorld) user(name string) (int64, error) {
	id, ok := w.users[name]
	if !ok {
		return 0, fmt.Errorf("unknown user %q", name)
	}
	return id, nil
}

func (w *reservationWorld) ref(name string) (core.RequestedItem, error) {
	r, ok := w.refs[name]
	if !ok {
		return core.RequestedItem{}, fmt.Errorf("unknown item or kit %q", name)
	}
	return r, nil
}

func (w *reservationWorld) anItemWithUnits(name string, units int) error {
	it := w.f.store.SeedItem(core.Item{TenantID: tenantA, Name: name, TotalQuantity: units})
	w.refs[name] = core.RequestedItem{Type: core.LineTypeItem, ID: it.ID}
	return nil
}

func (w *reservationWorld) aKitMadeOf(name string, table *godog.Table) error {
	k := core.Kit{TenantID: tenantA, Name: name}
	for _, row := range table.Rows[1:] {
		r, err := w.ref(row.Cells[0].Value)
		if err != nil {
			return err
		}
		qty, err := strconv.Atoi(row.Cells[1].Value)
		if err != nil {
			return err
		}
		k.Components = append(k.Components, core.KitComponent{ItemID: r.ID, Quantity: qty})
	}
	k = w.f.store.SeedKit(k)
	w.refs[name] = core.RequestedItem{Type: core.LineTypeKit, ID: k.ID}
	return nil
}

func (w *reservationWorld) holds(userName string, qty int, name, start, end string) error {
	userID, err := w.user(userName)
	if err != nil {
		return err
	}
	r, err := w.ref(name)
	if err != nil {
		return err
	}
	win := window(testDay, start, end)
	res := core.Reservation{
		TenantID:       tenantA,
		UserID:         userID,
		Quantity:       qty,
		Start:          win.Start,
		End:            win.End,
		BookingGroupID: "held-" + userName,
	}
	id := r.ID
	if r.Type == core.LineTypeKit {
		res.KitID = &id
	} else {
		res.ItemID = &id
	}
	w.f.store.SeedReservation(res)
	return nil
}

func (w *reservationWorld) checksAvailability(_ string, start, end string) error {
	w.avail, w.err = w.f.engine.ComputeAvailability(context.Background(), tenantA, window(testDay, start, end), nil)
	return w.err
}

func (w *reservationWorld) hasAvailable(name string, want int) error {
	if w.avail == nil {
		return fmt.Errorf("no availability computed")
	}
	r, err := w.ref(name)
	if err != nil {
		return err
	}
	got := w.avail.Items[r.ID].Available
	if r.Type == core.LineTypeKit {
		got = w.avail.Kits[r.ID].Available
	}
	if got != want {
		return fmt.Errorf("expected %d %q available, got %d", want, name, got)
	}
	return nil
}

func (w *reservationWorld) adds(userName string, qty int, name, start, end string) error {
	userID, err := w.user(userName)
	if err != nil {
		return err
	}
	r, err := w.ref(name)
	if err != nil {
		return err
	}
	_, w.err = w.f.carts.AddItem(context.Background(), userID, tenantA, core.AddItemInput{
		Type: r.Type, ID: r.ID, Quantity: qty, Date: testDay, Start: start, End: end,
	})
	return nil
}

func (w *reservationWorld) hasStagedSlots(userName string, n int, name, from string) error {
	begin, err := time.Parse("15:04", from)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		s := begin.Add(time.Duration(i) * time.Hour).Format("15:04")
		e := begin.Add(time.Duration(i+1) * time.Hour).Format("15:04")
		if err := w.adds(userName, 1, name, s, e); err != nil {
			return err
		}
		if w.err != nil {
			return fmt.Errorf("staging slot %s-%s: %w", s, e, w.err)
		}
	}
	return nil
}

func (w *reservationWorld) checksOut(userName string) error {
	userID, err := w.user(userName)
	if err != nil {
		return err
	}
	w.checkout, w.err = w.f.checkout.Checkout(context.Background(), userID, tenantA)
	return nil
}

func (w *reservationWorld) hoursPass(h int) error {
	w.f.clock.Advance(time.Duration(h) * time.Hour)
	return nil
}

func (w *reservationWorld) cartHas(userName string, lines, total int) error {
	userID, err := w.user(userName)
	if err != nil {
		return err
	}
	snap, err := w.f.carts.GetContents(context.Background(), userID, tenantA)
	if err != nil {
		return err
	}
	if len(snap.Lines) != lines || snap.Total != total {
		return fmt.Errorf("expected %d lines and total %d, got %d lines and total %d", lines, total, len(snap.Lines), snap.Total)
	}
	return nil
}

func (w *reservationWorld) groupsCreated(groups, reservations int) error {
	if w.err != nil {
		return fmt.Errorf("checkout failed: %w", w.err)
	}
	if len(w.checkout.BookingGroups) != groups || w.checkout.ReservationCount != reservations {
		return fmt.Errorf("expected %d groups and %d reservations, got %d and %d",
			groups, reservations, len(w.checkout.BookingGroups), w.checkout.ReservationCount)
	}
	return nil
}

func (w *reservationWorld) requestFailsWith(kind string) error {
	if w.err == nil {
		return fmt.Errorf("expected a %s error, got success", kind)
	}
	if got := core.KindOf(w.err); string(got) != kind {
		return fmt.Errorf("expected a %s error, got %s: %v", kind, got, w.err)
	}
	return nil
}

func initializeReservationScenario(t *testing.T) func(*godog.ScenarioContext) {
	return func(ctx *godog.ScenarioContext) {
		w := &reservationWorld{t: t}

		ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
			w.reset()
			return ctx, nil
		})

		// Given steps
		ctx.Step(`^an item "([^"]*)" with (\d+) units$`, w.anItemWithUnits)
		ctx.Step(`^a kit "([^"]*)" made of:$`, w.aKitMadeOf)
		ctx.Step(`^"([^"]*)" holds (\d+) "([^"]*)" from "([^"]*)" to "([^"]*)"$`, w.holds)
		ctx.Step(`^"([^"]*)" has staged (\d+) one-hour slots of "([^"]*)" from "([^"]*)"$`, w.hasStagedSlots)

		// When steps
		ctx.Step(`^"([^"]*)" checks availability from "([^"]*)" to "([^"]*)"$`, w.checksAvailability)
		ctx.Step(`^"([^"]*)" adds (\d+) "([^"]*)" from "([^"]*)" to "([^"]*)"$`, w.adds)
		ctx.Step(`^"([^"]*)" checks out$`, w.checksOut)
		ctx.Step(`^(\d+) hours pass$`, w.hoursPass)

		// Then steps
		ctx.Step(`^"([^"]*)" has (\d+) available$`, w.hasAvailable)
		ctx.Step(`^the cart of "([^"]*)" has (\d+) lines and a total of (\d+)$`, w.cartHas)
		ctx.Step(`^(\d+) booking groups are created with (\d+) reservations$`, w.groupsCreated)
		ctx.Step(`^the request fails with "([^"]*)"$`, w.requestFailsWith)
	}
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeReservationScenario(t),
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"../../features/reservations.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
