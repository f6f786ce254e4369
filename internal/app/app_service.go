package app

import (
	"context"
	"sort"
	"time"

	"lab-booking/internal/core"
)

type appService struct {
	rules        core.Rules
	availability *core.AvailabilityEngine
	carts        *core.CartService
	checkout     *core.CheckoutService
	bookings     *core.BookingService
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	rules core.Rules,
	availability *core.AvailabilityEngine,
	carts *core.CartService,
	checkout *core.CheckoutService,
	bookings *core.BookingService,
) ApplicationService {
	return &appService{
		rules:        rules,
		availability: availability,
		carts:        carts,
		checkout:     checkout,
		bookings:     bookings,
	}
}

// ComputeAvailability returns free stock for the requested slot. A simulated
// cart longer than the cart line cap is ignored.
func (s *appService) ComputeAvailability(ctx context.Context, sess Session, req AvailabilityRequest) (*AvailabilityResult, error) {
	slot := core.SlotKey{Date: req.Date, Start: req.Start, End: req.End}
	w, err := s.rules.ParseSlot(slot)
	if err != nil {
		return nil, err
	}

	var pending []core.RequestedItem
	if len(req.Simulated) <= s.rules.MaxCartLines {
		pending = append(pending, req.Simulated...)
	}
	if req.IncludeCart {
		own, err := s.carts.PendingLines(ctx, sess.UserID, sess.TenantID, w)
		if err != nil {
			return nil, err
		}
		pending = append(pending, own...)
	}

	avail, err := s.availability.ComputeAvailability(ctx, sess.TenantID, w, pending)
	if err != nil {
		return nil, err
	}

	res := &AvailabilityResult{
		Date:  req.Date,
		Start: req.Start,
		End:   req.End,
		Items: make([]core.ItemAvailability, 0, len(avail.Items)),
		Kits:  make([]core.KitAvailability, 0, len(avail.Kits)),
	}
	for _, it := range avail.Items {
		res.Items = append(res.Items, it)
	}
	for _, k := range avail.Kits {
		res.Kits = append(res.Kits, k)
	}
	sort.Slice(res.Items, func(i, j int) bool {
		if res.Items[i].Name != res.Items[j].Name {
			return res.Items[i].Name < res.Items[j].Name
		}
		return res.Items[i].ItemID < res.Items[j].ItemID
	})
	sort.Slice(res.Kits, func(i, j int) bool {
		if res.Kits[i].Name != res.Kits[j].Name {
			return res.Kits[i].Name < res.Kits[j].Name
		}
		return res.Kits[i].KitID < res.Kits[j].KitID
	})
	return res, nil
}

// AddCartItem stages a line in the caller's cart.
func (s *appService) AddCartItem(ctx context.Context, sess Session, req AddCartItemRequest) (*CartResult, error) {
	snap, err := s.carts.AddItem(ctx, sess.UserID, sess.TenantID, core.AddItemInput{
		Type:     core.LineType(req.Type),
		ID:       req.ID,
		Quantity: req.Quantity,
		Date:     req.Date,
		Start:    req.Start,
		End:      req.End,
	})
	if err != nil {
		return nil, err
	}
	return &CartResult{Cart: snap}, nil
}

// RemoveCartItem deletes one line of the caller's cart.
func (s *appService) RemoveCartItem(ctx context.Context, sess Session, lineID int64) error {
	return s.carts.RemoveItem(ctx, sess.UserID, sess.TenantID, lineID)
}

// ClearCart deletes every line of the caller's cart.
func (s *appService) ClearCart(ctx context.Context, sess Session) error {
	return s.carts.Clear(ctx, sess.UserID, sess.TenantID)
}

// GetCartContents returns the caller's cart.
func (s *appService) GetCartContents(ctx context.Context, sess Session) (*CartResult, error) {
	snap, err := s.carts.GetContents(ctx, sess.UserID, sess.TenantID)
	if err != nil {
		return nil, err
	}
	return &CartResult{Cart: snap}, nil
}

// Checkout commits the caller's cart.
func (s *appService) Checkout(ctx context.Context, sess Session) (*CheckoutResult, error) {
	res, err := s.checkout.Checkout(ctx, sess.UserID, sess.TenantID)
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{BookingGroups: res.BookingGroups, ReservationCount: res.ReservationCount}, nil
}

// GetBooking returns the detail of one booking group.
func (s *appService) GetBooking(ctx context.Context, sess Session, groupID string) (*BookingResult, error) {
	g, err := s.bookings.GetGroup(ctx, sess.TenantID, viewer(sess), groupID)
	if err != nil {
		return nil, err
	}
	return &BookingResult{Booking: g}, nil
}

// CancelBooking cancels a booking group.
func (s *appService) CancelBooking(ctx context.Context, sess Session, groupID string) error {
	return s.bookings.CancelGroup(ctx, sess.TenantID, viewer(sess), groupID)
}

// AddToBooking adds a line to a booking group and returns the updated group.
func (s *appService) AddToBooking(ctx context.Context, sess Session, groupID string, req BookingItemRequest) (*BookingResult, error) {
	item := core.RequestedItem{Type: core.LineType(req.Type), ID: req.ID, Quantity: req.Quantity}
	if err := s.bookings.AddToGroup(ctx, sess.TenantID, viewer(sess), groupID, item); err != nil {
		return nil, err
	}
	return s.GetBooking(ctx, sess, groupID)
}

// RemoveFromBooking takes units off one reservation of a booking group.
func (s *appService) RemoveFromBooking(ctx context.Context, sess Session, groupID string, reservationID int64, quantity int) (*BookingChangeResult, error) {
	left, err := s.bookings.RemoveFromGroup(ctx, sess.TenantID, viewer(sess), groupID, reservationID, quantity)
	if err != nil {
		return nil, err
	}
	return &BookingChangeResult{BookingGroupID: groupID, Remaining: left}, nil
}

// MonthCalendar counts booking groups per day of a month.
func (s *appService) MonthCalendar(ctx context.Context, sess Session, year, month int) (*CalendarResult, error) {
	days, err := s.bookings.MonthCalendar(ctx, sess.TenantID, year, time.Month(month))
	if err != nil {
		return nil, err
	}
	return &CalendarResult{Year: year, Month: month, Days: days}, nil
}

// DayBookings lists the booking groups starting on a day.
func (s *appService) DayBookings(ctx context.Context, sess Session, date string) (*DayBookingsResult, error) {
	list, err := s.bookings.DayBookings(ctx, sess.TenantID, date)
	if err != nil {
		return nil, err
	}
	return &DayBookingsResult{Date: date, Bookings: list}, nil
}

func viewer(sess Session) core.Viewer {
	return core.Viewer{UserID: sess.UserID, Role: sess.Role}
}
