package app

import (
	"context"
)

// Session is the caller identity every operation is scoped to.
type Session struct {
	UserID   int64
	TenantID int64
	Role     string
}

// ApplicationService is the single interface all adapters (CLI, Web) call.
// It decouples presentation from business logic. Implementations must contain
// no display logic of any kind.
type ApplicationService interface {
	// ComputeAvailability returns free stock per item and kit for a window,
	// optionally net of the caller's cart and of a simulated cart.
	ComputeAvailability(ctx context.Context, s Session, req AvailabilityRequest) (*AvailabilityResult, error)

	// AddCartItem stages an item or kit for a slot in the caller's cart.
	AddCartItem(ctx context.Context, s Session, req AddCartItemRequest) (*CartResult, error)

	// RemoveCartItem deletes one line of the caller's cart.
	RemoveCartItem(ctx context.Context, s Session, lineID int64) error

	// ClearCart deletes every line of the caller's cart.
	ClearCart(ctx context.Context, s Session) error

	// GetCartContents returns the caller's cart with display names. Total is
	// the number of distinct slots.
	GetCartContents(ctx context.Context, s Session) (*CartResult, error)

	// Checkout converts the caller's cart into confirmed reservations, one
	// booking group per slot, atomically.
	Checkout(ctx context.Context, s Session) (*CheckoutResult, error)

	// GetBooking returns the detail of one booking group.
	GetBooking(ctx context.Context, s Session, groupID string) (*BookingResult, error)

	// CancelBooking cancels a booking group owned by the caller (or any group for admins).
	CancelBooking(ctx context.Context, s Session, groupID string) error

	// AddToBooking adds an item or kit to an existing booking group, verified
	// under lock over the group's window.
	AddToBooking(ctx context.Context, s Session, groupID string, req BookingItemRequest) (*BookingResult, error)

	// RemoveFromBooking takes units off one reservation of a booking group.
	RemoveFromBooking(ctx context.Context, s Session, groupID string, reservationID int64, quantity int) (*BookingChangeResult, error)

	// MonthCalendar counts booking groups per day of a month.
	MonthCalendar(ctx context.Context, s Session, year, month int) (*CalendarResult, error)

	// DayBookings lists the booking groups starting on a day.
	DayBookings(ctx context.Context, s Session, date string) (*DayBookingsResult, error)
}
