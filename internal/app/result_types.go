package app

import "lab-booking/internal/core"

// AvailabilityResult is returned by ComputeAvailability.
type AvailabilityResult struct {
	Date  string                  `json:"date"`
	Start string                  `json:"start"`
	End   string                  `json:"end"`
	Items []core.ItemAvailability `json:"items"`
	Kits  []core.KitAvailability  `json:"kits"`
}

// CartResult is returned by cart operations.
type CartResult struct {
	Cart *core.CartSnapshot `json:"cart"`
}

// CheckoutResult is returned by Checkout.
type CheckoutResult struct {
	BookingGroups    []core.BookingGroupRef `json:"booking_groups"`
	ReservationCount int                    `json:"reservation_count"`
}

// BookingResult is returned by GetBooking.
type BookingResult struct {
	Booking *core.BookingGroup `json:"booking"`
}

// BookingChangeResult is returned by RemoveFromBooking. Remaining is the
// number of reservations left in the group; zero means the group is gone.
type BookingChangeResult struct {
	BookingGroupID string `json:"booking_group_id"`
	Remaining      int    `json:"remaining"`
}

// CalendarResult is returned by MonthCalendar.
type CalendarResult struct {
	Year  int            `json:"year"`
	Month int            `json:"month"`
	Days  map[string]int `json:"days"`
}

// DayBookingsResult is returned by DayBookings.
type DayBookingsResult struct {
	Date     string                `json:"date"`
	Bookings []core.BookingSummary `json:"bookings"`
}
