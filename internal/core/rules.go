package core

import (
	"regexp"
	"time"
)

// Rules holds the tunable reservation bounds shared by every service.
type Rules struct {
	PastBuffer         time.Duration // how far in the past a window may start
	Horizon            time.Duration // how far ahead a window may start
	MaxDuration        time.Duration
	CartTTL            time.Duration
	SlidingCartTTL     bool // refresh expiry on every touch
	MaxCartLines       int
	MaxCartSlots       int
	MaxLineQuantity    int
	MaxBatchEntries    int
	MaxEntryQuantity   int
	MaxKitAvailability int
	Location           *time.Location
}

// DefaultRules returns the production reservation bounds.
func DefaultRules() Rules {
	return Rules{
		PastBuffer:         15 * time.Minute,
		Horizon:            365 * 24 * time.Hour,
		MaxDuration:        12 * time.Hour,
		CartTTL:            24 * time.Hour,
		SlidingCartTTL:     true,
		MaxCartLines:       50,
		MaxCartSlots:       10,
		MaxLineQuantity:    9999,
		MaxBatchEntries:    100,
		MaxEntryQuantity:   100,
		MaxKitAvailability: 9999,
		Location:           time.Local,
	}
}

// StageableQuantity is the largest quantity one cart line can hold: the line
// bound further limited by the per-entry decompose cap.
func (r Rules) StageableQuantity() int {
	return min(r.MaxLineQuantity, r.MaxEntryQuantity)
}

func (r Rules) location() *time.Location {
	if r.Location == nil {
		return time.Local
	}
	return r.Location
}

var (
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

// ValidateWindow enforces the temporal rules against now.
func (r Rules) ValidateWindow(w Window, now time.Time) error {
	if !w.Start.Before(w.End) {
		return temporalErr("order", "start must be before end")
	}
	if w.Start.Before(now.Add(-r.PastBuffer)) {
		return temporalErr("past", "cannot reserve in the past")
	}
	if w.Start.After(now.Add(r.Horizon)) {
		return temporalErr("horizon", "cannot reserve more than %d days ahead", int(r.Horizon.Hours()/24))
	}
	if w.End.Sub(w.Start) > r.MaxDuration {
		return temporalErr("duration", "a reservation cannot last longer than %s", r.MaxDuration)
	}
	return nil
}

// ParseSlot converts a wire slot (YYYY-MM-DD, HH:MM, HH:MM) into a window in the
// deployment's local time zone.
func (r Rules) ParseSlot(slot SlotKey) (Window, error) {
	if !datePattern.MatchString(slot.Date) {
		return Window{}, validationErr("date", "expected YYYY-MM-DD, got %q", slot.Date)
	}
	if !timePattern.MatchString(slot.Start) {
		return Window{}, validationErr("start", "expected HH:MM, got %q", slot.Start)
	}
	if !timePattern.MatchString(slot.End) {
		return Window{}, validationErr("end", "expected HH:MM, got %q", slot.End)
	}
	loc := r.location()
	start, err := time.ParseInLocation("2006-01-02 15:04", slot.Date+" "+slot.Start, loc)
	if err != nil {
		return Window{}, validationErr("start", "invalid date or time")
	}
	end, err := time.ParseInLocation("2006-01-02 15:04", slot.Date+" "+slot.End, loc)
	if err != nil {
		return Window{}, validationErr("end", "invalid date or time")
	}
	return Window{Start: start, End: end}, nil
}

// ParseDate parses a YYYY-MM-DD day in the deployment's time zone.
func (r Rules) ParseDate(date string) (time.Time, error) {
	if !datePattern.MatchString(date) {
		return time.Time{}, validationErr("date", "expected YYYY-MM-DD, got %q", date)
	}
	d, err := time.ParseInLocation("2006-01-02", date, r.location())
	if err != nil {
		return time.Time{}, validationErr("date", "invalid date %q", date)
	}
	return d, nil
}

// FormatDate renders t as YYYY-MM-DD in the deployment's time zone.
func (r Rules) FormatDate(t time.Time) string {
	return t.In(r.location()).Format("2006-01-02")
}

// FormatClock renders t as HH:MM in the deployment's time zone.
func (r Rules) FormatClock(t time.Time) string {
	return t.In(r.location()).Format("15:04")
}
