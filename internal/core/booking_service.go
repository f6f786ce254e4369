package core

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"lab-booking/internal/clock"

	"go.uber.org/zap"
)

// Viewer is the identity reading or changing a booking group.
type Viewer struct {
	UserID int64
	Role   string
}

// CanEdit reports whether v may change a booking owned by ownerID.
func (v Viewer) CanEdit(ownerID int64) bool {
	return v.Role == RoleAdmin || v.UserID == ownerID
}

// BookingLine is one reservation of a booking group with its display name.
type BookingLine struct {
	ReservationID int64    `json:"reservation_id"`
	Type          LineType `json:"type"`
	RefID         int64    `json:"ref_id"`
	Name          string   `json:"name"`
	Quantity      int      `json:"quantity"`
}

// BookingGroup is the detail view of the reservations sharing one group id.
type BookingGroup struct {
	ID      string        `json:"booking_group_id"`
	UserID  int64         `json:"user_id"`
	Date    string        `json:"date"`
	Start   string        `json:"start"`
	End     string        `json:"end"`
	CanEdit bool          `json:"can_edit"`
	Lines   []BookingLine `json:"lines"`
}

// BookingSummary is one booking group in a day listing.
type BookingSummary struct {
	ID     string `json:"booking_group_id"`
	UserID int64  `json:"user_id"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Lines  int    `json:"lines"`
}

// BookingService reads and changes committed booking groups.
type BookingService struct {
	store        Store
	availability *AvailabilityEngine
	rules        Rules
	clock        clock.Clock
	logger       *zap.Logger
}

// NewBookingService constructs a BookingService.
func NewBookingService(store Store, availability *AvailabilityEngine, rules Rules, clk clock.Clock, logger *zap.Logger) *BookingService {
	return &BookingService{store: store, availability: availability, rules: rules, clock: clk, logger: logger}
}

// GetGroup returns the confirmed reservations of one booking group.
func (s *BookingService) GetGroup(ctx context.Context, tenantID int64, viewer Viewer, groupID string) (*BookingGroup, error) {
	res, err := s.confirmedGroup(ctx, tenantID, groupID)
	if err != nil {
		return nil, err
	}

	refs := make([]RequestedItem, 0, len(res))
	for _, r := range res {
		refs = append(refs, r.Requested())
	}
	names, err := loadRefNames(ctx, s.store, tenantID, refs)
	if err != nil {
		return nil, storeErr(s.logger, "load booking names", err)
	}

	first := res[0]
	g := &BookingGroup{
		ID:      groupID,
		UserID:  first.UserID,
		Date:    s.rules.FormatDate(first.Start),
		Start:   s.rules.FormatClock(first.Start),
		End:     s.rules.FormatClock(first.End),
		CanEdit: viewer.CanEdit(first.UserID),
	}
	for _, r := range res {
		req := r.Requested()
		g.Lines = append(g.Lines, BookingLine{
			ReservationID: r.ID,
			Type:          req.Type,
			RefID:         req.ID,
			Name:          names.lookup(req.Type, req.ID).name,
			Quantity:      r.Quantity,
		})
	}
	return g, nil
}

// CancelGroup marks every confirmed reservation of the group as cancelled.
// Only the owner or an admin may cancel.
func (s *BookingService) CancelGroup(ctx context.Context, tenantID int64, viewer Viewer, groupID string) error {
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		res, err := s.editableGroup(ctx, tenantID, viewer, groupID, "cancel")
		if err != nil {
			return err
		}

		n, err := s.store.CancelGroup(ctx, tenantID, groupID)
		if err != nil {
			return storeErr(s.logger, "cancel booking", err)
		}
		return s.record(ctx, tenantID, viewer, res[0], AuditActionCancel, EventReservationCancelled,
			map[string]any{"cancelled": n, "owner_id": res[0].UserID}, nil)
	})
	return storeErr(s.logger, "cancel booking", err)
}

// AddToGroup adds req to an existing booking group over the group's window.
// A line for the same item or kit grows in place; otherwise a new reservation
// joins the group. Stock is verified under lock exactly as at checkout.
func (s *BookingService) AddToGroup(ctx context.Context, tenantID int64, viewer Viewer, groupID string, req RequestedItem) error {
	switch {
	case !req.Type.Valid():
		return validationErr("type", "must be %q or %q", LineTypeItem, LineTypeKit)
	case req.ID <= 0:
		return validationErr("id", "is required")
	case req.Quantity <= 0 || req.Quantity > s.rules.MaxLineQuantity:
		return validationErr("quantity", "must be between 1 and %d", s.rules.StageableQuantity())
	}

	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		res, err := s.editableGroup(ctx, tenantID, viewer, groupID, "change")
		if err != nil {
			return err
		}
		first := res[0]

		if err := verifyOwnership(ctx, s.store, s.logger, viewer.UserID, tenantID, []RequestedItem{req}); err != nil {
			return err
		}
		w := Window{Start: first.Start, End: first.End}
		if _, err := s.availability.VerifyAndLock(ctx, tenantID, []RequestedItem{req}, w, viewer.UserID); err != nil {
			return err
		}

		// Re-read under the item locks so a concurrent edit of the same line
		// is merged rather than overwritten.
		if res, err = s.confirmedGroup(ctx, tenantID, groupID); err != nil {
			return err
		}
		var existing *Reservation
		for i := range res {
			if ref := res[i].Requested(); ref.Type == req.Type && ref.ID == req.ID {
				existing = &res[i]
				break
			}
		}
		total := req.Quantity
		if existing != nil {
			total += existing.Quantity
		}
		if total > s.rules.StageableQuantity() {
			return capacityErr("line_quantity", s.rules.StageableQuantity(), "a line cannot exceed %d units", s.rules.StageableQuantity())
		}

		now := s.clock.Now()
		if existing != nil {
			if err := s.store.UpdateReservationQuantity(ctx, tenantID, existing.ID, total); err != nil {
				return storeErr(s.logger, "update reservation", err)
			}
		} else {
			r := &Reservation{
				TenantID:       tenantID,
				UserID:         first.UserID,
				Quantity:       req.Quantity,
				Start:          first.Start,
				End:            first.End,
				Status:         ReservationConfirmed,
				BookingGroupID: groupID,
				CreatedAt:      now,
			}
			id := req.ID
			if req.Type == LineTypeKit {
				r.KitID = &id
			} else {
				r.ItemID = &id
			}
			if err := s.store.InsertReservation(ctx, r); err != nil {
				return storeErr(s.logger, "insert reservation", err)
			}
		}

		return s.record(ctx, tenantID, viewer, first, AuditActionUpdate, EventReservationUpdated,
			map[string]any{"added": auditLine{Type: req.Type, ID: req.ID, Quantity: req.Quantity}, "owner_id": first.UserID},
			[]RequestedItem{{Type: req.Type, ID: req.ID, Quantity: total}})
	})
	return storeErr(s.logger, "add to booking", err)
}

// RemoveFromGroup takes quantity units off one reservation of the group. A
// reservation brought to zero is cancelled; the group itself survives until
// its last reservation goes. It reports how many reservations remain.
func (s *BookingService) RemoveFromGroup(ctx context.Context, tenantID int64, viewer Viewer, groupID string, reservationID int64, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, validationErr("quantity", "must be at least 1")
	}

	remaining := 0
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		res, err := s.editableGroup(ctx, tenantID, viewer, groupID, "change")
		if err != nil {
			return err
		}
		idx := slices.IndexFunc(res, func(r Reservation) bool { return r.ID == reservationID })
		if idx < 0 {
			return validationErr("reservation_id", "reservation %d is not part of booking %s", reservationID, groupID)
		}
		target := res[idx]

		left := target.Quantity - quantity
		remaining = len(res)
		if left > 0 {
			if err := s.store.UpdateReservationQuantity(ctx, tenantID, target.ID, left); err != nil {
				return storeErr(s.logger, "update reservation", err)
			}
		} else {
			left = 0
			if err := s.store.CancelReservation(ctx, tenantID, target.ID); err != nil {
				return storeErr(s.logger, "cancel reservation", err)
			}
			remaining--
		}

		req := target.Requested()
		return s.record(ctx, tenantID, viewer, res[0], AuditActionUpdate, EventReservationUpdated,
			map[string]any{"removed": auditLine{Type: req.Type, ID: req.ID, Quantity: target.Quantity - left}, "owner_id": target.UserID},
			[]RequestedItem{{Type: req.Type, ID: req.ID, Quantity: left}})
	})
	if err != nil {
		return 0, storeErr(s.logger, "remove from booking", err)
	}
	return remaining, nil
}

// editableGroup loads the group and refuses viewers who are neither the owner
// nor an admin.
func (s *BookingService) editableGroup(ctx context.Context, tenantID int64, viewer Viewer, groupID, action string) ([]Reservation, error) {
	res, err := s.confirmedGroup(ctx, tenantID, groupID)
	if err != nil {
		return nil, err
	}
	if !viewer.CanEdit(res[0].UserID) {
		s.logger.Warn("booking "+action+" refused",
			zap.String("event", "security"),
			zap.Int64("tenant_id", tenantID),
			zap.Int64("user_id", viewer.UserID),
			zap.String("booking_group_id", groupID),
		)
		return nil, &ForbiddenError{Action: action}
	}
	return res, nil
}

// record writes the audit entry and the outbox event of one booking change.
func (s *BookingService) record(ctx context.Context, tenantID int64, viewer Viewer, first Reservation, action, eventType string, details map[string]any, lines []RequestedItem) error {
	now := s.clock.Now()
	raw, err := json.Marshal(details)
	if err != nil {
		return err
	}
	if err := s.store.InsertAudit(ctx, &AuditEntry{
		TenantID:    tenantID,
		UserID:      viewer.UserID,
		Action:      action,
		TargetTable: AuditTableBookings,
		RecordID:    first.BookingGroupID,
		Details:     raw,
		CreatedAt:   now,
	}); err != nil {
		return storeErr(s.logger, "write audit", err)
	}

	payload, err := json.Marshal(BookingEvent{
		BookingGroupID: first.BookingGroupID,
		TenantID:       tenantID,
		UserID:         first.UserID,
		Start:          first.Start,
		End:            first.End,
		Lines:          lines,
		OccurredAt:     now,
	})
	if err != nil {
		return err
	}
	if err := s.store.EnqueueEvent(ctx, &OutboxEvent{
		TenantID:    tenantID,
		EventType:   eventType,
		AggregateID: first.BookingGroupID,
		Payload:     payload,
		CreatedAt:   now,
	}); err != nil {
		return storeErr(s.logger, "enqueue event", err)
	}
	return nil
}

func (s *BookingService) confirmedGroup(ctx context.Context, tenantID int64, groupID string) ([]Reservation, error) {
	if groupID == "" {
		return nil, validationErr("booking_group_id", "is required")
	}
	res, err := s.store.ReservationsByGroup(ctx, tenantID, groupID)
	if err != nil {
		return nil, storeErr(s.logger, "load booking", err)
	}
	res = slices.DeleteFunc(res, func(r Reservation) bool { return r.Status != ReservationConfirmed })
	if len(res) == 0 {
		return nil, validationErr("booking_group_id", "booking %s not found", groupID)
	}
	return res, nil
}

// MonthCalendar returns the number of distinct confirmed booking groups per
// start day of the given month, keyed by YYYY-MM-DD.
func (s *BookingService) MonthCalendar(ctx context.Context, tenantID int64, year int, month time.Month) (map[string]int, error) {
	if month < time.January || month > time.December {
		return nil, validationErr("month", "must be between 1 and 12")
	}
	if year < 1970 || year > 9999 {
		return nil, validationErr("year", "out of range")
	}
	from := time.Date(year, month, 1, 0, 0, 0, 0, s.rules.location())
	to := from.AddDate(0, 1, 0)
	res, err := s.store.ConfirmedStartingBetween(ctx, tenantID, from, to)
	if err != nil {
		return nil, storeErr(s.logger, "load month bookings", err)
	}

	groups := make(map[string]map[string]struct{})
	for _, r := range res {
		day := s.rules.FormatDate(r.Start)
		if groups[day] == nil {
			groups[day] = make(map[string]struct{})
		}
		groups[day][r.BookingGroupID] = struct{}{}
	}
	out := make(map[string]int, len(groups))
	for day, ids := range groups {
		out[day] = len(ids)
	}
	return out, nil
}

// DayBookings lists the confirmed booking groups starting on date, ordered by
// start time.
func (s *BookingService) DayBookings(ctx context.Context, tenantID int64, date string) ([]BookingSummary, error) {
	from, err := s.rules.ParseDate(date)
	if err != nil {
		return nil, err
	}
	res, err := s.store.ConfirmedStartingBetween(ctx, tenantID, from, from.AddDate(0, 0, 1))
	if err != nil {
		return nil, storeErr(s.logger, "load day bookings", err)
	}

	idx := make(map[string]int)
	var out []BookingSummary
	starts := make(map[string]time.Time)
	for _, r := range res {
		i, ok := idx[r.BookingGroupID]
		if !ok {
			i = len(out)
			idx[r.BookingGroupID] = i
			starts[r.BookingGroupID] = r.Start
			out = append(out, BookingSummary{
				ID:     r.BookingGroupID,
				UserID: r.UserID,
				Start:  s.rules.FormatClock(r.Start),
				End:    s.rules.FormatClock(r.End),
			})
		}
		out[i].Lines++
	}
	slices.SortStableFunc(out, func(a, b BookingSummary) int {
		return starts[a.ID].Compare(starts[b.ID])
	})
	if out == nil {
		out = []BookingSummary{}
	}
	return out, nil
}
