package core

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"lab-booking/internal/clock"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Audit and event identifiers written by checkout and booking changes.
const (
	AuditActionCheckout = "CHECKOUT"
	AuditActionCancel   = "CANCEL"
	AuditActionUpdate   = "UPDATE"
	AuditTableBookings  = "reservations"

	EventReservationConfirmed = "reservation.confirmed"
	EventReservationCancelled = "reservation.cancelled"
	EventReservationUpdated   = "reservation.updated"
)

// CheckoutResult lists the booking groups created by one checkout, one per slot.
type CheckoutResult struct {
	BookingGroups    []BookingGroupRef `json:"booking_groups"`
	ReservationCount int               `json:"reservation_count"`
}

// BookingGroupRef identifies the reservations created for one slot.
type BookingGroupRef struct {
	ID    string  `json:"booking_group_id"`
	Slot  SlotKey `json:"slot"`
	Lines int     `json:"lines"`
}

// BookingEvent is the payload of reservation outbox events.
type BookingEvent struct {
	BookingGroupID string          `json:"booking_group_id"`
	TenantID       int64           `json:"tenant_id"`
	UserID         int64           `json:"user_id"`
	Start          time.Time       `json:"start"`
	End            time.Time       `json:"end"`
	Lines          []RequestedItem `json:"lines,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

type slotGroup struct {
	key   SlotKey
	lines []CartLine
}

// CheckoutService converts a cart into confirmed reservations in one transaction.
type CheckoutService struct {
	store        Store
	carts        *CartService
	availability *AvailabilityEngine
	rules        Rules
	clock        clock.Clock
	logger       *zap.Logger
	newGroupID   func() string
}

// NewCheckoutService constructs a CheckoutService.
func NewCheckoutService(store Store, carts *CartService, availability *AvailabilityEngine, rules Rules, clk clock.Clock, logger *zap.Logger) *CheckoutService {
	return &CheckoutService{
		store:        store,
		carts:        carts,
		availability: availability,
		rules:        rules,
		clock:        clk,
		logger:       logger,
		newGroupID:   uuid.NewString,
	}
}

// WithGroupIDs replaces the booking group id generator.
func (s *CheckoutService) WithGroupIDs(gen func() string) *CheckoutService {
	s.newGroupID = gen
	return s
}

// Checkout commits every line of the user's active cart. Lines are grouped by
// slot and groups are verified in slot order; any failure rolls back the
// whole checkout and leaves the cart untouched.
func (s *CheckoutService) Checkout(ctx context.Context, userID, tenantID int64) (*CheckoutResult, error) {
	var result *CheckoutResult
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		cart, err := s.carts.GetOrCreateActive(ctx, userID, tenantID, false, true)
		if err != nil {
			return err
		}
		if cart == nil {
			return validationErr("cart", "cart empty or expired")
		}
		lines, err := s.store.CartLines(ctx, cart.ID)
		if err != nil {
			return storeErr(s.logger, "load cart lines", err)
		}
		if len(lines) == 0 {
			return validationErr("cart", "cart empty or expired")
		}

		now := s.clock.Now()
		result = &CheckoutResult{}
		var audit []auditGroup
		for _, g := range groupBySlot(lines) {
			ref, ag, err := s.commitGroup(ctx, userID, tenantID, g, now)
			if err != nil {
				return err
			}
			result.BookingGroups = append(result.BookingGroups, ref)
			result.ReservationCount += len(g.lines)
			audit = append(audit, ag)
		}

		if _, err := s.store.DeleteCartLines(ctx, cart.ID); err != nil {
			return storeErr(s.logger, "clear cart", err)
		}

		details, err := json.Marshal(checkoutAudit{Reservations: result.ReservationCount, Groups: audit})
		if err != nil {
			return err
		}
		entry := &AuditEntry{
			TenantID:    tenantID,
			UserID:      userID,
			Action:      AuditActionCheckout,
			TargetTable: AuditTableBookings,
			RecordID:    result.BookingGroups[0].ID,
			Details:     details,
			CreatedAt:   now,
		}
		if err := s.store.InsertAudit(ctx, entry); err != nil {
			return storeErr(s.logger, "write audit", err)
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(s.logger, "checkout", err)
	}

	s.logger.Info("checkout committed",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("user_id", userID),
		zap.Int("groups", len(result.BookingGroups)),
		zap.Int("reservations", result.ReservationCount),
	)
	return result, nil
}

type auditLine struct {
	Type     LineType `json:"type"`
	ID       int64    `json:"id"`
	Quantity int      `json:"quantity"`
}

type auditGroup struct {
	BookingGroupID string      `json:"booking_group_id"`
	Slot           SlotKey     `json:"slot"`
	Lines          []auditLine `json:"lines"`
}

type checkoutAudit struct {
	Reservations int          `json:"reservations"`
	Groups       []auditGroup `json:"groups"`
}

// commitGroup verifies one slot group under lock and inserts its reservations.
// Reservations are written before the next group is verified so overlapping
// slots of the same checkout count against each other.
func (s *CheckoutService) commitGroup(ctx context.Context, userID, tenantID int64, g slotGroup, now time.Time) (BookingGroupRef, auditGroup, error) {
	w, err := s.rules.ParseSlot(g.key)
	if err != nil {
		return BookingGroupRef{}, auditGroup{}, err
	}
	if err := s.availability.ValidateWindow(w); err != nil {
		return BookingGroupRef{}, auditGroup{}, err
	}

	requested := make([]RequestedItem, 0, len(g.lines))
	for _, l := range g.lines {
		requested = append(requested, l.Requested())
	}
	if err := verifyOwnership(ctx, s.store, s.logger, userID, tenantID, requested); err != nil {
		return BookingGroupRef{}, auditGroup{}, err
	}
	if _, err := s.availability.VerifyAndLock(ctx, tenantID, requested, w, userID); err != nil {
		return BookingGroupRef{}, auditGroup{}, err
	}

	groupID := s.newGroupID()
	ag := auditGroup{BookingGroupID: groupID, Slot: g.key}
	for _, l := range g.lines {
		r := &Reservation{
			TenantID:       tenantID,
			UserID:         userID,
			Quantity:       l.Quantity,
			Start:          w.Start,
			End:            w.End,
			Status:         ReservationConfirmed,
			BookingGroupID: groupID,
			CreatedAt:      now,
		}
		id := l.RefID
		if l.Type == LineTypeKit {
			r.KitID = &id
		} else {
			r.ItemID = &id
		}
		if err := s.store.InsertReservation(ctx, r); err != nil {
			return BookingGroupRef{}, auditGroup{}, storeErr(s.logger, "insert reservation", err)
		}
		ag.Lines = append(ag.Lines, auditLine{Type: l.Type, ID: l.RefID, Quantity: l.Quantity})
	}

	payload, err := json.Marshal(BookingEvent{
		BookingGroupID: groupID,
		TenantID:       tenantID,
		UserID:         userID,
		Start:          w.Start,
		End:            w.End,
		Lines:          requested,
		OccurredAt:     now,
	})
	if err != nil {
		return BookingGroupRef{}, auditGroup{}, err
	}
	ev := &OutboxEvent{
		TenantID:    tenantID,
		EventType:   EventReservationConfirmed,
		AggregateID: groupID,
		Payload:     payload,
		CreatedAt:   now,
	}
	if err := s.store.EnqueueEvent(ctx, ev); err != nil {
		return BookingGroupRef{}, auditGroup{}, storeErr(s.logger, "enqueue event", err)
	}

	return BookingGroupRef{ID: groupID, Slot: g.key, Lines: len(g.lines)}, ag, nil
}

// groupBySlot partitions lines by slot key and returns the groups in slot order.
func groupBySlot(lines []CartLine) []slotGroup {
	idx := make(map[SlotKey]int)
	var groups []slotGroup
	for _, l := range lines {
		k := l.Slot()
		i, ok := idx[k]
		if !ok {
			i = len(groups)
			idx[k] = i
			groups = append(groups, slotGroup{key: k})
		}
		groups[i].lines = append(groups[i].lines, l)
	}
	slices.SortFunc(groups, func(a, b slotGroup) int {
		switch {
		case a.key.Less(b.key):
			return -1
		case b.key.Less(a.key):
			return 1
		}
		return 0
	})
	return groups
}
