package core

import (
	"context"
	"slices"
	"time"

	"lab-booking/internal/clock"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AddItemInput is one request to stage an item or kit for a slot.
type AddItemInput struct {
	Type     LineType
	ID       int64
	Quantity int
	Date     string
	Start    string
	End      string
}

// CartLineView is a cart line enriched with display data.
type CartLineView struct {
	LineID   int64    `json:"line_id"`
	Type     LineType `json:"type"`
	RefID    int64    `json:"ref_id"`
	Name     string   `json:"name"`
	ImageURL string   `json:"image_url,omitempty"`
	Quantity int      `json:"quantity"`
	Date     string   `json:"date"`
	Start    string   `json:"start"`
	End      string   `json:"end"`
}

// CartSnapshot is the display view of a cart. Total counts distinct slots,
// not lines or units.
type CartSnapshot struct {
	CartID    string         `json:"cart_id,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Lines     []CartLineView `json:"lines"`
	Total     int            `json:"total"`
}

// CartService manages a user's staging cart: lazy expiry, caps, merging of
// identical lines and advisory availability checks.
type CartService struct {
	store        Store
	availability *AvailabilityEngine
	rules        Rules
	clock        clock.Clock
	logger       *zap.Logger
	newID        func() string
}

// NewCartService constructs a CartService.
func NewCartService(store Store, availability *AvailabilityEngine, rules Rules, clk clock.Clock, logger *zap.Logger) *CartService {
	return &CartService{
		store:        store,
		availability: availability,
		rules:        rules,
		clock:        clk,
		logger:       logger,
		newID:        uuid.NewString,
	}
}

// GetOrCreateActive returns the user's active cart. An expired cart is marked
// expired and treated as absent. A found cart has its expiry refreshed when the
// TTL is sliding. Returns nil without error when no cart exists and
// createIfMissing is false. exclusive locks the cart row until the enclosing
// transaction ends.
func (s *CartService) GetOrCreateActive(ctx context.Context, userID, tenantID int64, createIfMissing, exclusive bool) (*Cart, error) {
	now := s.clock.Now()
	cart, err := s.store.FindActiveCart(ctx, userID, tenantID, exclusive)
	if err != nil {
		return nil, storeErr(s.logger, "load cart", err)
	}

	if cart != nil && !cart.ExpiresAt.After(now) {
		if err := s.store.UpdateCart(ctx, cart.ID, CartExpired, cart.ExpiresAt); err != nil {
			return nil, storeErr(s.logger, "expire cart", err)
		}
		s.logger.Debug("cart expired", zap.String("cart_id", cart.ID), zap.Int64("user_id", userID))
		cart = nil
	}

	if cart == nil {
		if !createIfMissing {
			return nil, nil
		}
		cart = &Cart{
			ID:        s.newID(),
			UserID:    userID,
			TenantID:  tenantID,
			Status:    CartActive,
			ExpiresAt: now.Add(s.rules.CartTTL),
			CreatedAt: now,
		}
		if err := s.store.CreateCart(ctx, cart); err != nil {
			return nil, storeErr(s.logger, "create cart", err)
		}
		return cart, nil
	}

	if s.rules.SlidingCartTTL {
		cart.ExpiresAt = now.Add(s.rules.CartTTL)
		if err := s.store.UpdateCart(ctx, cart.ID, CartActive, cart.ExpiresAt); err != nil {
			return nil, storeErr(s.logger, "refresh cart", err)
		}
	}
	return cart, nil
}

// AddItem stages a line in the user's cart, merging it into an identical
// (type, id, slot) line when one exists. Availability is checked without
// locks against confirmed reservations plus the cart's other overlapping lines.
func (s *CartService) AddItem(ctx context.Context, userID, tenantID int64, in AddItemInput) (*CartSnapshot, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	slot := SlotKey{Date: in.Date, Start: in.Start, End: in.End}
	w, err := s.rules.ParseSlot(slot)
	if err != nil {
		return nil, err
	}
	if err := s.availability.ValidateWindow(w); err != nil {
		return nil, err
	}

	var snap *CartSnapshot
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		if err := s.checkOwnership(ctx, userID, tenantID, []RequestedItem{{Type: in.Type, ID: in.ID, Quantity: in.Quantity}}); err != nil {
			return err
		}
		cart, err := s.GetOrCreateActive(ctx, userID, tenantID, true, false)
		if err != nil {
			return err
		}
		lines, err := s.store.CartLines(ctx, cart.ID)
		if err != nil {
			return storeErr(s.logger, "load cart lines", err)
		}

		var existing *CartLine
		slots := make(map[SlotKey]struct{}, len(lines))
		for i := range lines {
			l := &lines[i]
			slots[l.Slot()] = struct{}{}
			if l.Type == in.Type && l.RefID == in.ID && l.Slot() == slot {
				existing = l
			}
		}
		if existing == nil && len(lines) >= s.rules.MaxCartLines {
			return capacityErr("cart_lines", s.rules.MaxCartLines, "a cart holds at most %d lines", s.rules.MaxCartLines)
		}
		if _, ok := slots[slot]; !ok && len(slots) >= s.rules.MaxCartSlots {
			return capacityErr("cart_slots", s.rules.MaxCartSlots, "a cart holds at most %d distinct time slots", s.rules.MaxCartSlots)
		}

		total := in.Quantity
		if existing != nil {
			total += existing.Quantity
		}
		if total > s.rules.MaxLineQuantity {
			return capacityErr("line_quantity", s.rules.StageableQuantity(), "a line cannot exceed %d units", s.rules.StageableQuantity())
		}

		if err := s.checkAvailability(ctx, userID, tenantID, w, in, total, lines, existing); err != nil {
			return err
		}

		if existing != nil {
			if err := s.store.UpdateCartLineQuantity(ctx, existing.ID, total); err != nil {
				return storeErr(s.logger, "update cart line", err)
			}
		} else {
			line := &CartLine{
				CartID:    cart.ID,
				Type:      in.Type,
				RefID:     in.ID,
				Quantity:  in.Quantity,
				Date:      in.Date,
				Start:     in.Start,
				End:       in.End,
				CreatedAt: s.clock.Now(),
			}
			if err := s.store.InsertCartLine(ctx, line); err != nil {
				return storeErr(s.logger, "insert cart line", err)
			}
		}

		snap, err = s.snapshot(ctx, tenantID, cart)
		return err
	})
	if err != nil {
		return nil, storeErr(s.logger, "add cart item", err)
	}
	return snap, nil
}

func (s *CartService) validateInput(in AddItemInput) error {
	switch {
	case in.Type == "":
		return validationErr("type", "is required")
	case !in.Type.Valid():
		return validationErr("type", "must be %q or %q", LineTypeItem, LineTypeKit)
	case in.ID <= 0:
		return validationErr("id", "is required")
	case in.Quantity <= 0 || in.Quantity > s.rules.MaxLineQuantity:
		return validationErr("quantity", "must be between 1 and %d", s.rules.StageableQuantity())
	case in.Date == "":
		return validationErr("date", "is required")
	case in.Start == "":
		return validationErr("start", "is required")
	case in.End == "":
		return validationErr("end", "is required")
	}
	return nil
}

// checkOwnership verifies every referenced item and kit exists in the tenant.
func (s *CartService) checkOwnership(ctx context.Context, userID, tenantID int64, refs []RequestedItem) error {
	return verifyOwnership(ctx, s.store, s.logger, userID, tenantID, refs)
}

// checkAvailability is the advisory check run before staging a line. total is
// the line's quantity after a possible merge.
func (s *CartService) checkAvailability(ctx context.Context, userID, tenantID int64, w Window, in AddItemInput, total int, lines []CartLine, existing *CartLine) error {
	if _, err := s.availability.resolver.decompose(ctx, []RequestedItem{{Type: in.Type, ID: in.ID, Quantity: total}}, tenantID, userID, true); err != nil {
		return err
	}

	var pending []RequestedItem
	for _, l := range lines {
		if existing != nil && l.ID == existing.ID {
			continue
		}
		lw, err := s.rules.ParseSlot(l.Slot())
		if err != nil || !lw.Overlaps(w) {
			continue
		}
		pending = append(pending, l.Requested())
	}

	avail, err := s.availability.computeAvailability(ctx, tenantID, userID, w, pending)
	if err != nil {
		return err
	}

	switch in.Type {
	case LineTypeItem:
		a := avail.Items[in.ID]
		if a.Available < total {
			return &AvailabilityError{RefType: LineTypeItem, RefID: in.ID, Name: a.Name, Requested: total, Available: a.Available}
		}
	case LineTypeKit:
		a := avail.Kits[in.ID]
		if a.Available < total {
			return &AvailabilityError{RefType: LineTypeKit, RefID: in.ID, Name: a.Name, Requested: total, Available: a.Available}
		}
	}
	return nil
}

// RemoveItem deletes one line from the user's active cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, tenantID, lineID int64) error {
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		cart, err := s.GetOrCreateActive(ctx, userID, tenantID, false, false)
		if err != nil {
			return err
		}
		if cart == nil {
			return validationErr("cart", "no active cart")
		}
		ok, err := s.store.DeleteCartLine(ctx, cart.ID, lineID)
		if err != nil {
			return storeErr(s.logger, "delete cart line", err)
		}
		if !ok {
			s.logger.Warn("cart line not owned by caller",
				zap.String("event", "security"),
				zap.Int64("tenant_id", tenantID),
				zap.Int64("user_id", userID),
				zap.Int64("line_id", lineID),
			)
			return validationErr("line_id", "line %d is not in your cart", lineID)
		}
		return nil
	})
	return storeErr(s.logger, "remove cart item", err)
}

// Clear deletes every line of the user's active cart. A missing cart is not an error.
func (s *CartService) Clear(ctx context.Context, userID, tenantID int64) error {
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		cart, err := s.GetOrCreateActive(ctx, userID, tenantID, false, false)
		if err != nil || cart == nil {
			return err
		}
		if _, err := s.store.DeleteCartLines(ctx, cart.ID); err != nil {
			return storeErr(s.logger, "clear cart", err)
		}
		return nil
	})
	return storeErr(s.logger, "clear cart", err)
}

// GetContents returns the display view of the user's active cart. A missing or
// expired cart yields an empty snapshot.
func (s *CartService) GetContents(ctx context.Context, userID, tenantID int64) (*CartSnapshot, error) {
	var snap *CartSnapshot
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		cart, err := s.GetOrCreateActive(ctx, userID, tenantID, false, false)
		if err != nil {
			return err
		}
		if cart == nil {
			snap = &CartSnapshot{Lines: []CartLineView{}}
			return nil
		}
		snap, err = s.snapshot(ctx, tenantID, cart)
		return err
	})
	if err != nil {
		return nil, storeErr(s.logger, "get cart contents", err)
	}
	return snap, nil
}

// PendingLines returns the user's active cart lines whose slot overlaps w, as
// request entries. Used to show availability net of the user's own cart.
func (s *CartService) PendingLines(ctx context.Context, userID, tenantID int64, w Window) ([]RequestedItem, error) {
	var pending []RequestedItem
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		cart, err := s.GetOrCreateActive(ctx, userID, tenantID, false, false)
		if err != nil || cart == nil {
			return err
		}
		lines, err := s.store.CartLines(ctx, cart.ID)
		if err != nil {
			return storeErr(s.logger, "load cart lines", err)
		}
		for _, l := range lines {
			lw, err := s.rules.ParseSlot(l.Slot())
			if err != nil || !lw.Overlaps(w) {
				continue
			}
			pending = append(pending, l.Requested())
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(s.logger, "load pending lines", err)
	}
	return pending, nil
}

func (s *CartService) snapshot(ctx context.Context, tenantID int64, cart *Cart) (*CartSnapshot, error) {
	lines, err := s.store.CartLines(ctx, cart.ID)
	if err != nil {
		return nil, storeErr(s.logger, "load cart lines", err)
	}
	names, err := loadDisplayNames(ctx, s.store, tenantID, lines)
	if err != nil {
		return nil, storeErr(s.logger, "load cart names", err)
	}

	expires := cart.ExpiresAt
	snap := &CartSnapshot{CartID: cart.ID, ExpiresAt: &expires, Lines: make([]CartLineView, 0, len(lines))}
	slots := make(map[SlotKey]struct{})
	for _, l := range lines {
		d := names.lookup(l.Type, l.RefID)
		snap.Lines = append(snap.Lines, CartLineView{
			LineID:   l.ID,
			Type:     l.Type,
			RefID:    l.RefID,
			Name:     d.name,
			ImageURL: d.image,
			Quantity: l.Quantity,
			Date:     l.Date,
			Start:    l.Start,
			End:      l.End,
		})
		slots[l.Slot()] = struct{}{}
	}
	slices.SortStableFunc(snap.Lines, func(a, b CartLineView) int {
		ka := SlotKey{Date: a.Date, Start: a.Start, End: a.End}
		kb := SlotKey{Date: b.Date, Start: b.Start, End: b.End}
		switch {
		case ka.Less(kb):
			return -1
		case kb.Less(ka):
			return 1
		}
		return 0
	})
	snap.Total = len(slots)
	return snap, nil
}
