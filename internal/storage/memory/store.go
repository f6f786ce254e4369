// Package memory is an in-process implementation of core.Store. Transactions
// are serialised by one mutex and run against a copy of the state that replaces
// the committed state only when the transaction function succeeds.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"lab-booking/internal/core"
)

type state struct {
	items        map[int64]core.Item
	kits         map[int64]core.Kit
	reservations []core.Reservation
	carts        map[string]core.Cart
	lines        []core.CartLine
	audit        []core.AuditEntry
	outbox       []core.OutboxEvent

	nextItem, nextKit, nextReservation, nextLine, nextAudit, nextEvent int64
}

func newState() *state {
	return &state{
		items: make(map[int64]core.Item),
		kits:  make(map[int64]core.Kit),
		carts: make(map[string]core.Cart),
	}
}

func (s *state) clone() *state {
	c := *s
	c.items = make(map[int64]core.Item, len(s.items))
	for k, v := range s.items {
		c.items[k] = v
	}
	c.kits = make(map[int64]core.Kit, len(s.kits))
	for k, v := range s.kits {
		v.Components = slices.Clone(v.Components)
		c.kits[k] = v
	}
	c.carts = make(map[string]core.Cart, len(s.carts))
	for k, v := range s.carts {
		c.carts[k] = v
	}
	c.reservations = slices.Clone(s.reservations)
	c.lines = slices.Clone(s.lines)
	c.audit = slices.Clone(s.audit)
	c.outbox = slices.Clone(s.outbox)
	return &c
}

type txKey struct{}

type memTx struct {
	st *state
}

// Store is a mutex-serialised in-memory core.Store.
type Store struct {
	mu       sync.Mutex
	st       *state
	extMu    sync.Mutex
	locked   map[int64]bool
	failures map[string]error
}

var _ core.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		st:       newState(),
		locked:   make(map[int64]bool),
		failures: make(map[string]error),
	}
}

// WithTx runs fn against a private copy of the state and commits the copy only
// when fn returns nil. Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*memTx); ok {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{st: s.st.clone()}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := s.failure("Commit"); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// with runs fn against the transaction state when ctx carries one, otherwise
// against the committed state under the store mutex.
func (s *Store) with(ctx context.Context, fn func(st *state) error) error {
	if tx, ok := ctx.Value(txKey{}).(*memTx); ok {
		return fn(tx.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) failure(op string) error {
	s.extMu.Lock()
	defer s.extMu.Unlock()
	return s.failures[op]
}

// ── Test hooks ────────────────────────────────────────────────────────────────

// HoldLock marks an item as locked by another transaction; LockItemsNoWait
// then fails with core.ErrLockNotAvailable until ReleaseLock is called.
func (s *Store) HoldLock(itemID int64) {
	s.extMu.Lock()
	s.locked[itemID] = true
	s.extMu.Unlock()
}

// ReleaseLock clears a lock set by HoldLock.
func (s *Store) ReleaseLock(itemID int64) {
	s.extMu.Lock()
	delete(s.locked, itemID)
	s.extMu.Unlock()
}

// FailOn makes the named method return err until cleared with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.extMu.Lock()
	defer s.extMu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

// SeedItem stores it, assigning an id when zero.
func (s *Store) SeedItem(it core.Item) core.Item {
	_ = s.with(context.Background(), func(st *state) error {
		if it.ID == 0 {
			st.nextItem++
			it.ID = st.nextItem
		} else if it.ID > st.nextItem {
			st.nextItem = it.ID
		}
		st.items[it.ID] = it
		return nil
	})
	return it
}

// SeedKit stores k, assigning an id when zero.
func (s *Store) SeedKit(k core.Kit) core.Kit {
	_ = s.with(context.Background(), func(st *state) error {
		if k.ID == 0 {
			st.nextKit++
			k.ID = st.nextKit
		} else if k.ID > st.nextKit {
			st.nextKit = k.ID
		}
		k.Components = slices.Clone(k.Components)
		st.kits[k.ID] = k
		return nil
	})
	return k
}

// SeedReservation stores r as given, assigning an id.
func (s *Store) SeedReservation(r core.Reservation) core.Reservation {
	_ = s.with(context.Background(), func(st *state) error {
		st.nextReservation++
		r.ID = st.nextReservation
		if r.Status == "" {
			r.Status = core.ReservationConfirmed
		}
		st.reservations = append(st.reservations, r)
		return nil
	})
	return r
}

// Reservations returns a copy of every committed reservation.
func (s *Store) Reservations() []core.Reservation {
	var out []core.Reservation
	_ = s.with(context.Background(), func(st *state) error {
		out = slices.Clone(st.reservations)
		return nil
	})
	return out
}

// AuditEntries returns a copy of every committed audit entry.
func (s *Store) AuditEntries() []core.AuditEntry {
	var out []core.AuditEntry
	_ = s.with(context.Background(), func(st *state) error {
		out = slices.Clone(st.audit)
		return nil
	})
	return out
}

// Events returns a copy of every committed outbox event.
func (s *Store) Events() []core.OutboxEvent {
	var out []core.OutboxEvent
	_ = s.with(context.Background(), func(st *state) error {
		out = slices.Clone(st.outbox)
		return nil
	})
	return out
}

// Cart returns a committed cart by id.
func (s *Store) Cart(id string) (core.Cart, bool) {
	var c core.Cart
	var ok bool
	_ = s.with(context.Background(), func(st *state) error {
		c, ok = st.carts[id]
		return nil
	})
	return c, ok
}

// ── Catalog ───────────────────────────────────────────────────────────────────

func (s *Store) ListItems(ctx context.Context, tenantID int64) ([]core.Item, error) {
	if err := s.failure("ListItems"); err != nil {
		return nil, err
	}
	var out []core.Item
	err := s.with(ctx, func(st *state) error {
		for _, it := range st.items {
			if it.TenantID == tenantID {
				out = append(out, it)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (s *Store) ListKits(ctx context.Context, tenantID int64) ([]core.Kit, error) {
	if err := s.failure("ListKits"); err != nil {
		return nil, err
	}
	var out []core.Kit
	err := s.with(ctx, func(st *state) error {
		for _, k := range st.kits {
			if k.TenantID == tenantID {
				k.Components = slices.Clone(k.Components)
				out = append(out, k)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (s *Store) ItemsByIDs(ctx context.Context, tenantID int64, ids []int64) ([]core.Item, error) {
	if err := s.failure("ItemsByIDs"); err != nil {
		return nil, err
	}
	var out []core.Item
	err := s.with(ctx, func(st *state) error {
		for _, id := range ids {
			if it, ok := st.items[id]; ok && it.TenantID == tenantID {
				out = append(out, it)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) KitsByIDs(ctx context.Context, tenantID int64, ids []int64) ([]core.Kit, error) {
	if err := s.failure("KitsByIDs"); err != nil {
		return nil, err
	}
	var out []core.Kit
	err := s.with(ctx, func(st *state) error {
		for _, id := range ids {
			if k, ok := st.kits[id]; ok && k.TenantID == tenantID {
				k.Components = slices.Clone(k.Components)
				out = append(out, k)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) LockItemsNoWait(ctx context.Context, tenantID int64, ids []int64) ([]core.Item, error) {
	if err := s.failure("LockItemsNoWait"); err != nil {
		return nil, err
	}
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	var out []core.Item
	err := s.with(ctx, func(st *state) error {
		for _, id := range sorted {
			it, ok := st.items[id]
			if !ok || it.TenantID != tenantID {
				continue
			}
			s.extMu.Lock()
			held := s.locked[id]
			s.extMu.Unlock()
			if held {
				return core.ErrLockNotAvailable
			}
			out = append(out, it)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ── Reservations ──────────────────────────────────────────────────────────────

func (s *Store) ActiveOverlaps(ctx context.Context, tenantID int64, start, end time.Time) ([]core.Reservation, error) {
	if err := s.failure("ActiveOverlaps"); err != nil {
		return nil, err
	}
	var out []core.Reservation
	err := s.with(ctx, func(st *state) error {
		for _, r := range st.reservations {
			if r.TenantID == tenantID && r.Status == core.ReservationConfirmed &&
				r.Start.Before(end) && r.End.After(start) {
				out = append(out, r)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) InsertReservation(ctx context.Context, r *core.Reservation) error {
	if err := s.failure("InsertReservation"); err != nil {
		return err
	}
	return s.with(ctx, func(st *state) error {
		st.nextReservation++
		r.ID = st.nextReservation
		st.reservations = append(st.reservations, *r)
		return nil
	})
}

func (s *Store) ReservationsByGroup(ctx context.Context, tenantID int64, groupID string) ([]core.Reservation, error) {
	var out []core.Reservation
	err := s.with(ctx, func(st *state) error {
		for _, r := range st.reservations {
			if r.TenantID == tenantID && r.BookingGroupID == groupID {
				out = append(out, r)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) CancelGroup(ctx context.Context, tenantID int64, groupID string) (int64, error) {
	var n int64
	err := s.with(ctx, func(st *state) error {
		for i := range st.reservations {
			r := &st.reservations[i]
			if r.TenantID == tenantID && r.BookingGroupID == groupID && r.Status == core.ReservationConfirmed {
				r.Status = core.ReservationCancelled
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *Store) UpdateReservationQuantity(ctx context.Context, tenantID, id int64, quantity int) error {
	if err := s.failure("UpdateReservationQuantity"); err != nil {
		return err
	}
	return s.with(ctx, func(st *state) error {
		for i := range st.reservations {
			r := &st.reservations[i]
			if r.ID == id && r.TenantID == tenantID {
				r.Quantity = quantity
				return nil
			}
		}
		return fmt.Errorf("reservation %d not found", id)
	})
}

func (s *Store) CancelReservation(ctx context.Context, tenantID, id int64) error {
	return s.with(ctx, func(st *state) error {
		for i := range st.reservations {
			r := &st.reservations[i]
			if r.ID == id && r.TenantID == tenantID {
				r.Status = core.ReservationCancelled
				return nil
			}
		}
		return fmt.Errorf("reservation %d not found", id)
	})
}

func (s *Store) ConfirmedStartingBetween(ctx context.Context, tenantID int64, from, to time.Time) ([]core.Reservation, error) {
	var out []core.Reservation
	err := s.with(ctx, func(st *state) error {
		for _, r := range st.reservations {
			if r.TenantID == tenantID && r.Status == core.ReservationConfirmed &&
				!r.Start.Before(from) && r.Start.Before(to) {
				out = append(out, r)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

// ── Carts ─────────────────────────────────────────────────────────────────────

func (s *Store) FindActiveCart(ctx context.Context, userID, tenantID int64, forUpdate bool) (*core.Cart, error) {
	if err := s.failure("FindActiveCart"); err != nil {
		return nil, err
	}
	var found *core.Cart
	err := s.with(ctx, func(st *state) error {
		for _, c := range st.carts {
			if c.UserID != userID || c.TenantID != tenantID || c.Status != core.CartActive {
				continue
			}
			if found == nil || c.CreatedAt.After(found.CreatedAt) {
				cc := c
				found = &cc
			}
		}
		return nil
	})
	return found, err
}

// CreateCart mirrors the one-active-cart-per-user index of the SQL schema.
func (s *Store) CreateCart(ctx context.Context, c *core.Cart) error {
	return s.with(ctx, func(st *state) error {
		if c.Status == core.CartActive {
			for _, other := range st.carts {
				if other.UserID == c.UserID && other.TenantID == c.TenantID && other.Status == core.CartActive {
					return &core.ConcurrencyError{Op: "create cart"}
				}
			}
		}
		st.carts[c.ID] = *c
		return nil
	})
}

func (s *Store) UpdateCart(ctx context.Context, cartID, status string, expiresAt time.Time) error {
	return s.with(ctx, func(st *state) error {
		c, ok := st.carts[cartID]
		if !ok {
			return nil
		}
		c.Status = status
		c.ExpiresAt = expiresAt
		st.carts[cartID] = c
		return nil
	})
}

func (s *Store) CartLines(ctx context.Context, cartID string) ([]core.CartLine, error) {
	if err := s.failure("CartLines"); err != nil {
		return nil, err
	}
	var out []core.CartLine
	err := s.with(ctx, func(st *state) error {
		for _, l := range st.lines {
			if l.CartID == cartID {
				out = append(out, l)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) InsertCartLine(ctx context.Context, l *core.CartLine) error {
	if err := s.failure("InsertCartLine"); err != nil {
		return err
	}
	return s.with(ctx, func(st *state) error {
		st.nextLine++
		l.ID = st.nextLine
		st.lines = append(st.lines, *l)
		return nil
	})
}

func (s *Store) UpdateCartLineQuantity(ctx context.Context, lineID int64, quantity int) error {
	return s.with(ctx, func(st *state) error {
		for i := range st.lines {
			if st.lines[i].ID == lineID {
				st.lines[i].Quantity = quantity
			}
		}
		return nil
	})
}

func (s *Store) DeleteCartLine(ctx context.Context, cartID string, lineID int64) (bool, error) {
	var deleted bool
	err := s.with(ctx, func(st *state) error {
		st.lines = slices.DeleteFunc(st.lines, func(l core.CartLine) bool {
			if l.ID == lineID && l.CartID == cartID {
				deleted = true
				return true
			}
			return false
		})
		return nil
	})
	return deleted, err
}

func (s *Store) DeleteCartLines(ctx context.Context, cartID string) (int64, error) {
	var n int64
	err := s.with(ctx, func(st *state) error {
		st.lines = slices.DeleteFunc(st.lines, func(l core.CartLine) bool {
			if l.CartID == cartID {
				n++
				return true
			}
			return false
		})
		return nil
	})
	return n, err
}

// ── Audit and outbox ──────────────────────────────────────────────────────────

func (s *Store) InsertAudit(ctx context.Context, e *core.AuditEntry) error {
	if err := s.failure("InsertAudit"); err != nil {
		return err
	}
	return s.with(ctx, func(st *state) error {
		st.nextAudit++
		e.ID = st.nextAudit
		st.audit = append(st.audit, *e)
		return nil
	})
}

func (s *Store) EnqueueEvent(ctx context.Context, e *core.OutboxEvent) error {
	return s.with(ctx, func(st *state) error {
		st.nextEvent++
		e.ID = st.nextEvent
		st.outbox = append(st.outbox, *e)
		return nil
	})
}

// UnpublishedEvents returns up to limit events not yet published, oldest first.
func (s *Store) UnpublishedEvents(ctx context.Context, limit int) ([]core.OutboxEvent, error) {
	var out []core.OutboxEvent
	err := s.with(ctx, func(st *state) error {
		for _, e := range st.outbox {
			if e.PublishedAt == nil {
				out = append(out, e)
				if len(out) == limit {
					break
				}
			}
		}
		return nil
	})
	return out, err
}

// MarkPublished stamps the given events as published at t.
func (s *Store) MarkPublished(ctx context.Context, ids []int64, t time.Time) error {
	return s.with(ctx, func(st *state) error {
		for i := range st.outbox {
			if slices.Contains(ids, st.outbox[i].ID) {
				ts := t
				st.outbox[i].PublishedAt = &ts
			}
		}
		return nil
	})
}
