package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineType distinguishes a base item from a kit in requests, cart lines and reservations.
type LineType string

const (
	LineTypeItem LineType = "item"
	LineTypeKit  LineType = "kit"
)

// Valid reports whether t is one of the known line types.
func (t LineType) Valid() bool {
	return t == LineTypeItem || t == LineTypeKit
}

// Reservation statuses. Only confirmed reservations consume stock.
const (
	ReservationConfirmed = "confirmed"
	ReservationCancelled = "cancelled"
)

// Cart statuses.
const (
	CartActive  = "active"
	CartExpired = "expired"
)

// Roles recognised by the booking service.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Item is a physical resource type with a fixed total quantity.
type Item struct {
	ID               int64  `json:"id"`
	TenantID         int64  `json:"tenant_id"`
	Name             string `json:"name"`
	TotalQuantity    int    `json:"total_quantity"`
	ReorderThreshold int    `json:"reorder_threshold"`
	ImageURL         string `json:"image_url,omitempty"`
	StorageUnit      string `json:"storage_unit,omitempty"`
}

// KitComponent is one base item inside a kit and how many units one kit consumes.
type KitComponent struct {
	ItemID   int64 `json:"item_id"`
	Quantity int   `json:"quantity"`
}

// Kit is a named bundle of items, reservable as a unit.
type Kit struct {
	ID          int64          `json:"id"`
	TenantID    int64          `json:"tenant_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	ImageURL    string         `json:"image_url,omitempty"`
	Components  []KitComponent `json:"components"`
}

// Catalog is the full set of items and kits of one tenant.
type Catalog struct {
	Items []Item `json:"items"`
	Kits  []Kit  `json:"kits"`
}

// Reservation is a committed claim on an item or a kit over a window.
// Exactly one of ItemID and KitID is set.
type Reservation struct {
	ID             int64
	TenantID       int64
	UserID         int64
	ItemID         *int64
	KitID          *int64
	Quantity       int
	Start          time.Time
	End            time.Time
	Status         string
	BookingGroupID string
	CreatedAt      time.Time
}

// Requested converts the reservation into a decomposable request entry.
func (r Reservation) Requested() RequestedItem {
	if r.KitID != nil {
		return RequestedItem{Type: LineTypeKit, ID: *r.KitID, Quantity: r.Quantity}
	}
	var id int64
	if r.ItemID != nil {
		id = *r.ItemID
	}
	return RequestedItem{Type: LineTypeItem, ID: id, Quantity: r.Quantity}
}

// Cart is a per-user staging area, active until it expires or is checked out.
type Cart struct {
	ID        string
	UserID    int64
	TenantID  int64
	Status    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CartLine is one pending request in a cart. Date, Start and End are kept in
// their wire forms (YYYY-MM-DD and HH:MM) so identical slots compare equal.
type CartLine struct {
	ID        int64
	CartID    string
	Type      LineType
	RefID     int64
	Quantity  int
	Date      string
	Start     string
	End       string
	CreatedAt time.Time
}

// Slot returns the line's slot key.
func (l CartLine) Slot() SlotKey {
	return SlotKey{Date: l.Date, Start: l.Start, End: l.End}
}

// Requested converts the line into a decomposable request entry.
func (l CartLine) Requested() RequestedItem {
	return RequestedItem{Type: l.Type, ID: l.RefID, Quantity: l.Quantity}
}

// SlotKey identifies a reservation slot. Fields are zero-padded so that
// lexical order is chronological.
type SlotKey struct {
	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Less orders slot keys by date, then start, then end.
func (k SlotKey) Less(o SlotKey) bool {
	if k.Date != o.Date {
		return k.Date < o.Date
	}
	if k.Start != o.Start {
		return k.Start < o.Start
	}
	return k.End < o.End
}

// RequestedItem is one (item-or-kit, quantity) pair to decompose.
type RequestedItem struct {
	Type     LineType `json:"type"`
	ID       int64    `json:"id"`
	Quantity int      `json:"quantity"`
}

// Window is a half-open reservation interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether w and o share any instant.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && w.End.After(o.Start)
}

// AuditEntry is an append-only record of a security-relevant mutation.
type AuditEntry struct {
	ID          int64
	TenantID    int64
	UserID      int64
	Action      string
	TargetTable string
	RecordID    string
	Details     []byte
	CreatedAt   time.Time
}

// OutboxEvent is a domain event persisted with the mutation that produced it
// and published asynchronously.
type OutboxEvent struct {
	ID          int64
	TenantID    int64
	EventType   string
	AggregateID string
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// ItemAvailability is the free quantity of one item over a window.
type ItemAvailability struct {
	ItemID           int64           `json:"item_id"`
	Name             string          `json:"name"`
	Total            int             `json:"total"`
	Available        int             `json:"available"`
	ReorderThreshold int             `json:"reorder_threshold"`
	ImageURL         string          `json:"image_url,omitempty"`
	StorageUnit      string          `json:"storage_unit,omitempty"`
	Utilization      decimal.Decimal `json:"utilization"`
}

// KitAvailability is the number of complete kits that can be assembled over a window.
type KitAvailability struct {
	KitID       int64  `json:"kit_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Available   int    `json:"available"`
}

// Availability is the read-only availability view for one window.
type Availability struct {
	Items map[int64]ItemAvailability `json:"items"`
	Kits  map[int64]KitAvailability  `json:"kits"`
}

// LockedStock is the result of a successful verifyAndLock: the locked item rows
// and the decomposed quantities that were verified against them.
type LockedStock struct {
	Items map[int64]Item
	Needs map[int64]int
}
