package core

import (
	"context"
	"slices"

	"lab-booking/internal/clock"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AvailabilityEngine computes free stock per window and verifies requests
// under row locks at commit time.
type AvailabilityEngine struct {
	store    Store
	catalog  CatalogSource
	resolver *KitResolver
	rules    Rules
	clock    clock.Clock
	logger   *zap.Logger
}

// NewAvailabilityEngine constructs an AvailabilityEngine. catalog feeds the
// read-only view and may be a cache; verification always reads locked rows.
func NewAvailabilityEngine(store Store, catalog CatalogSource, resolver *KitResolver, rules Rules, clk clock.Clock, logger *zap.Logger) *AvailabilityEngine {
	if catalog == nil {
		catalog = StoreCatalog{Store: store}
	}
	return &AvailabilityEngine{
		store:    store,
		catalog:  catalog,
		resolver: resolver,
		rules:    rules,
		clock:    clk,
		logger:   logger,
	}
}

// ValidateWindow enforces the temporal rules against the current time.
func (e *AvailabilityEngine) ValidateWindow(w Window) error {
	return e.rules.ValidateWindow(w, e.clock.Now())
}

// ActiveOverlaps returns the tenant's confirmed reservations overlapping w.
func (e *AvailabilityEngine) ActiveOverlaps(ctx context.Context, tenantID int64, w Window) ([]Reservation, error) {
	res, err := e.store.ActiveOverlaps(ctx, tenantID, w.Start, w.End)
	if err != nil {
		return nil, storeErr(e.logger, "load overlapping reservations", err)
	}
	return res, nil
}

// consumed returns the decomposed quantity per item used by confirmed
// reservations overlapping w, plus extraPending.
func (e *AvailabilityEngine) consumed(ctx context.Context, tenantID, userID int64, w Window, extraPending []RequestedItem) (map[int64]int, error) {
	overlaps, err := e.ActiveOverlaps(ctx, tenantID, w)
	if err != nil {
		return nil, err
	}
	requests := make([]RequestedItem, 0, len(overlaps)+len(extraPending))
	for _, r := range overlaps {
		requests = append(requests, r.Requested())
	}
	requests = append(requests, extraPending...)
	return e.resolver.decompose(ctx, requests, tenantID, userID, false)
}

// ComputeAvailability returns the free quantity of every item and kit of the
// tenant over w, treating extraPending as already reserved. It takes no locks.
func (e *AvailabilityEngine) ComputeAvailability(ctx context.Context, tenantID int64, w Window, extraPending []RequestedItem) (*Availability, error) {
	if err := e.ValidateWindow(w); err != nil {
		return nil, err
	}
	return e.computeAvailability(ctx, tenantID, 0, w, extraPending)
}

func (e *AvailabilityEngine) computeAvailability(ctx context.Context, tenantID, userID int64, w Window, extraPending []RequestedItem) (*Availability, error) {
	used, err := e.consumed(ctx, tenantID, userID, w, extraPending)
	if err != nil {
		return nil, err
	}
	cat, err := e.catalog.TenantCatalog(ctx, tenantID)
	if err != nil {
		return nil, storeErr(e.logger, "load catalog", err)
	}

	out := &Availability{
		Items: make(map[int64]ItemAvailability, len(cat.Items)),
		Kits:  make(map[int64]KitAvailability, len(cat.Kits)),
	}
	for _, it := range cat.Items {
		out.Items[it.ID] = ItemAvailability{
			ItemID:           it.ID,
			Name:             it.Name,
			Total:            it.TotalQuantity,
			Available:        max(0, it.TotalQuantity-used[it.ID]),
			ReorderThreshold: it.ReorderThreshold,
			ImageURL:         it.ImageURL,
			StorageUnit:      it.StorageUnit,
			Utilization:      utilization(used[it.ID], it.TotalQuantity),
		}
	}
	for _, k := range cat.Kits {
		out.Kits[k.ID] = KitAvailability{
			KitID:       k.ID,
			Name:        k.Name,
			Description: k.Description,
			Available:   e.kitAvailable(k, out.Items),
		}
	}
	return out, nil
}

// kitAvailable is the minimum over components of floor(available / per-kit
// quantity). Components with quantity 0 do not constrain the kit; a kit
// without components is never available.
func (e *AvailabilityEngine) kitAvailable(k Kit, items map[int64]ItemAvailability) int {
	if len(k.Components) == 0 {
		return 0
	}
	best := e.rules.MaxKitAvailability
	for _, c := range k.Components {
		if c.Quantity <= 0 {
			continue
		}
		best = min(best, items[c.ItemID].Available/c.Quantity)
	}
	return best
}

func utilization(used, total int) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	used = min(used, total)
	return decimal.NewFromInt(int64(used)).Div(decimal.NewFromInt(int64(total))).Round(2)
}

// VerifyAndLock decomposes requested, locks every needed item row with a
// non-blocking exclusive lock in ascending id order, and checks that each
// item still has enough free quantity over w. It must run inside a transaction.
func (e *AvailabilityEngine) VerifyAndLock(ctx context.Context, tenantID int64, requested []RequestedItem, w Window, userID int64) (*LockedStock, error) {
	if err := e.ValidateWindow(w); err != nil {
		return nil, err
	}
	needs, err := e.resolver.decompose(ctx, requested, tenantID, userID, true)
	if err != nil {
		return nil, err
	}
	locked := &LockedStock{Items: make(map[int64]Item, len(needs)), Needs: needs}
	if len(needs) == 0 {
		return locked, nil
	}

	ids := make([]int64, 0, len(needs))
	for id := range needs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	// Locks are taken before reading overlaps so the snapshot includes every
	// reservation committed by a previous holder of the same rows.
	rows, err := e.store.LockItemsNoWait(ctx, tenantID, ids)
	if err != nil {
		return nil, storeErr(e.logger, "lock items", err)
	}
	for _, it := range rows {
		locked.Items[it.ID] = it
	}
	if len(locked.Items) < len(ids) {
		var missing []int64
		for _, id := range ids {
			if _, ok := locked.Items[id]; !ok {
				missing = append(missing, id)
			}
		}
		securityEvent(e.logger, tenantID, userID, string(LineTypeItem), missing)
		return nil, &TenantIsolationError{TenantID: tenantID, RefType: LineTypeItem, RefIDs: missing}
	}

	used, err := e.consumed(ctx, tenantID, userID, w, nil)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		it := locked.Items[id]
		free := it.TotalQuantity - used[id]
		if free < needs[id] {
			e.logger.Info("stock refused",
				zap.Int64("tenant_id", tenantID),
				zap.Int64("item_id", id),
				zap.Int("requested", needs[id]),
				zap.Int("available", max(0, free)),
			)
			return nil, &AvailabilityError{
				RefType:   LineTypeItem,
				RefID:     id,
				Name:      it.Name,
				Requested: needs[id],
				Available: max(0, free),
			}
		}
	}
	return locked, nil
}
