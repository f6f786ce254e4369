package core

import (
	"context"
	"slices"

	"go.uber.org/zap"
)

// KitResolver decomposes item and kit requests into base-item quantities.
type KitResolver struct {
	store  CatalogStore
	rules  Rules
	logger *zap.Logger
}

// NewKitResolver constructs a KitResolver reading kit definitions from store.
func NewKitResolver(store CatalogStore, rules Rules, logger *zap.Logger) *KitResolver {
	return &KitResolver{store: store, rules: rules, logger: logger}
}

// Decompose returns the total quantity needed per base item for the requested
// entries. Malformed entries are skipped. A kit id unknown to the tenant is fatal.
// Requests with more than MaxBatchEntries entries, or any entry above
// MaxEntryQuantity, are rejected with a CapacityError.
func (r *KitResolver) Decompose(ctx context.Context, items []RequestedItem, tenantID int64) (map[int64]int, error) {
	return r.decompose(ctx, items, tenantID, 0, true)
}

// decompose is shared by caller-supplied requests (capped) and persisted
// reservations or cart lines (uncapped, already validated on the way in).
func (r *KitResolver) decompose(ctx context.Context, items []RequestedItem, tenantID, userID int64, capped bool) (map[int64]int, error) {
	if capped && len(items) > r.rules.MaxBatchEntries {
		return nil, capacityErr("batch_entries", r.rules.MaxBatchEntries,
			"too many entries in one request (max %d)", r.rules.MaxBatchEntries)
	}

	needs := make(map[int64]int)
	var kitIDs []int64
	var kitEntries []RequestedItem
	for _, it := range items {
		if !it.Type.Valid() || it.ID <= 0 || it.Quantity <= 0 {
			continue
		}
		if capped && it.Quantity > r.rules.MaxEntryQuantity {
			return nil, capacityErr("entry_quantity", r.rules.MaxEntryQuantity,
				"quantity %d for %s %d exceeds the maximum of %d", it.Quantity, it.Type, it.ID, r.rules.MaxEntryQuantity)
		}
		switch it.Type {
		case LineTypeItem:
			needs[it.ID] += it.Quantity
		case LineTypeKit:
			kitEntries = append(kitEntries, it)
			if !slices.Contains(kitIDs, it.ID) {
				kitIDs = append(kitIDs, it.ID)
			}
		}
	}
	if len(kitEntries) == 0 {
		return needs, nil
	}

	slices.Sort(kitIDs)
	kits, err := r.store.KitsByIDs(ctx, tenantID, kitIDs)
	if err != nil {
		return nil, storeErr(r.logger, "load kits", err)
	}
	byID := make(map[int64]Kit, len(kits))
	for _, k := range kits {
		byID[k.ID] = k
	}

	var missing []int64
	for _, id := range kitIDs {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		securityEvent(r.logger, tenantID, userID, string(LineTypeKit), missing)
		return nil, &TenantIsolationError{TenantID: tenantID, RefType: LineTypeKit, RefIDs: missing}
	}

	for _, it := range kitEntries {
		for _, c := range byID[it.ID].Components {
			if c.Quantity <= 0 {
				continue
			}
			needs[c.ItemID] += it.Quantity * c.Quantity
		}
	}
	return needs, nil
}
