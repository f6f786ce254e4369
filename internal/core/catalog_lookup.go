package core

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"
)

func splitRefs(refs []RequestedItem) (itemIDs, kitIDs []int64) {
	for _, r := range refs {
		switch r.Type {
		case LineTypeItem:
			if !slices.Contains(itemIDs, r.ID) {
				itemIDs = append(itemIDs, r.ID)
			}
		case LineTypeKit:
			if !slices.Contains(kitIDs, r.ID) {
				kitIDs = append(kitIDs, r.ID)
			}
		}
	}
	slices.Sort(itemIDs)
	slices.Sort(kitIDs)
	return itemIDs, kitIDs
}

// verifyOwnership fails with a TenantIsolationError when any referenced item
// or kit is not part of the tenant.
func verifyOwnership(ctx context.Context, store CatalogStore, logger *zap.Logger, userID, tenantID int64, refs []RequestedItem) error {
	itemIDs, kitIDs := splitRefs(refs)

	if len(itemIDs) > 0 {
		items, err := store.ItemsByIDs(ctx, tenantID, itemIDs)
		if err != nil {
			return storeErr(logger, "load items", err)
		}
		found := make(map[int64]bool, len(items))
		for _, it := range items {
			found[it.ID] = true
		}
		if missing := missingIDs(itemIDs, found); len(missing) > 0 {
			securityEvent(logger, tenantID, userID, string(LineTypeItem), missing)
			return &TenantIsolationError{TenantID: tenantID, RefType: LineTypeItem, RefIDs: missing}
		}
	}

	if len(kitIDs) > 0 {
		kits, err := store.KitsByIDs(ctx, tenantID, kitIDs)
		if err != nil {
			return storeErr(logger, "load kits", err)
		}
		found := make(map[int64]bool, len(kits))
		for _, k := range kits {
			found[k.ID] = true
		}
		if missing := missingIDs(kitIDs, found); len(missing) > 0 {
			securityEvent(logger, tenantID, userID, string(LineTypeKit), missing)
			return &TenantIsolationError{TenantID: tenantID, RefType: LineTypeKit, RefIDs: missing}
		}
	}
	return nil
}

func missingIDs(ids []int64, found map[int64]bool) []int64 {
	var out []int64
	for _, id := range ids {
		if !found[id] {
			out = append(out, id)
		}
	}
	return out
}

type displayData struct {
	name  string
	image string
}

type displayNames struct {
	items map[int64]displayData
	kits  map[int64]displayData
}

func (d displayNames) lookup(t LineType, id int64) displayData {
	var m map[int64]displayData
	if t == LineTypeKit {
		m = d.kits
	} else {
		m = d.items
	}
	if v, ok := m[id]; ok {
		return v
	}
	return displayData{name: fmt.Sprintf("Unknown %s #%d", t, id)}
}

// loadDisplayNames resolves names and images for the referenced lines in two
// tenant-scoped batch queries.
func loadDisplayNames(ctx context.Context, store CatalogStore, tenantID int64, lines []CartLine) (displayNames, error) {
	refs := make([]RequestedItem, 0, len(lines))
	for _, l := range lines {
		refs = append(refs, l.Requested())
	}
	return loadRefNames(ctx, store, tenantID, refs)
}

func loadRefNames(ctx context.Context, store CatalogStore, tenantID int64, refs []RequestedItem) (displayNames, error) {
	out := displayNames{items: map[int64]displayData{}, kits: map[int64]displayData{}}
	itemIDs, kitIDs := splitRefs(refs)
	if len(itemIDs) > 0 {
		items, err := store.ItemsByIDs(ctx, tenantID, itemIDs)
		if err != nil {
			return out, err
		}
		for _, it := range items {
			out.items[it.ID] = displayData{name: it.Name, image: it.ImageURL}
		}
	}
	if len(kitIDs) > 0 {
		kits, err := store.KitsByIDs(ctx, tenantID, kitIDs)
		if err != nil {
			return out, err
		}
		for _, k := range kits {
			out.kits[k.ID] = displayData{name: k.Name, image: k.ImageURL}
		}
	}
	return out, nil
}
