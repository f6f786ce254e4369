// Package postgres implements core.Store on PostgreSQL with pgx. The active
// transaction travels in the context so services can compose store calls.
package postgres

import (
	"context"
	"fmt"

	"lab-booking/internal/core"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the pgx-backed core.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ core.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, s.pool, fn)
}

func (s *Store) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return s.pool.Exec(ctx, sql, args...)
}

func (s *Store) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return s.pool.Query(ctx, sql, args...)
}

func (s *Store) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return s.pool.QueryRow(ctx, sql, args...)
}

// ── Catalog ───────────────────────────────────────────────────────────────────

const itemColumns = `
	i.id, i.tenant_id, i.name, i.total_quantity, i.reorder_threshold,
	COALESCE(i.image_url, ''), COALESCE(su.name, '')`

func scanItems(rows pgx.Rows) ([]core.Item, error) {
	defer rows.Close()
	var items []core.Item
	for rows.Next() {
		var it core.Item
		if err := rows.Scan(&it.ID, &it.TenantID, &it.Name, &it.TotalQuantity, &it.ReorderThreshold,
			&it.ImageURL, &it.StorageUnit); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return items, nil
}

func (s *Store) ListItems(ctx context.Context, tenantID int64) ([]core.Item, error) {
	rows, err := s.query(ctx, `
		SELECT `+itemColumns+`
		FROM items i
		LEFT JOIN storage_units su ON su.id = i.storage_unit_id
		WHERE i.tenant_id = $1
		ORDER BY i.id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	return scanItems(rows)
}

func (s *Store) ItemsByIDs(ctx context.Context, tenantID int64, ids []int64) ([]core.Item, error) {
	rows, err := s.query(ctx, `
		SELECT `+itemColumns+`
		FROM items i
		LEFT JOIN storage_units su ON su.id = i.storage_unit_id
		WHERE i.tenant_id = $1 AND i.id = ANY($2)
		ORDER BY i.id
	`, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query items by id: %w", err)
	}
	return scanItems(rows)
}

// LockItemsNoWait locks the tenant's rows for ids in ascending order. A row
// held by another transaction fails immediately with core.ErrLockNotAvailable.
func (s *Store) LockItemsNoWait(ctx context.Context, tenantID int64, ids []int64) ([]core.Item, error) {
	rows, err := s.query(ctx, `
		SELECT `+itemColumns+`
		FROM items i
		LEFT JOIN storage_units su ON su.id = i.storage_unit_id
		WHERE i.tenant_id = $1 AND i.id = ANY($2)
		ORDER BY i.id
		FOR UPDATE OF i NOWAIT
	`, tenantID, ids)
	if err != nil {
		return nil, mapErr(err)
	}
	return scanItems(rows)
}

func (s *Store) ListKits(ctx context.Context, tenantID int64) ([]core.Kit, error) {
	return s.loadKits(ctx, tenantID, nil)
}

func (s *Store) KitsByIDs(ctx context.Context, tenantID int64, ids []int64) ([]core.Kit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.loadKits(ctx, tenantID, ids)
}

// loadKits reads kits and their components in two queries. A nil ids slice
// loads every kit of the tenant.
func (s *Store) loadKits(ctx context.Context, tenantID int64, ids []int64) ([]core.Kit, error) {
	rows, err := s.query(ctx, `
		SELECT id, tenant_id, name, COALESCE(description, ''), COALESCE(image_url, '')
		FROM kits
		WHERE tenant_id = $1 AND ($2::bigint[] IS NULL OR id = ANY($2))
		ORDER BY id
	`, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query kits: %w", err)
	}
	var kits []core.Kit
	index := make(map[int64]int)
	for rows.Next() {
		var k core.Kit
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.Description, &k.ImageURL); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan kit: %w", err)
		}
		index[k.ID] = len(kits)
		kits = append(kits, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(kits) == 0 {
		return nil, nil
	}

	kitIDs := make([]int64, 0, len(kits))
	for _, k := range kits {
		kitIDs = append(kitIDs, k.ID)
	}
	// Components are not filtered by the item's tenant: a foreign component must
	// reach the lock step so it is reported as an isolation violation.
	crows, err := s.query(ctx, `
		SELECT kc.kit_id, kc.item_id, kc.quantity
		FROM kit_components kc
		WHERE kc.kit_id = ANY($1)
		ORDER BY kc.kit_id, kc.item_id
	`, kitIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query kit components: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var kitID int64
		var c core.KitComponent
		if err := crows.Scan(&kitID, &c.ItemID, &c.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan kit component: %w", err)
		}
		k := &kits[index[kitID]]
		k.Components = append(k.Components, c)
	}
	return kits, crows.Err()
}
