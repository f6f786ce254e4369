package core

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Store is the persistence contract the reservation services depend on.
// Every method is tenant-scoped where the data is. WithTx runs fn inside one
// transaction carried by the context; nested calls join the outer transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CatalogStore
	ReservationStore
	CartStore
	AuditStore
}

// CatalogStore reads items and kits.
type CatalogStore interface {
	ListItems(ctx context.Context, tenantID int64) ([]Item, error)
	ListKits(ctx context.Context, tenantID int64) ([]Kit, error)
	ItemsByIDs(ctx context.Context, tenantID int64, ids []int64) ([]Item, error)
	KitsByIDs(ctx context.Context, tenantID int64, ids []int64) ([]Kit, error)
	// LockItemsNoWait takes exclusive non-blocking locks on the given items in
	// ascending id order. Contention returns ErrLockNotAvailable. Items outside
	// the tenant are silently absent from the result.
	LockItemsNoWait(ctx context.Context, tenantID int64, ids []int64) ([]Item, error)
}

// ReservationStore reads and writes reservations.
type ReservationStore interface {
	ActiveOverlaps(ctx context.Context, tenantID int64, start, end time.Time) ([]Reservation, error)
	InsertReservation(ctx context.Context, r *Reservation) error
	ReservationsByGroup(ctx context.Context, tenantID int64, groupID string) ([]Reservation, error)
	CancelGroup(ctx context.Context, tenantID int64, groupID string) (int64, error)
	UpdateReservationQuantity(ctx context.Context, tenantID, id int64, quantity int) error
	CancelReservation(ctx context.Context, tenantID, id int64) error
	ConfirmedStartingBetween(ctx context.Context, tenantID int64, from, to time.Time) ([]Reservation, error)
}

// CartStore reads and writes carts and their lines.
type CartStore interface {
	// FindActiveCart returns nil when the user has no active cart in the tenant.
	// forUpdate takes an exclusive row lock on the cart.
	FindActiveCart(ctx context.Context, userID, tenantID int64, forUpdate bool) (*Cart, error)
	CreateCart(ctx context.Context, c *Cart) error
	UpdateCart(ctx context.Context, cartID, status string, expiresAt time.Time) error
	CartLines(ctx context.Context, cartID string) ([]CartLine, error)
	InsertCartLine(ctx context.Context, l *CartLine) error
	UpdateCartLineQuantity(ctx context.Context, lineID int64, quantity int) error
	// DeleteCartLine reports false when the line does not belong to the cart.
	DeleteCartLine(ctx context.Context, cartID string, lineID int64) (bool, error)
	DeleteCartLines(ctx context.Context, cartID string) (int64, error)
}

// AuditStore appends audit entries and outbox events.
type AuditStore interface {
	InsertAudit(ctx context.Context, e *AuditEntry) error
	EnqueueEvent(ctx context.Context, e *OutboxEvent) error
}

// CatalogSource lists a tenant's catalog for read-only views.
type CatalogSource interface {
	TenantCatalog(ctx context.Context, tenantID int64) (*Catalog, error)
}

// StoreCatalog serves a catalog straight from the store.
type StoreCatalog struct {
	Store CatalogStore
}

func (c StoreCatalog) TenantCatalog(ctx context.Context, tenantID int64) (*Catalog, error) {
	items, err := c.Store.ListItems(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	kits, err := c.Store.ListKits(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &Catalog{Items: items, Kits: kits}, nil
}

// storeErr converts a raw store failure into the error taxonomy. Errors already
// in the taxonomy pass through unchanged.
func storeErr(logger *zap.Logger, op string, err error) error {
	if err == nil {
		return nil
	}
	if isDomainError(err) {
		return err
	}
	if errors.Is(err, ErrLockNotAvailable) {
		logger.Info("lock contention", zap.String("op", op))
		return &ConcurrencyError{Op: op}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Info("store call abandoned", zap.String("op", op), zap.Error(err))
		return &PersistenceError{Op: op, Err: err}
	}
	logger.Error("store failure", zap.String("op", op), zap.Error(err))
	return &PersistenceError{Op: op, Err: err}
}

// securityEvent logs a tenant-isolation violation.
func securityEvent(logger *zap.Logger, tenantID, userID int64, kind string, refs []int64) {
	logger.Warn("tenant isolation violation",
		zap.String("event", "security"),
		zap.Int64("tenant_id", tenantID),
		zap.Int64("user_id", userID),
		zap.String("kind", kind),
		zap.Int64s("ref_ids", refs),
	)
}
