// Package testutil provides a migrated PostgreSQL database and seed helpers
// for integration tests.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"lab-booking/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// NewTestPool returns a pool on a migrated, empty database. TEST_DATABASE_URL
// is used when set; otherwise a postgres:16-alpine container is started. The
// test is skipped when neither is available.
func NewTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		if testing.Short() {
			t.Skip("skipping integration test in short mode")
		}
		pgContainer, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("labbooking_test"),
			tcpostgres.WithUsername("testuser"),
			tcpostgres.WithPassword("testpass"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			t.Skipf("TEST_DATABASE_URL not set and no container runtime available: %v", err)
		}
		t.Cleanup(func() {
			if err := pgContainer.Terminate(context.Background()); err != nil {
				t.Logf("failed to terminate container: %s", err)
			}
		})
		dbURL, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			t.Fatalf("container connection string: %v", err)
		}
	}

	if err := migrations.Apply(dbURL); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE outbox_events, audit_log, cart_lines, carts, reservations,
			kit_components, kits, items, storage_units, users, tenants
		RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("Failed to truncate tables: %v", err)
	}
	return pool
}

// SeedTenant inserts a tenant and returns its id.
func SeedTenant(t *testing.T, pool *pgxpool.Pool, name string) int64 {
	t.Helper()
	var id int64
	if err := pool.QueryRow(context.Background(),
		`INSERT INTO tenants (name) VALUES ($1) RETURNING id`, name).Scan(&id); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	return id
}

// SeedUser inserts a user of tenantID and returns its id.
func SeedUser(t *testing.T, pool *pgxpool.Pool, tenantID int64, username, role string) int64 {
	t.Helper()
	var id int64
	if err := pool.QueryRow(context.Background(),
		`INSERT INTO users (tenant_id, username, role) VALUES ($1, $2, $3) RETURNING id`,
		tenantID, username, role).Scan(&id); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}

// SeedItem inserts an item stored in a storage unit named storage (optional).
func SeedItem(t *testing.T, pool *pgxpool.Pool, tenantID int64, name string, total int, storage string) int64 {
	t.Helper()
	ctx := context.Background()
	var unitID *int64
	if storage != "" {
		var id int64
		if err := pool.QueryRow(ctx,
			`INSERT INTO storage_units (tenant_id, name) VALUES ($1, $2) RETURNING id`,
			tenantID, storage).Scan(&id); err != nil {
			t.Fatalf("seed storage unit: %v", err)
		}
		unitID = &id
	}
	var id int64
	if err := pool.QueryRow(ctx,
		`INSERT INTO items (tenant_id, name, total_quantity, storage_unit_id) VALUES ($1, $2, $3, $4) RETURNING id`,
		tenantID, name, total, unitID).Scan(&id); err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return id
}

// Component is one (item, per-kit quantity) pair for SeedKit.
type Component struct {
	ItemID   int64
	Quantity int
}

// SeedKit inserts a kit with its components.
func SeedKit(t *testing.T, pool *pgxpool.Pool, tenantID int64, name string, components ...Component) int64 {
	t.Helper()
	ctx := context.Background()
	var id int64
	if err := pool.QueryRow(ctx,
		`INSERT INTO kits (tenant_id, name) VALUES ($1, $2) RETURNING id`, tenantID, name).Scan(&id); err != nil {
		t.Fatalf("seed kit: %v", err)
	}
	for _, c := range components {
		if _, err := pool.Exec(ctx,
			`INSERT INTO kit_components (kit_id, item_id, quantity) VALUES ($1, $2, $3)`,
			id, c.ItemID, c.Quantity); err != nil {
			t.Fatalf("seed kit component: %v", err)
		}
	}
	return id
}
