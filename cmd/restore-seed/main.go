// restore-seed is a one-shot tool to restore the demo tenant of a live
// database. Run it after a reset to get a bookable microscopy catalog back.
// It is idempotent: the demo tenant is matched by name and rebuilt in place.
//
// Usage: go run ./cmd/restore-seed
package main

import (
	"context"
	"log"
	"os"

	"lab-booking/internal/cache"
	"lab-booking/internal/config"
	"lab-booking/internal/core"
	"lab-booking/internal/db"
	"lab-booking/internal/storage/postgres"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const demoTenant = "Demo Lab"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[CONFIG] %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	log.Println("Restoring tenant...")
	var tenantID int64
	err = tx.QueryRow(ctx, `SELECT id FROM tenants WHERE name = $1`, demoTenant).Scan(&tenantID)
	if err != nil {
		if err := tx.QueryRow(ctx, `INSERT INTO tenants (name) VALUES ($1) RETURNING id`, demoTenant).Scan(&tenantID); err != nil {
			log.Fatalf("Failed to create tenant: %v", err)
		}
	}

	// cart_lines cascade with carts.
	log.Println("Clearing demo bookings and carts...")
	for _, table := range []string{"carts", "reservations", "audit_log", "outbox_events"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE tenant_id = $1`, tenantID); err != nil {
			log.Fatalf("Failed to clear %s: %v", table, err)
		}
	}

	log.Println("Removing catalog...")
	_, err = tx.Exec(ctx, `
		DELETE FROM kit_components WHERE kit_id IN (SELECT id FROM kits WHERE tenant_id = $1)
	`, tenantID)
	if err != nil {
		log.Fatalf("Failed to delete kit components: %v", err)
	}
	for _, table := range []string{"kits", "items", "storage_units"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE tenant_id = $1`, tenantID); err != nil {
			log.Fatalf("Failed to delete %s: %v", table, err)
		}
	}

	log.Println("Restoring users...")
	_, err = tx.Exec(ctx, `
		INSERT INTO users (tenant_id, username, role)
		VALUES ($1, 'demo-admin', 'admin'), ($1, 'demo-user', 'user')
		ON CONFLICT (username) DO UPDATE
		  SET tenant_id = EXCLUDED.tenant_id,
		      role = EXCLUDED.role;
	`, tenantID)
	if err != nil {
		log.Fatalf("Failed to restore users: %v", err)
	}

	log.Println("Restoring storage units and items...")
	_, err = tx.Exec(ctx, `
		INSERT INTO storage_units (tenant_id, name)
		VALUES ($1, 'Cabinet A'), ($1, 'Cabinet B');
	`, tenantID)
	if err != nil {
		log.Fatalf("Failed to restore storage units: %v", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO items (tenant_id, name, total_quantity, reorder_threshold, storage_unit_id)
		SELECT $1, i.name, i.total, i.threshold, su.id
		FROM (VALUES
		    ('Microscope',        5,  1, 'Cabinet A'),
		    ('Slide box',         20, 5, 'Cabinet A'),
		    ('Cold light source', 3,  1, 'Cabinet B'),
		    ('Centrifuge',        2,  0, 'Cabinet B'),
		    ('Pipette set',       12, 3, 'Cabinet B')
		) AS i(name, total, threshold, unit)
		JOIN storage_units su ON su.tenant_id = $1 AND su.name = i.unit;
	`, tenantID)
	if err != nil {
		log.Fatalf("Failed to restore items: %v", err)
	}

	log.Println("Restoring kits...")
	var kitID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO kits (tenant_id, name, description)
		VALUES ($1, 'Microscopy kit', 'Microscope with slides and a light source')
		RETURNING id
	`, tenantID).Scan(&kitID)
	if err != nil {
		log.Fatalf("Failed to restore kit: %v", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO kit_components (kit_id, item_id, quantity)
		SELECT $1, i.id, c.quantity
		FROM (VALUES
		    ('Microscope',        1),
		    ('Slide box',         2),
		    ('Cold light source', 1)
		) AS c(name, quantity)
		JOIN items i ON i.tenant_id = $2 AND i.name = c.name;
	`, kitID, tenantID)
	if err != nil {
		log.Fatalf("Failed to restore kit components: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("Failed to commit: %v", err)
	}

	if cfg.RedisAddr != "" {
		log.Println("Dropping cached catalog...")
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		source := core.StoreCatalog{Store: postgres.NewStore(pool)}
		catalog := cache.NewRedisCatalog(rdb, source, cfg.CatalogCacheTTL, zap.NewNop())
		if err := catalog.Invalidate(ctx, tenantID); err != nil {
			log.Printf("Warning: cached catalog not dropped, it expires within %s: %v", cfg.CatalogCacheTTL, err)
		}
	}

	log.Printf("Demo tenant %d restored successfully.", tenantID)
	os.Exit(0)
}
