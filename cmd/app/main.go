package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"lab-booking/internal/adapters/cli"
	"lab-booking/internal/adapters/repl"
	webAdapter "lab-booking/internal/adapters/web"
	"lab-booking/internal/app"
	"lab-booking/internal/clock"
	"lab-booking/internal/config"
	"lab-booking/internal/core"
	"lab-booking/internal/db"
	"lab-booking/internal/logging"
	"lab-booking/internal/storage/memory"
	"lab-booking/internal/storage/postgres"
)

func main() {
	userID := flag.Int64("user", 0, "acting user id")
	tenantID := flag.Int64("tenant", 0, "tenant id")
	role := flag.String("role", core.RoleUser, "acting role (user or admin)")
	demo := flag.Bool("memory", false, "run against a seeded in-memory store")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Development())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	args := flag.Args()
	if len(args) > 0 && args[0] == "token" {
		if cfg.JWTSecret == "" {
			log.Fatal("JWT_SECRET is not set")
		}
		tok, err := webAdapter.IssueToken(cfg.JWTSecret, webAdapter.AuthClaims{
			UserID: *userID, TenantID: *tenantID, Role: *role,
		}, 12*time.Hour)
		if err != nil {
			log.Fatalf("token: %v", err)
		}
		fmt.Println(tok)
		return
	}

	if *userID <= 0 || *tenantID <= 0 {
		log.Fatal("Usage: app --user <id> --tenant <id> [--role admin] [--memory] [command [args]]")
	}

	ctx := context.Background()
	var store core.Store
	if *demo {
		store = seedDemo(*tenantID)
	} else {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Unable to connect to database: %v", err)
		}
		defer pool.Close()
		store = postgres.NewStore(pool)
	}

	svc := app.NewFromStore(store, nil, cfg.Rules, clock.NewSystem(), logger)
	sess := app.Session{UserID: *userID, TenantID: *tenantID, Role: *role}
	if len(args) == 0 {
		repl.Run(ctx, svc, sess, bufio.NewReader(os.Stdin), os.Stdout)
		return
	}
	if err := cli.Run(ctx, svc, sess, args, os.Stdout); err != nil {
		cli.Fatal(err)
	}
}

// seedDemo returns an in-memory store with a small microscopy catalog.
func seedDemo(tenantID int64) *memory.Store {
	s := memory.New()
	scope := s.SeedItem(core.Item{TenantID: tenantID, Name: "Microscope", TotalQuantity: 5, StorageUnit: "Cabinet A"})
	slide := s.SeedItem(core.Item{TenantID: tenantID, Name: "Slide box", TotalQuantity: 20, StorageUnit: "Cabinet A"})
	lamp := s.SeedItem(core.Item{TenantID: tenantID, Name: "Cold light source", TotalQuantity: 3, StorageUnit: "Cabinet B"})
	s.SeedKit(core.Kit{
		TenantID: tenantID,
		Name:     "Microscopy kit",
		Components: []core.KitComponent{
			{ItemID: scope.ID, Quantity: 1},
			{ItemID: slide.ID, Quantity: 2},
			{ItemID: lamp.ID, Quantity: 1},
		},
	})
	return s
}
