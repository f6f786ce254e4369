package app

import (
	"lab-booking/internal/clock"
	"lab-booking/internal/core"

	"go.uber.org/zap"
)

// NewFromStore wires the reservation services on top of store. catalog may be
// nil, in which case the read-only view reads the store directly.
func NewFromStore(store core.Store, catalog core.CatalogSource, rules core.Rules, clk clock.Clock, logger *zap.Logger) ApplicationService {
	resolver := core.NewKitResolver(store, rules, logger.Named("kits"))
	availability := core.NewAvailabilityEngine(store, catalog, resolver, rules, clk, logger.Named("availability"))
	carts := core.NewCartService(store, availability, rules, clk, logger.Named("cart"))
	checkout := core.NewCheckoutService(store, carts, availability, rules, clk, logger.Named("checkout"))
	bookings := core.NewBookingService(store, availability, rules, clk, logger.Named("bookings"))
	return NewAppService(rules, availability, carts, checkout, bookings)
}
