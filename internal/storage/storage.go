// Package storage groups the repositories a backend provides.
package storage

import (
	"context"

	"github.com/xenking/kitchen-orders/internal/domain/coupon"
	"github.com/xenking/kitchen-orders/internal/domain/order"
	"github.com/xenking/kitchen-orders/internal/domain/product"
	"github.com/xenking/kitchen-orders/internal/domain/schedule"
	"github.com/xenking/kitchen-orders/internal/domain/stock"
)

// Drivers accepted by Config.Driver.
const (
	DriverPostgres  = "postgres"
	DriverFirestore = "firestore"
	DriverMemory    = "memory"
)

// CatalogWriter loads reference data: products, stock levels, coupons and
// schedules. The order pipeline only reads these; seeding and import tools
// write them.
type CatalogWriter interface {
	UpsertProduct(ctx context.Context, p product.Product) error
	SetStock(ctx context.Context, r stock.Record) error
	UpsertCoupon(ctx context.Context, c coupon.Coupon) error
	UpsertOrderingTimes(ctx context.Context, t schedule.OrderingTimes) error
}

// Store is a complete storage backend.
type Store struct {
	Products  product.Repository
	Stock     stock.Ledger
	Coupons   coupon.Repository
	Schedules schedule.Repository
	Orders    order.Repository
	Numbers   order.NumberSequence
	Catalog   CatalogWriter

	// Ping checks backend connectivity for readiness probes.
	Ping func(ctx context.Context) error
	// Close releases backend resources.
	Close func() error
}
