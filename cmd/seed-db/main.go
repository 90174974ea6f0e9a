package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/kitchen-orders/internal/app"
	"github.com/xenking/kitchen-orders/internal/domain/stock"
	"github.com/xenking/kitchen-orders/internal/storage"
	"github.com/xenking/kitchen-orders/internal/storage/document"
)

// fixtures is the seed file layout. Products, coupons and schedules use the
// stored document form so money stays a decimal string.
type fixtures struct {
	Products      []document.Product       `json:"products"`
	Stock         []stockJSON              `json:"stock"`
	Coupons       []document.Coupon        `json:"coupons"`
	OrderingTimes []document.OrderingTimes `json:"orderingTimes"`
}

type stockJSON struct {
	ProductID string `json:"productId"`
	BranchID  string `json:"branchId"`
	Quantity  int    `json:"quantity"`
	Tracked   bool   `json:"tracked"`
}

func main() {
	var (
		cfg          app.StorageConfig
		fixturesFile string
	)

	flag.StringVar(&cfg.Driver, "driver", storage.DriverPostgres, "storage backend: postgres or firestore")
	flag.StringVar(&cfg.DatabaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&cfg.Firestore.ProjectID, "firestore-project", "", "Firestore project (or GOOGLE_CLOUD_PROJECT env)")
	flag.StringVar(&cfg.Firestore.EmulatorHost, "firestore-emulator", "", "Firestore emulator host (or FIRESTORE_EMULATOR_HOST env)")
	flag.StringVar(&fixturesFile, "fixtures", "db/seed/catalog.json", "path to catalog fixtures JSON file")
	flag.Parse()

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.Driver == storage.DriverMemory {
		slog.Error("seeding the memory driver has no lasting effect")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid storage configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, cfg, fixturesFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, cfg app.StorageConfig, fixturesFile string) error {
	slog.Info("reading fixtures", slog.String("path", fixturesFile))
	data, err := os.ReadFile(fixturesFile)
	if err != nil {
		return errors.Wrap(err, "read fixtures")
	}
	var fx fixtures
	if err := json.Unmarshal(data, &fx); err != nil {
		return errors.Wrap(err, "parse fixtures")
	}

	slog.Info("connecting to storage", slog.String("driver", cfg.Driver))
	store, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer func() { _ = store.Close() }()

	return seed(ctx, store.Catalog, fx)
}

func seed(ctx context.Context, catalog storage.CatalogWriter, fx fixtures) error {
	for _, d := range fx.Products {
		p, err := d.ToProduct()
		if err != nil {
			return errors.Wrapf(err, "product %s", d.ID)
		}
		if err := catalog.UpsertProduct(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		slog.Info("upserted product", slog.String("id", p.ID), slog.String("branch", p.BranchID), slog.String("name", p.Name))
	}

	for _, s := range fx.Stock {
		if s.Quantity < 0 {
			return errors.Errorf("stock %s/%s: negative quantity", s.BranchID, s.ProductID)
		}
		if err := catalog.SetStock(ctx, stock.Record{
			ProductID: s.ProductID,
			BranchID:  s.BranchID,
			Quantity:  s.Quantity,
			Tracked:   s.Tracked,
		}); err != nil {
			return errors.Wrapf(err, "set stock %s/%s", s.BranchID, s.ProductID)
		}
	}
	slog.Info("stock levels set", slog.Int("count", len(fx.Stock)))

	for _, d := range fx.Coupons {
		c, err := d.ToCoupon()
		if err != nil {
			return errors.Wrapf(err, "coupon %s", d.ID)
		}
		if err := catalog.UpsertCoupon(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
		slog.Info("upserted coupon", slog.String("code", c.Code), slog.String("branch", c.BranchID))
	}

	for _, d := range fx.OrderingTimes {
		if err := catalog.UpsertOrderingTimes(ctx, d.ToOrderingTimes()); err != nil {
			return errors.Wrapf(err, "upsert ordering times %s", d.BranchID)
		}
		slog.Info("upserted ordering times", slog.String("branch", d.BranchID))
	}
	return nil
}
