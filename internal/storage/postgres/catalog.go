package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kitchen-orders/internal/domain/coupon"
	"github.com/xenking/kitchen-orders/internal/domain/product"
	"github.com/xenking/kitchen-orders/internal/domain/schedule"
	"github.com/xenking/kitchen-orders/internal/domain/stock"
	"github.com/xenking/kitchen-orders/internal/storage"
	"github.com/xenking/kitchen-orders/internal/storage/document"
)

const (
	upsertProductSQL = `INSERT INTO products (id, branch_id, name, category, price, price_changes, attributes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			branch_id = EXCLUDED.branch_id, name = EXCLUDED.name, category = EXCLUDED.category,
			price = EXCLUDED.price, price_changes = EXCLUDED.price_changes, attributes = EXCLUDED.attributes`

	setStockSQL = `INSERT INTO stock (product_id, branch_id, quantity, tracked) VALUES ($1, $2, $3, $4)
		ON CONFLICT (product_id) DO UPDATE SET
			branch_id = EXCLUDED.branch_id, quantity = EXCLUDED.quantity, tracked = EXCLUDED.tracked`

	upsertCouponSQL = `INSERT INTO coupons (id, branch_id, code, name, discount_type, value, min_spend, max_spend,
			branch_enabled, days_available, service_types, limit_total, limit_per_customer, limit_per_day,
			first_order_only, time_dependent, start_date, end_date, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			branch_id = EXCLUDED.branch_id, code = EXCLUDED.code, name = EXCLUDED.name,
			discount_type = EXCLUDED.discount_type, value = EXCLUDED.value,
			min_spend = EXCLUDED.min_spend, max_spend = EXCLUDED.max_spend,
			branch_enabled = EXCLUDED.branch_enabled, days_available = EXCLUDED.days_available,
			service_types = EXCLUDED.service_types, limit_total = EXCLUDED.limit_total,
			limit_per_customer = EXCLUDED.limit_per_customer, limit_per_day = EXCLUDED.limit_per_day,
			first_order_only = EXCLUDED.first_order_only, time_dependent = EXCLUDED.time_dependent,
			start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date, state = EXCLUDED.state`

	upsertOrderingTimesSQL = `INSERT INTO ordering_times (branch_id, timezone, weekly, closed) VALUES ($1, $2, $3, $4)
		ON CONFLICT (branch_id) DO UPDATE SET
			timezone = EXCLUDED.timezone, weekly = EXCLUDED.weekly, closed = EXCLUDED.closed`
)

var _ storage.CatalogWriter = (*CatalogWriter)(nil)

// CatalogWriter implements storage.CatalogWriter backed by PostgreSQL.
type CatalogWriter struct {
	pool *pgxpool.Pool
}

// NewCatalogWriter returns a CatalogWriter that uses the given pool.
func NewCatalogWriter(pool *pgxpool.Pool) *CatalogWriter {
	return &CatalogWriter{pool: pool}
}

func (w *CatalogWriter) UpsertProduct(ctx context.Context, p product.Product) error {
	changes, err := json.Marshal(document.FromPriceChanges(p.PriceChanges))
	if err != nil {
		return fmt.Errorf("marshaling price changes: %w", err)
	}
	attrs, err := json.Marshal(document.FromAttributes(p.Attributes))
	if err != nil {
		return fmt.Errorf("marshaling attributes: %w", err)
	}
	if _, err := w.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.BranchID, p.Name, p.Category, p.Price, changes, attrs,
	); err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func (w *CatalogWriter) SetStock(ctx context.Context, r stock.Record) error {
	if _, err := w.pool.Exec(ctx, setStockSQL, r.ProductID, r.BranchID, r.Quantity, r.Tracked); err != nil {
		return fmt.Errorf("setting stock of %q: %w", r.ProductID, err)
	}
	return nil
}

func (w *CatalogWriter) UpsertCoupon(ctx context.Context, c coupon.Coupon) error {
	d := document.FromCoupon(c)
	maps := make([][]byte, 0, 3)
	for _, m := range []map[string]bool{d.BranchEnabled, d.DaysAvailable, d.ServiceTypes} {
		if m == nil {
			m = map[string]bool{}
		}
		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshaling coupon %q: %w", c.ID, err)
		}
		maps = append(maps, raw)
	}
	if _, err := w.pool.Exec(ctx, upsertCouponSQL,
		c.ID, c.BranchID, d.Code, c.Name, string(c.Type), c.Value, c.MinSpend, c.MaxSpend,
		maps[0], maps[1], maps[2], c.Limits.Total, c.Limits.PerCustomer, c.Limits.PerDay,
		c.FirstOrderOnly, c.TimeDependent, c.StartDate, c.EndDate, string(c.State),
	); err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.ID, err)
	}
	return nil
}

func (w *CatalogWriter) UpsertOrderingTimes(ctx context.Context, t schedule.OrderingTimes) error {
	d := document.FromOrderingTimes(t)
	weekly, err := json.Marshal(d.Weekly)
	if err != nil {
		return fmt.Errorf("marshaling weekly schedule: %w", err)
	}
	closed, err := json.Marshal(d.Closed)
	if err != nil {
		return fmt.Errorf("marshaling closed dates: %w", err)
	}
	tz := t.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if _, err := w.pool.Exec(ctx, upsertOrderingTimesSQL, t.BranchID, tz, weekly, closed); err != nil {
		return fmt.Errorf("upserting ordering times of %q: %w", t.BranchID, err)
	}
	return nil
}
