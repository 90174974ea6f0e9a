package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kitchen-orders/internal/domain/coupon"
	"github.com/xenking/kitchen-orders/internal/storage/document"
)

const (
	getCouponByCodeSQL = `SELECT id, branch_id, code, name, discount_type, value, min_spend, max_spend,
		branch_enabled, days_available, service_types,
		limit_total, limit_per_customer, limit_per_day,
		first_order_only, time_dependent, start_date, end_date, state
		FROM coupons WHERE branch_id = $1 AND code = UPPER(TRIM($2))`

	// Increments the counter unless it already reached a positive limit.
	// No returned row means the cap is full.
	redeemCouponSQL = `INSERT INTO coupon_usage (coupon_id, scope, count) VALUES ($1, $2, 1)
		ON CONFLICT (coupon_id, scope) DO UPDATE SET count = coupon_usage.count + 1
		WHERE $3::int = 0 OR coupon_usage.count < $3::int
		RETURNING count`

	releaseCouponSQL = `UPDATE coupon_usage SET count = count - 1
		WHERE coupon_id = $1 AND scope = $2 AND count > 0`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon of a branch by its code (case-insensitive).
// Inactive coupons are returned too so validation can explain the rejection.
func (r *CouponRepository) FindByCode(ctx context.Context, branchID, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, branchID, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// Redeem increments every counter of the redemption in one transaction and
// rolls back if any of them is full.
func (r *CouponRepository) Redeem(ctx context.Context, red coupon.Redemption) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, c := range red.Counters() {
			var n int
			err := tx.QueryRow(ctx, redeemCouponSQL, red.CouponID, c.Scope, c.Limit).Scan(&n)
			if errors.Is(err, pgx.ErrNoRows) {
				return c.Rejection()
			}
			if err != nil {
				return fmt.Errorf("redeeming coupon %q (%s): %w", red.CouponID, c.Scope, err)
			}
		}
		return nil
	})
}

// Release decrements the counters of a previous Redeem.
func (r *CouponRepository) Release(ctx context.Context, red coupon.Redemption) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, c := range red.Counters() {
			if _, err := tx.Exec(ctx, releaseCouponSQL, red.CouponID, c.Scope); err != nil {
				return fmt.Errorf("releasing coupon %q (%s): %w", red.CouponID, c.Scope, err)
			}
		}
		return nil
	})
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c                                   coupon.Coupon
		discountType, state                 string
		value, minSpend, maxSpend           decimal.Decimal
		branchRaw, daysRaw, servicesRaw     []byte
		limitTotal, limitCustomer, limitDay int32
		startDate, endDate                  *time.Time
	)
	err := row.Scan(
		&c.ID, &c.BranchID, &c.Code, &c.Name, &discountType, &value, &minSpend, &maxSpend,
		&branchRaw, &daysRaw, &servicesRaw,
		&limitTotal, &limitCustomer, &limitDay,
		&c.FirstOrderOnly, &c.TimeDependent, &startDate, &endDate, &state,
	)
	if err != nil {
		return c, err
	}

	var services map[string]bool
	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{branchRaw, &c.BranchEnabled},
		{daysRaw, &c.DaysAvailable},
		{servicesRaw, &services},
	} {
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return c, fmt.Errorf("decoding coupon %q: %w", c.ID, err)
		}
	}

	c.Type = coupon.DiscountType(discountType)
	c.Value = value
	c.MinSpend = minSpend
	c.MaxSpend = maxSpend
	c.ServiceTypes = document.ToServiceTypes(services)
	c.Limits = coupon.Limits{Total: int(limitTotal), PerCustomer: int(limitCustomer), PerDay: int(limitDay)}
	c.StartDate = startDate
	c.EndDate = endDate
	c.State = coupon.State(state)
	return c, nil
}
