//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/kitchen-orders/internal/domain/auth"
	"github.com/xenking/kitchen-orders/internal/domain/branch"
	"github.com/xenking/kitchen-orders/internal/domain/coupon"
	"github.com/xenking/kitchen-orders/internal/domain/order"
	"github.com/xenking/kitchen-orders/internal/domain/pricing"
	"github.com/xenking/kitchen-orders/internal/domain/product"
	"github.com/xenking/kitchen-orders/internal/domain/schedule"
	"github.com/xenking/kitchen-orders/internal/domain/stock"
	"github.com/xenking/kitchen-orders/internal/storage"
)

func startPostgres(t *testing.T) *storage.Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "kitchen",
				"POSTGRES_PASSWORD": "kitchen",
				"POSTGRES_DB":       "kitchen",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, c)
	require.NoError(t, err)

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	url := fmt.Sprintf("postgres://kitchen:kitchen@%s:%s/kitchen?sslmode=disable", host, port.Port())
	store, err := Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostgres(t *testing.T) {
	store := startPostgres(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 17, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Catalog.UpsertProduct(ctx, product.Product{
		ID: "burger", BranchID: "b1", Name: "Burger", Category: "mains", Price: decimal.NewFromInt(10),
		PriceChanges: []pricing.Change{{ID: "pc1", Type: pricing.Increase, Value: decimal.NewFromInt(2), Active: true, CreatedAt: now}},
		Attributes: []product.Attribute{{ID: "extras", Name: "Extras", Items: []product.AttributeItem{
			{ID: "cheese", Name: "Cheese", Price: decimal.RequireFromString("1.50")},
		}}},
	}))

	t.Run("products", func(t *testing.T) {
		p, err := store.Products.GetByID(ctx, "burger")
		require.NoError(t, err)
		assert.Equal(t, "b1", p.BranchID)
		require.Len(t, p.PriceChanges, 1)
		assert.True(t, decimal.NewFromInt(12).Equal(pricing.Resolve(p.Price, p.PriceChanges)))
		require.Len(t, p.Attributes, 1)
		assert.Equal(t, "1.5", p.Attributes[0].Items[0].Price.String())

		_, err = store.Products.GetByID(ctx, "ghost")
		require.ErrorIs(t, err, product.ErrNotFound)
	})

	t.Run("stock deduct is atomic under contention", func(t *testing.T) {
		require.NoError(t, store.Catalog.SetStock(ctx, stock.Record{ProductID: "burger", BranchID: "b1", Quantity: 3, Tracked: true}))

		var (
			wg sync.WaitGroup
			ok atomic.Int32
		)
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.Stock.Deduct(ctx, []stock.Item{{ProductID: "burger", Quantity: 1}}); err == nil {
					ok.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(3), ok.Load())

		_, err := store.Stock.Deduct(ctx, []stock.Item{{ProductID: "burger", Quantity: 1}, {ProductID: "untracked", Quantity: 1}})
		var conflict *stock.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, 0, conflict.Lines[0].Available)

		res, err := store.Stock.Restore(ctx, []stock.Item{{ProductID: "burger", Quantity: 2}})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Restored[0].Available)
	})

	t.Run("coupon caps", func(t *testing.T) {
		require.NoError(t, store.Catalog.UpsertCoupon(ctx, coupon.Coupon{
			ID: "c1", BranchID: "b1", Code: "save10", Type: coupon.DiscountPercentage, Value: decimal.NewFromInt(10),
			BranchEnabled: map[string]bool{"b1": true},
			ServiceTypes:  map[branch.ServiceType]bool{branch.Collection: true},
			Limits:        coupon.Limits{Total: 2, PerCustomer: 1},
			State:         coupon.StateActive,
		}))
		c, err := store.Coupons.FindByCode(ctx, "b1", "Save10")
		require.NoError(t, err)
		assert.True(t, c.ServiceTypes[branch.Collection])

		r := func(user string) coupon.Redemption {
			return coupon.Redemption{CouponID: "c1", UserID: user, Day: "2025-06-17", Limits: c.Limits}
		}
		require.NoError(t, store.Coupons.Redeem(ctx, r("u1")))

		var cerr *coupon.Error
		require.ErrorAs(t, store.Coupons.Redeem(ctx, r("u1")), &cerr)
		assert.Equal(t, coupon.ReasonUsageLimit, cerr.Reason)

		require.NoError(t, store.Coupons.Redeem(ctx, r("u2")))
		require.ErrorAs(t, store.Coupons.Redeem(ctx, r("u3")), &cerr)

		require.NoError(t, store.Coupons.Release(ctx, r("u2")))
		require.NoError(t, store.Coupons.Redeem(ctx, r("u3")))
	})

	t.Run("schedule", func(t *testing.T) {
		lead := 30
		require.NoError(t, store.Catalog.UpsertOrderingTimes(ctx, schedule.OrderingTimes{
			BranchID: "b1",
			Weekly: map[string]schedule.Day{"tuesday": {Services: map[branch.ServiceType]schedule.Service{
				branch.DeliveryType: {Allowed: true, LeadTimeMinutes: &lead, Windows: []schedule.Window{{Open: "10:00", Close: "22:00"}}},
			}}},
			Closed: []schedule.ClosedDate{{Date: "2025-12-25"}},
		}))
		times, err := store.Schedules.Get(ctx, "b1")
		require.NoError(t, err)
		assert.Equal(t, "UTC", times.Timezone)
		assert.Equal(t, 30, schedule.Estimate(times, branch.Delivery, now))

		_, err = store.Schedules.Get(ctx, "b9")
		require.ErrorIs(t, err, schedule.ErrNotFound)
	})

	t.Run("order service", func(t *testing.T) {
		require.NoError(t, store.Catalog.SetStock(ctx, stock.Record{ProductID: "burger", BranchID: "b1", Quantity: 1, Tracked: true}))
		svc, err := order.NewService(order.Deps{
			Products:  store.Products,
			Stock:     store.Stock,
			Coupons:   store.Coupons,
			Schedules: store.Schedules,
			Orders:    store.Orders,
			Numbers:   store.Numbers,
			Now:       func() time.Time { return now },
		})
		require.NoError(t, err)

		req := order.CreateRequest{
			Principal:      auth.Principal{UserID: "u9", Role: auth.RoleCustomer},
			BranchID:       "b1",
			Lines:          []order.LineRequest{{ProductID: "burger", Quantity: 1}},
			DeliveryMethod: branch.Pickup,
		}

		var (
			wg      sync.WaitGroup
			created atomic.Pointer[order.Order]
			failed  atomic.Int32
		)
		for range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				o, err := svc.Create(ctx, req)
				if err != nil {
					var serr *stock.StockError
					assert.ErrorAs(t, err, &serr)
					failed.Add(1)
					return
				}
				created.Store(o)
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), failed.Load())
		o := created.Load()
		require.NotNil(t, o)
		assert.Equal(t, "12.00", o.FinalTotal.StringFixed(2))

		stored, err := store.Orders.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, o.Number, stored.Number)

		staff := auth.Principal{UserID: "s1", Role: auth.RoleStaff, BranchID: "b1"}
		cancelled, err := svc.Cancel(ctx, order.CancelRequest{Principal: staff, OrderID: o.ID})
		require.NoError(t, err)
		assert.Equal(t, order.StatusCancelled, cancelled.Status)

		_, err = store.Orders.UpdateStatus(ctx, o.ID, order.StatusPending, order.StatusConfirmed, now)
		require.ErrorIs(t, err, order.ErrConflict)

		check, err := store.Stock.Check(ctx, []stock.Item{{ProductID: "burger", Quantity: 1}})
		require.NoError(t, err)
		assert.True(t, check.Success)

		list, err := store.Orders.List(ctx, order.Filter{BranchID: "b1", Status: order.StatusCancelled})
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}
