package order_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kitchen-orders/internal/domain/auth"
	"github.com/xenking/kitchen-orders/internal/domain/branch"
	"github.com/xenking/kitchen-orders/internal/domain/coupon"
	"github.com/xenking/kitchen-orders/internal/domain/order"
	"github.com/xenking/kitchen-orders/internal/domain/pricing"
	"github.com/xenking/kitchen-orders/internal/domain/product"
	"github.com/xenking/kitchen-orders/internal/domain/schedule"
	"github.com/xenking/kitchen-orders/internal/domain/stock"
	"github.com/xenking/kitchen-orders/internal/storage"
	"github.com/xenking/kitchen-orders/internal/storage/memory"
)

// Tuesday.
var fixedNow = time.Date(2025, 6, 17, 12, 0, 0, 0, time.UTC)

// --- Helpers ---

type recorder struct {
	mu     sync.Mutex
	events []order.Event
}

func (r *recorder) Emit(_ context.Context, e order.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) names() []order.EventName {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]order.EventName, len(r.events))
	for i, e := range r.events {
		out[i] = e.Name
	}
	return out
}

type fixture struct {
	store  *storage.Store
	events *recorder
	svc    *order.Service
}

type option func(d *order.Deps)

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	events := &recorder{}

	require.NoError(t, store.Catalog.UpsertProduct(ctx, product.Product{
		ID: "burger", BranchID: "b1", Name: "Burger", Price: decimal.NewFromInt(10),
		Attributes: []product.Attribute{{
			ID: "extras", Name: "Extras", Type: "multi",
			Items: []product.AttributeItem{{ID: "cheese", Name: "Cheese", Price: decimal.RequireFromString("1.50")}},
		}},
	}))
	require.NoError(t, store.Catalog.UpsertProduct(ctx, product.Product{
		ID: "fries", BranchID: "b1", Name: "Fries", Price: decimal.NewFromInt(5),
	}))
	require.NoError(t, store.Catalog.UpsertProduct(ctx, product.Product{
		ID: "pizza", BranchID: "b2", Name: "Pizza", Price: decimal.NewFromInt(12),
	}))
	require.NoError(t, store.Catalog.SetStock(ctx, stock.Record{ProductID: "burger", BranchID: "b1", Quantity: 10, Tracked: true}))
	require.NoError(t, store.Catalog.UpsertOrderingTimes(ctx, schedule.OrderingTimes{
		BranchID: "b1",
		Weekly: map[string]schedule.Day{
			"tuesday": {Services: map[branch.ServiceType]schedule.Service{
				branch.DeliveryType: {Allowed: true, LeadTimeMinutes: intPtr(30)},
			}},
		},
	}))

	d := order.Deps{
		Products:  store.Products,
		Stock:     store.Stock,
		Coupons:   store.Coupons,
		Schedules: store.Schedules,
		Orders:    store.Orders,
		Numbers:   store.Numbers,
		Events:    events,
		Now:       func() time.Time { return fixedNow },
	}
	for _, o := range opts {
		o(&d)
	}
	svc, err := order.NewService(d)
	require.NoError(t, err)
	return &fixture{store: store, events: events, svc: svc}
}

func intPtr(n int) *int { return &n }

func everyDay() map[string]bool {
	return map[string]bool{
		"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
		"friday": true, "saturday": true, "sunday": true,
	}
}

func (f *fixture) addCoupon(t *testing.T, c coupon.Coupon) {
	t.Helper()
	if c.BranchEnabled == nil {
		c.BranchEnabled = map[string]bool{"b1": true}
	}
	if c.DaysAvailable == nil {
		c.DaysAvailable = everyDay()
	}
	if c.ServiceTypes == nil {
		c.ServiceTypes = map[branch.ServiceType]bool{branch.Collection: true, branch.DeliveryType: true}
	}
	if c.State == "" {
		c.State = coupon.StateActive
	}
	require.NoError(t, f.store.Catalog.UpsertCoupon(context.Background(), c))
}

func (f *fixture) available(t *testing.T, productID string) int {
	t.Helper()
	res, err := f.store.Stock.Check(context.Background(), []stock.Item{{ProductID: productID, Quantity: 1}})
	require.NoError(t, err)
	return res.Info[0].Available
}

var (
	customer = auth.Principal{UserID: "u1", Role: auth.RoleCustomer}
	staff    = auth.Principal{UserID: "s1", Role: auth.RoleStaff, BranchID: "b1"}
	admin    = auth.Principal{UserID: "a1", Role: auth.RoleBranchAdmin, BranchID: "b1"}
	super    = auth.Principal{UserID: "root", Role: auth.RoleSuperAdmin}
)

func pickup(lines ...order.LineRequest) order.CreateRequest {
	return order.CreateRequest{
		Principal:      customer,
		BranchID:       "b1",
		Lines:          lines,
		DeliveryMethod: branch.Pickup,
	}
}

// --- Create ---

func TestCreate_PricesLinesAndDeductsStock(t *testing.T) {
	f := newFixture(t)

	o, err := f.svc.Create(context.Background(), order.CreateRequest{
		Principal: customer,
		BranchID:  "b1",
		Lines: []order.LineRequest{
			{
				ProductID: "burger", Quantity: 2, Notes: "<i>well done</i>",
				Attributes: []order.AttributeRequest{{
					AttributeID: "extras",
					Items:       []order.AttributeItemRequest{{ItemID: "cheese", Quantity: 1}},
				}},
			},
			{ProductID: "fries", Quantity: 1},
		},
		DeliveryMethod:  branch.Delivery,
		DeliveryAddress: "1 High Street",
	})
	require.NoError(t, err)

	assert.Equal(t, "B1-000001", o.Number)
	assert.Equal(t, "u1", o.UserID)
	assert.Equal(t, order.StatusPending, o.Status)
	require.Len(t, o.Lines, 2)
	assert.Equal(t, "Burger", o.Lines[0].Name)
	assert.Equal(t, "well done", o.Lines[0].Notes)
	assert.Equal(t, "23.00", o.Lines[0].LineTotal.StringFixed(2))
	assert.Equal(t, "28.00", o.TotalAmount.StringFixed(2))
	assert.Equal(t, "28.00", o.FinalTotal.StringFixed(2))
	assert.Equal(t, 30, o.EstimatedMinutes)

	assert.Equal(t, 8, f.available(t, "burger"))
	assert.Equal(t, []order.EventName{order.EventCreated}, f.events.names())

	stored, err := f.store.Orders.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, stored.Number)
}

func TestCreate_ActivePriceIncrease(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Catalog.UpsertProduct(context.Background(), product.Product{
		ID: "burger", BranchID: "b1", Name: "Burger", Price: decimal.NewFromInt(10),
		PriceChanges: []pricing.Change{
			{ID: "old", Type: pricing.Decrease, Value: decimal.NewFromInt(5), Active: true, CreatedAt: fixedNow.Add(-48 * time.Hour)},
			{ID: "new", Type: pricing.Increase, Value: decimal.NewFromInt(2), Active: true, CreatedAt: fixedNow.Add(-time.Hour)},
		},
	}))

	o, err := f.svc.Create(context.Background(), pickup(order.LineRequest{ProductID: "burger", Quantity: 3}))
	require.NoError(t, err)
	assert.Equal(t, "12.00", o.Lines[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "36.00", o.Lines[0].LineTotal.StringFixed(2))
}

func TestCreate_DefaultLeadTimeForUnscheduledService(t *testing.T) {
	f := newFixture(t)
	o, err := f.svc.Create(context.Background(), pickup(order.LineRequest{ProductID: "fries", Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, schedule.DefaultLeadTime, o.EstimatedMinutes)
}

type failingSchedules struct{}

func (failingSchedules) Get(context.Context, string) (*schedule.OrderingTimes, error) {
	return nil, errors.New("firestore unavailable")
}

func TestCreate_ScheduleFailureDegrades(t *testing.T) {
	f := newFixture(t, func(d *order.Deps) { d.Schedules = failingSchedules{} })
	o, err := f.svc.Create(context.Background(), order.CreateRequest{
		Principal: customer, BranchID: "b1",
		Lines:          []order.LineRequest{{ProductID: "fries", Quantity: 1}},
		DeliveryMethod: branch.Delivery, DeliveryAddress: "x",
	})
	require.NoError(t, err)
	assert.Equal(t, schedule.DefaultLeadTime, o.EstimatedMinutes)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   order.CreateRequest
		field string
	}{
		{name: "no lines", req: pickup(), field: "lines"},
		{name: "zero quantity", req: pickup(order.LineRequest{ProductID: "burger"}), field: "lines[0].quantity"},
		{name: "missing product id", req: pickup(order.LineRequest{Quantity: 1}), field: "lines[0].productId"},
		{
			name: "missing branch",
			req: order.CreateRequest{
				Principal: customer, Lines: []order.LineRequest{{ProductID: "fries", Quantity: 1}},
				DeliveryMethod: branch.Pickup,
			},
			field: "branchId",
		},
		{
			name: "unknown delivery method",
			req: order.CreateRequest{
				Principal: customer, BranchID: "b1",
				Lines: []order.LineRequest{{ProductID: "fries", Quantity: 1}}, DeliveryMethod: "drone",
			},
			field: "deliveryMethod",
		},
		{
			name: "delivery without address",
			req: order.CreateRequest{
				Principal: customer, BranchID: "b1",
				Lines: []order.LineRequest{{ProductID: "fries", Quantity: 1}}, DeliveryMethod: branch.Delivery,
			},
			field: "deliveryAddress",
		},
		{name: "product of another branch", req: pickup(order.LineRequest{ProductID: "pizza", Quantity: 1}), field: "lines[0].productId"},
		{
			name: "unknown attribute",
			req: pickup(order.LineRequest{ProductID: "burger", Quantity: 1, Attributes: []order.AttributeRequest{
				{AttributeID: "sauce", Items: []order.AttributeItemRequest{{ItemID: "bbq", Quantity: 1}}},
			}}),
			field: "lines[0].attributes",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Create(context.Background(), tt.req)

			var verr *order.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, 10, f.available(t, "burger"))
			assert.Empty(t, f.events.names())
		})
	}
}

func TestCreate_UnknownProduct(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), pickup(order.LineRequest{ProductID: "ghost", Quantity: 1}))

	var nf *order.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "product", nf.Resource)
	assert.Equal(t, "ghost", nf.ID)
}

func TestCreate_PinnedAdmin(t *testing.T) {
	f := newFixture(t)

	o, err := f.svc.Create(context.Background(), order.CreateRequest{
		Principal: admin, Lines: []order.LineRequest{{ProductID: "fries", Quantity: 1}},
		DeliveryMethod: branch.DineIn,
	})
	require.NoError(t, err)
	assert.Equal(t, "b1", o.BranchID)

	_, err = f.svc.Create(context.Background(), order.CreateRequest{
		Principal: admin, BranchID: "b2", Lines: []order.LineRequest{{ProductID: "pizza", Quantity: 1}},
		DeliveryMethod: branch.DineIn,
	})
	var aerr *order.AuthorizationError
	require.ErrorAs(t, err, &aerr)
}

func TestCreate_InsufficientStock(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), pickup(
		order.LineRequest{ProductID: "burger", Quantity: 6},
		order.LineRequest{ProductID: "burger", Quantity: 5},
	))
	var serr *stock.StockError
	require.ErrorAs(t, err, &serr)
	require.Len(t, serr.Lines, 1)
	assert.Equal(t, stock.LineError{ProductID: "burger", Requested: 11, Available: 10}, serr.Lines[0])

	list, err := f.store.Orders.List(context.Background(), order.Filter{BranchID: "b1"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreate_LastUnitRace(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Catalog.SetStock(context.Background(), stock.Record{ProductID: "burger", Quantity: 1, Tracked: true}))

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		errs []error
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := pickup(order.LineRequest{ProductID: "burger", Quantity: 1})
			req.Principal = auth.Principal{UserID: "u" + string(rune('a'+i)), Role: auth.RoleCustomer}
			_, err := f.svc.Create(context.Background(), req)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	for _, err := range errs {
		var serr *stock.StockError
		assert.ErrorAs(t, err, &serr)
	}
	assert.Equal(t, 0, f.available(t, "burger"))

	list, err := f.store.Orders.List(context.Background(), order.Filter{BranchID: "b1"})
	require.NoError(t, err)
	assert.Len(t, list, 1, "losing orders are rolled back")
}

// optimisticLedger passes every check, so the conflict surfaces on Deduct.
type optimisticLedger struct {
	stock.Ledger
}

func (optimisticLedger) Check(context.Context, []stock.Item) (stock.CheckResult, error) {
	return stock.CheckResult{Success: true}, nil
}

func TestCreate_DeductConflictCompensates(t *testing.T) {
	f := newFixture(t, func(d *order.Deps) {
		d.Stock = optimisticLedger{Ledger: d.Stock}
	})
	store := f.store
	f.addCoupon(t, coupon.Coupon{
		ID: "c1", BranchID: "b1", Code: "SAVE10",
		Type: coupon.DiscountPercentage, Value: decimal.NewFromInt(10),
	})
	require.NoError(t, store.Catalog.SetStock(context.Background(), stock.Record{ProductID: "burger", Quantity: 1, Tracked: true}))

	req := pickup(order.LineRequest{ProductID: "burger", Quantity: 2})
	req.CouponCode = "save10"
	_, err := f.svc.Create(context.Background(), req)

	var serr *stock.StockError
	require.ErrorAs(t, err, &serr)

	list, err := store.Orders.List(context.Background(), order.Filter{BranchID: "b1"})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 0, store.Coupons.(*memory.Coupons).Usage("c1", "total"))
	assert.Empty(t, f.events.names())
}

type failingOrders struct {
	order.Repository
}

func (failingOrders) Create(context.Context, *order.Order) error {
	return errors.New("write failed")
}

func TestCreate_PersistFailureLeavesStock(t *testing.T) {
	f := newFixture(t, func(d *order.Deps) { d.Orders = failingOrders{Repository: d.Orders} })
	f.addCoupon(t, coupon.Coupon{
		ID: "c1", BranchID: "b1", Code: "SAVE10",
		Type: coupon.DiscountFixed, Value: decimal.NewFromInt(1),
	})

	req := pickup(order.LineRequest{ProductID: "burger", Quantity: 1})
	req.CouponCode = "SAVE10"
	_, err := f.svc.Create(context.Background(), req)
	require.Error(t, err)

	assert.Equal(t, 10, f.available(t, "burger"))
	assert.Equal(t, 0, f.store.Coupons.(*memory.Coupons).Usage("c1", "total"))
}

// --- Coupons ---

func TestCreate_PercentageCoupon(t *testing.T) {
	f := newFixture(t)
	f.addCoupon(t, coupon.Coupon{
		ID: "c1", BranchID: "b1", Code: "SAVE10",
		Type: coupon.DiscountPercentage, Value: decimal.NewFromInt(10),
	})

	req := pickup(order.LineRequest{ProductID: "burger", Quantity: 5})
	req.CouponCode = "SAVE10"
	o, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, o.Discount)
	assert.Equal(t, "50.00", o.TotalAmount.StringFixed(2))
	assert.Equal(t, "5.00", o.Discount.Amount.StringFixed(2))
	assert.Equal(t, "45.00", o.FinalTotal.StringFixed(2))
	assert.Equal(t, 1, f.store.Coupons.(*memory.Coupons).Usage("c1", "total"))
}

func TestCreate_CouponRejections(t *testing.T) {
	tests := []struct {
		name   string
		coupon *coupon.Coupon
		code   string
		user   auth.Principal
		prior  bool
		reason coupon.Reason
	}{
		{
			name: "min spend not reached",
			coupon: &coupon.Coupon{
				ID: "c1", BranchID: "b1", Code: "BIG", Type: coupon.DiscountFixed,
				Value: decimal.NewFromInt(5), MinSpend: decimal.NewFromInt(20),
			},
			code:   "BIG",
			reason: coupon.ReasonMinSpend,
		},
		{name: "unknown code", code: "NOPE", reason: coupon.ReasonNotFound},
		{
			name: "paused",
			coupon: &coupon.Coupon{
				ID: "c1", BranchID: "b1", Code: "OFF", Type: coupon.DiscountFixed,
				Value: decimal.NewFromInt(1), State: coupon.StatePaused,
			},
			code:   "OFF",
			reason: coupon.ReasonInactive,
		},
		{
			name: "first order for guest",
			coupon: &coupon.Coupon{
				ID: "c1", BranchID: "b1", Code: "HELLO", Type: coupon.DiscountFixed,
				Value: decimal.NewFromInt(1), FirstOrderOnly: true,
			},
			code:   "HELLO",
			user:   auth.Guest(),
			reason: coupon.ReasonFirstOrder,
		},
		{
			name: "first order for returning customer",
			coupon: &coupon.Coupon{
				ID: "c1", BranchID: "b1", Code: "HELLO", Type: coupon.DiscountFixed,
				Value: decimal.NewFromInt(1), FirstOrderOnly: true,
			},
			code:   "HELLO",
			prior:  true,
			reason: coupon.ReasonFirstOrder,
		},
		{
			name: "usage cap",
			coupon: &coupon.Coupon{
				ID: "c1", BranchID: "b1", Code: "ONCE", Type: coupon.DiscountFixed,
				Value: decimal.NewFromInt(1), Limits: coupon.Limits{PerCustomer: 1},
			},
			code:   "ONCE",
			prior:  true,
			reason: coupon.ReasonUsageLimit,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.coupon != nil {
				f.addCoupon(t, *tt.coupon)
			}
			principal := customer
			if tt.user.Role != "" {
				principal = tt.user
			}
			if tt.prior {
				prior := pickup(order.LineRequest{ProductID: "fries", Quantity: 1})
				if tt.reason == coupon.ReasonUsageLimit {
					prior.CouponCode = tt.code
				}
				_, err := f.svc.Create(context.Background(), prior)
				require.NoError(t, err)
			}

			req := pickup(order.LineRequest{ProductID: "burger", Quantity: 1}, order.LineRequest{ProductID: "fries", Quantity: 1})
			req.Principal = principal
			req.CouponCode = tt.code
			_, err := f.svc.Create(context.Background(), req)

			var cerr *coupon.Error
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.reason, cerr.Reason)
			assert.Equal(t, tt.code, cerr.Code)
			assert.Equal(t, 10, f.available(t, "burger"), "no stock deducted")
		})
	}
}

func TestCreate_ConcurrentFirstOrderCoupon(t *testing.T) {
	f := newFixture(t)
	f.addCoupon(t, coupon.Coupon{
		ID: "c1", BranchID: "b1", Code: "HELLO", Type: coupon.DiscountFixed,
		Value: decimal.NewFromInt(1), FirstOrderOnly: true,
	})

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := pickup(order.LineRequest{ProductID: "fries", Quantity: 1})
			req.CouponCode = "HELLO"
			_, err := f.svc.Create(context.Background(), req)
			if err == nil {
				accepted.Add(1)
				return
			}
			var cerr *coupon.Error
			if assert.ErrorAs(t, err, &cerr) {
				assert.Equal(t, coupon.ReasonFirstOrder, cerr.Reason)
				assert.Equal(t, "HELLO", cerr.Code)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, 1, f.store.Coupons.(*memory.Coupons).Usage("c1", "total"))
}

// --- Status changes ---

func placeOrder(t *testing.T, f *fixture, qty int) *order.Order {
	t.Helper()
	o, err := f.svc.Create(context.Background(), pickup(order.LineRequest{ProductID: "burger", Quantity: qty}))
	require.NoError(t, err)
	return o
}

func TestUpdateStatus_Flow(t *testing.T) {
	f := newFixture(t)
	o := placeOrder(t, f, 1)
	ctx := context.Background()

	for _, st := range []order.Status{order.StatusConfirmed, order.StatusReady, order.StatusCompleted} {
		updated, err := f.svc.UpdateStatus(ctx, order.UpdateStatusRequest{Principal: staff, OrderID: o.ID, Status: st})
		require.NoError(t, err)
		assert.Equal(t, st, updated.Status)
	}

	_, err := f.svc.UpdateStatus(ctx, order.UpdateStatusRequest{Principal: staff, OrderID: o.ID, Status: order.StatusCancelled})
	require.ErrorIs(t, err, order.ErrConflict)
	assert.Equal(t, 9, f.available(t, "burger"), "terminal orders keep their stock")

	assert.Equal(t, []order.EventName{
		order.EventCreated, order.EventUpdated, order.EventUpdated, order.EventUpdated,
	}, f.events.names())
}

func TestUpdateStatus_Authorization(t *testing.T) {
	f := newFixture(t)
	o := placeOrder(t, f, 1)
	ctx := context.Background()

	otherStaff := auth.Principal{UserID: "s2", Role: auth.RoleStaff, BranchID: "b2"}
	for _, p := range []auth.Principal{customer, auth.Guest(), otherStaff} {
		_, err := f.svc.UpdateStatus(ctx, order.UpdateStatusRequest{Principal: p, OrderID: o.ID, Status: order.StatusConfirmed})
		var aerr *order.AuthorizationError
		require.ErrorAs(t, err, &aerr, "principal %+v", p)
	}

	_, err := f.svc.UpdateStatus(ctx, order.UpdateStatusRequest{Principal: super, OrderID: o.ID, Status: order.StatusConfirmed})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, order.UpdateStatusRequest{Principal: staff, OrderID: "missing", Status: order.StatusConfirmed})
	var nf *order.NotFoundError
	require.ErrorAs(t, err, &nf)

	_, err = f.svc.UpdateStatus(ctx, order.UpdateStatusRequest{Principal: staff, OrderID: o.ID, Status: "lost"})
	var verr *order.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCancel_RestoresStockOnce(t *testing.T) {
	f := newFixture(t)
	o := placeOrder(t, f, 3)
	ctx := context.Background()
	require.Equal(t, 7, f.available(t, "burger"))

	cancelled, err := f.svc.Cancel(ctx, order.CancelRequest{Principal: staff, OrderID: o.ID})
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, 10, f.available(t, "burger"))

	again, err := f.svc.Cancel(ctx, order.CancelRequest{Principal: staff, OrderID: o.ID})
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, again.Status)
	assert.Equal(t, 10, f.available(t, "burger"))

	assert.Equal(t, []order.EventName{order.EventCreated, order.EventCancelled}, f.events.names())
}

// flakyLedger fails the first Restore call.
type flakyLedger struct {
	stock.Ledger
	failed atomic.Bool
}

func (l *flakyLedger) Restore(ctx context.Context, items []stock.Item) (stock.RestoreResult, error) {
	if l.failed.CompareAndSwap(false, true) {
		return stock.RestoreResult{}, errors.New("transient")
	}
	return l.Ledger.Restore(ctx, items)
}

func TestCancel_RestoreFailureRevertsStatus(t *testing.T) {
	f := newFixture(t, func(d *order.Deps) {
		d.Stock = &flakyLedger{Ledger: d.Stock}
	})
	o := placeOrder(t, f, 3)
	ctx := context.Background()
	require.Equal(t, 7, f.available(t, "burger"))

	_, err := f.svc.Cancel(ctx, order.CancelRequest{Principal: staff, OrderID: o.ID})
	require.ErrorContains(t, err, "transient")

	stored, err := f.svc.Get(ctx, staff, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, stored.Status)
	assert.Nil(t, stored.CancelledAt)
	assert.Equal(t, 7, f.available(t, "burger"))

	cancelled, err := f.svc.Cancel(ctx, order.CancelRequest{Principal: staff, OrderID: o.ID})
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	assert.Equal(t, 10, f.available(t, "burger"))

	assert.Equal(t, []order.EventName{order.EventCreated, order.EventCancelled}, f.events.names())
}

func TestCancel_ConcurrentRestoresOnce(t *testing.T) {
	f := newFixture(t)
	o := placeOrder(t, f, 4)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.UpdateStatus(ctx, order.UpdateStatusRequest{Principal: staff, OrderID: o.ID, Status: order.StatusCancelled})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, f.available(t, "burger"))
	cancelled := 0
	for _, n := range f.events.names() {
		if n == order.EventCancelled {
			cancelled++
		}
	}
	assert.Equal(t, 1, cancelled)
}

func TestCancel_ByOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := placeOrder(t, f, 1)
	_, err := f.svc.Cancel(ctx, order.CancelRequest{Principal: auth.Principal{UserID: "u2", Role: auth.RoleCustomer}, OrderID: o.ID})
	var aerr *order.AuthorizationError
	require.ErrorAs(t, err, &aerr)

	_, err = f.svc.Cancel(ctx, order.CancelRequest{Principal: customer, OrderID: o.ID})
	require.NoError(t, err)

	confirmed := placeOrder(t, f, 1)
	_, err = f.svc.UpdateStatus(ctx, order.UpdateStatusRequest{Principal: staff, OrderID: confirmed.ID, Status: order.StatusConfirmed})
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, order.CancelRequest{Principal: customer, OrderID: confirmed.ID})
	require.ErrorAs(t, err, &aerr)
}

func TestDelete_DoesNotRestoreStock(t *testing.T) {
	f := newFixture(t)
	o := placeOrder(t, f, 2)
	ctx := context.Background()

	err := f.svc.Delete(ctx, order.DeleteRequest{Principal: customer, OrderID: o.ID})
	var aerr *order.AuthorizationError
	require.ErrorAs(t, err, &aerr)

	require.NoError(t, f.svc.Delete(ctx, order.DeleteRequest{Principal: admin, OrderID: o.ID}))
	assert.Equal(t, 8, f.available(t, "burger"))

	_, err = f.store.Orders.Get(ctx, o.ID)
	require.ErrorIs(t, err, order.ErrNotFound)
	assert.Equal(t, []order.EventName{order.EventCreated, order.EventDeleted}, f.events.names())

	err = f.svc.Delete(ctx, order.DeleteRequest{Principal: admin, OrderID: o.ID})
	var nf *order.NotFoundError
	require.ErrorAs(t, err, &nf)
}

// --- Reads ---

func TestGetAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := placeOrder(t, f, 1)

	other := pickup(order.LineRequest{ProductID: "fries", Quantity: 1})
	other.Principal = auth.Principal{UserID: "u2", Role: auth.RoleCustomer}
	theirs, err := f.svc.Create(ctx, other)
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, customer, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, mine.ID, got.ID)

	_, err = f.svc.Get(ctx, customer, theirs.ID)
	var aerr *order.AuthorizationError
	require.ErrorAs(t, err, &aerr)

	_, err = f.svc.Get(ctx, staff, theirs.ID)
	require.NoError(t, err)

	list, err := f.svc.List(ctx, customer, order.Filter{BranchID: "b1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	list, err = f.svc.List(ctx, staff, order.Filter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = f.svc.List(ctx, staff, order.Filter{BranchID: "b2"})
	require.ErrorAs(t, err, &aerr)

	_, err = f.svc.List(ctx, auth.Guest(), order.Filter{BranchID: "b1"})
	require.ErrorAs(t, err, &aerr)
}

func TestAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Availability(ctx, "b1", branch.Delivery)
	require.NoError(t, err)
	assert.True(t, a.Allowed)
	assert.Equal(t, 30, a.LeadTimeMinutes)

	a, err = f.svc.Availability(ctx, "b1", branch.Pickup)
	require.NoError(t, err)
	assert.False(t, a.Allowed)
	assert.Equal(t, schedule.ReasonNotOffered, a.Reason)

	a, err = f.svc.Availability(ctx, "nowhere", branch.Pickup)
	require.NoError(t, err)
	assert.True(t, a.Allowed)
}
