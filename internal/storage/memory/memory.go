// Package memory is a mutex-guarded in-process storage backend for tests and
// local development.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/xenking/kitchen-orders/internal/domain/coupon"
	"github.com/xenking/kitchen-orders/internal/domain/order"
	"github.com/xenking/kitchen-orders/internal/domain/product"
	"github.com/xenking/kitchen-orders/internal/domain/schedule"
	"github.com/xenking/kitchen-orders/internal/domain/stock"
	"github.com/xenking/kitchen-orders/internal/storage"
)

// DB holds all state. Every repository locks the same mutex, so each
// operation is atomic with respect to all others.
type DB struct {
	mu        sync.RWMutex
	products  map[string]product.Product
	stock     map[string]stock.Record
	coupons   map[string]coupon.Coupon
	usage     map[string]int
	schedules map[string]schedule.OrderingTimes
	orders    map[string]order.Order
	counters  map[string]int64
}

// NewDB returns an empty database.
func NewDB() *DB {
	return &DB{
		products:  make(map[string]product.Product),
		stock:     make(map[string]stock.Record),
		coupons:   make(map[string]coupon.Coupon),
		usage:     make(map[string]int),
		schedules: make(map[string]schedule.OrderingTimes),
		orders:    make(map[string]order.Order),
		counters:  make(map[string]int64),
	}
}

// New returns a Store backed by a fresh DB.
func New() *storage.Store {
	return NewDB().Store()
}

// Store exposes db through the storage repositories.
func (db *DB) Store() *storage.Store {
	return &storage.Store{
		Products:  &Products{db: db},
		Stock:     &Ledger{db: db},
		Coupons:   &Coupons{db: db},
		Schedules: &Schedules{db: db},
		Orders:    &Orders{db: db},
		Numbers:   &Numbers{db: db},
		Catalog:   &Catalog{db: db},
		Ping:      func(context.Context) error { return nil },
		Close:     func() error { return nil },
	}
}

var (
	_ product.Repository    = (*Products)(nil)
	_ stock.Ledger          = (*Ledger)(nil)
	_ coupon.Repository     = (*Coupons)(nil)
	_ schedule.Repository   = (*Schedules)(nil)
	_ order.Repository      = (*Orders)(nil)
	_ order.NumberSequence  = (*Numbers)(nil)
	_ storage.CatalogWriter = (*Catalog)(nil)
)

// Products implements product.Repository.
type Products struct{ db *DB }

func (r *Products) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	p, ok := r.db.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (r *Products) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.db.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Ledger implements stock.Ledger.
type Ledger struct{ db *DB }

func (l *Ledger) Check(_ context.Context, items []stock.Item) (stock.CheckResult, error) {
	l.db.mu.RLock()
	defer l.db.mu.RUnlock()
	return stock.Evaluate(stock.Merge(items), l.db.stock), nil
}

func (l *Ledger) Deduct(_ context.Context, items []stock.Item) (stock.DeductResult, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()

	items = stock.Merge(items)
	check := stock.Evaluate(items, l.db.stock)
	if !check.Success {
		return stock.DeductResult{}, &stock.ConflictError{Lines: check.Errors}
	}
	res := stock.DeductResult{Updated: make([]stock.Info, 0, len(items))}
	for _, it := range items {
		rec, ok := l.db.stock[it.ProductID]
		if !ok || !rec.Tracked {
			continue
		}
		rec.Quantity -= it.Quantity
		l.db.stock[it.ProductID] = rec
		res.Updated = append(res.Updated, stock.Info{
			ProductID: it.ProductID,
			Requested: it.Quantity,
			Available: rec.Quantity,
			Tracked:   true,
		})
	}
	return res, nil
}

func (l *Ledger) Restore(_ context.Context, items []stock.Item) (stock.RestoreResult, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()

	items = stock.Merge(items)
	res := stock.RestoreResult{Restored: make([]stock.Info, 0, len(items))}
	for _, it := range items {
		rec, ok := l.db.stock[it.ProductID]
		if !ok || !rec.Tracked {
			continue
		}
		rec.Quantity += it.Quantity
		l.db.stock[it.ProductID] = rec
		res.Restored = append(res.Restored, stock.Info{
			ProductID: it.ProductID,
			Requested: it.Quantity,
			Available: rec.Quantity,
			Tracked:   true,
		})
	}
	return res, nil
}

// Coupons implements coupon.Repository.
type Coupons struct{ db *DB }

func (r *Coupons) FindByCode(_ context.Context, branchID, code string) (*coupon.Coupon, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	code = coupon.NormalizeCode(code)
	for _, c := range r.db.coupons {
		if c.BranchID == branchID && coupon.NormalizeCode(c.Code) == code {
			return &c, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (r *Coupons) Redeem(_ context.Context, red coupon.Redemption) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	counters := red.Counters()
	for _, c := range counters {
		if c.Full(r.db.usage[usageKey(red.CouponID, c.Scope)]) {
			return c.Rejection()
		}
	}
	for _, c := range counters {
		r.db.usage[usageKey(red.CouponID, c.Scope)]++
	}
	return nil
}

func (r *Coupons) Release(_ context.Context, red coupon.Redemption) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, c := range red.Counters() {
		k := usageKey(red.CouponID, c.Scope)
		if r.db.usage[k] > 0 {
			r.db.usage[k]--
		}
	}
	return nil
}

// Usage returns the counter value for a coupon scope.
func (r *Coupons) Usage(couponID, scope string) int {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return r.db.usage[usageKey(couponID, scope)]
}

func usageKey(couponID, scope string) string {
	return couponID + "|" + scope
}

// Schedules implements schedule.Repository.
type Schedules struct{ db *DB }

func (r *Schedules) Get(_ context.Context, branchID string) (*schedule.OrderingTimes, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	t, ok := r.db.schedules[branchID]
	if !ok {
		return nil, schedule.ErrNotFound
	}
	return &t, nil
}

// Orders implements order.Repository.
type Orders struct{ db *DB }

func (r *Orders) Create(_ context.Context, o *order.Order) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (r *Orders) Get(_ context.Context, id string) (*order.Order, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	o, ok := r.db.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := cloneOrder(o)
	return &cp, nil
}

func (r *Orders) UpdateStatus(_ context.Context, id string, from, to order.Status, at time.Time) (*order.Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	o, ok := r.db.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if o.Status != from {
		return nil, order.ErrConflict
	}
	o.Status = to
	o.UpdatedAt = at
	switch {
	case to == order.StatusCancelled:
		o.CancelledAt = &at
	case from == order.StatusCancelled:
		o.CancelledAt = nil
	}
	r.db.orders[id] = o
	cp := cloneOrder(o)
	return &cp, nil
}

func (r *Orders) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.orders[id]; !ok {
		return order.ErrNotFound
	}
	delete(r.db.orders, id)
	return nil
}

func (r *Orders) List(_ context.Context, f order.Filter) ([]order.Order, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make([]order.Order, 0)
	for _, o := range r.db.orders {
		if f.BranchID != "" && o.BranchID != f.BranchID {
			continue
		}
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *Orders) CountByUser(_ context.Context, userID string) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	n := 0
	for _, o := range r.db.orders {
		if o.UserID == userID && o.Status != order.StatusCancelled {
			n++
		}
	}
	return n, nil
}

func cloneOrder(o order.Order) order.Order {
	o.Lines = slices.Clone(o.Lines)
	if o.Discount != nil {
		d := *o.Discount
		o.Discount = &d
	}
	return o
}

// Numbers implements order.NumberSequence.
type Numbers struct{ db *DB }

func (n *Numbers) Next(_ context.Context, branchID string) (int64, error) {
	n.db.mu.Lock()
	defer n.db.mu.Unlock()
	n.db.counters[branchID]++
	return n.db.counters[branchID], nil
}

// Catalog implements storage.CatalogWriter.
type Catalog struct{ db *DB }

func (c *Catalog) UpsertProduct(_ context.Context, p product.Product) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.products[p.ID] = p
	return nil
}

func (c *Catalog) SetStock(_ context.Context, r stock.Record) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.stock[r.ProductID] = r
	return nil
}

func (c *Catalog) UpsertCoupon(_ context.Context, cp coupon.Coupon) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	cp.Code = coupon.NormalizeCode(cp.Code)
	c.db.coupons[cp.ID] = cp
	return nil
}

func (c *Catalog) UpsertOrderingTimes(_ context.Context, t schedule.OrderingTimes) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.schedules[t.BranchID] = t
	return nil
}
