package coupon

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kitchen-orders/internal/domain/branch"
)

var hundred = decimal.NewFromInt(100)

// OrderContext is the part of an order a coupon is validated against.
type OrderContext struct {
	BranchID       string
	Total          decimal.Decimal
	DeliveryMethod branch.DeliveryMethod
	// Location is the branch timezone used for the weekday check.
	// Nil means UTC.
	Location *time.Location
}

// Result is the outcome of Engine.Validate.
type Result struct {
	Valid  bool
	Reason Reason
	Detail string
}

// Err converts an invalid result into an *Error for code.
func (r Result) Err(code string) error {
	if r.Valid {
		return nil
	}
	return &Error{Code: code, Reason: r.Reason, Detail: r.Detail}
}

func reject(reason Reason, detail string) Result {
	return Result{Reason: reason, Detail: detail}
}

// Engine validates coupons against an order and computes discounts.
type Engine struct {
	now func() time.Time
}

// NewEngine returns an Engine using the wall clock.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// NewEngineAt returns an Engine whose clock is now. Used by tests and
// replays.
func NewEngineAt(now func() time.Time) *Engine {
	return &Engine{now: now}
}

// Validate checks c against oc. Checks run in a fixed order and stop at the
// first failure:
//
//  1. the coupon exists, is active and, when time dependent, is inside its window
//  2. the order's branch is enabled
//  3. the total reaches MinSpend
//  4. the total does not exceed MaxSpend (zero means unbounded)
//  5. today is an available day
//  6. the delivery method maps to an allowed service type
//
// FirstOrderOnly is not checked here; it needs the customer's order history.
func (e *Engine) Validate(c *Coupon, oc OrderContext) Result {
	if c == nil {
		return reject(ReasonNotFound, "")
	}
	if c.State != StateActive {
		return reject(ReasonInactive, "")
	}

	loc := oc.Location
	if loc == nil {
		loc = time.UTC
	}
	now := e.now().In(loc)

	if c.TimeDependent {
		if c.StartDate != nil && now.Before(*c.StartDate) {
			return reject(ReasonExpired, "")
		}
		if c.EndDate != nil && now.After(*c.EndDate) {
			return reject(ReasonExpired, "")
		}
	}

	if !c.BranchEnabled[oc.BranchID] {
		return reject(ReasonBranch, "")
	}

	if oc.Total.LessThan(c.MinSpend) {
		return reject(ReasonMinSpend, fmt.Sprintf("minimum spend of %s not reached", c.MinSpend.StringFixed(2)))
	}
	if c.MaxSpend.IsPositive() && oc.Total.GreaterThan(c.MaxSpend) {
		return reject(ReasonMaxSpend, fmt.Sprintf("order total exceeds maximum spend of %s", c.MaxSpend.StringFixed(2)))
	}

	day := branch.WeekdayKey(now.Weekday())
	if !c.DaysAvailable[day] {
		return reject(ReasonDay, fmt.Sprintf("coupon is not available on %s", day))
	}

	st, ok := branch.ServiceTypeFor(oc.DeliveryMethod)
	if !ok || !c.ServiceTypes[st] {
		return reject(ReasonServiceType, fmt.Sprintf("coupon is not available for %s orders", oc.DeliveryMethod))
	}

	return Result{Valid: true}
}

// Redemption builds the usage record for applying c on behalf of userID.
func (e *Engine) Redemption(c *Coupon, userID string, loc *time.Location) Redemption {
	if loc == nil {
		loc = time.UTC
	}
	return Redemption{
		CouponID:       c.ID,
		UserID:         userID,
		Day:            e.now().In(loc).Format(time.DateOnly),
		Limits:         c.Limits,
		FirstOrderOnly: c.FirstOrderOnly,
	}
}

// Calculate returns the discount c grants on total, rounded to 2 places and
// never more than total.
func Calculate(c *Coupon, total decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.Type {
	case DiscountPercentage:
		amount = total.Mul(c.Value).Div(hundred)
	case DiscountFixed:
		amount = decimal.Min(c.Value, total)
	default:
		return decimal.Zero
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(total) {
		amount = total
	}
	return amount.Round(2)
}
