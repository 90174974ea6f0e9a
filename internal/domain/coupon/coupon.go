package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kitchen-orders/internal/domain/branch"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the order total.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the order total.
	DiscountFixed DiscountType = "fixed"
)

// State is the lifecycle state of a coupon. Coupons are never hard-deleted;
// retiring one moves it to StateArchived.
type State string

const (
	StateActive   State = "active"
	StatePaused   State = "paused"
	StateArchived State = "archived"
)

var stateTransitions = map[State][]State{
	StateActive: {StatePaused, StateArchived},
	StatePaused: {StateActive, StateArchived},
}

// CanTransition reports whether a coupon may move from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range stateTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrNotFound is returned by repositories when no coupon matches a code.
var ErrNotFound = errors.New("coupon not found")

// Limits caps redemptions. Zero means unbounded.
type Limits struct {
	Total       int
	PerCustomer int
	PerDay      int
}

// Coupon is a branch-scoped discount rule.
type Coupon struct {
	ID       string
	BranchID string
	Code     string
	Name     string

	Type     DiscountType
	Value    decimal.Decimal
	MinSpend decimal.Decimal
	// MaxSpend of zero means no upper bound.
	MaxSpend decimal.Decimal

	// BranchEnabled lists branches the coupon may be used at. A branch
	// missing from the map is not enabled.
	BranchEnabled map[string]bool
	// DaysAvailable is keyed by lowercase weekday name.
	DaysAvailable map[string]bool
	ServiceTypes  map[branch.ServiceType]bool

	Limits         Limits
	FirstOrderOnly bool

	TimeDependent bool
	StartDate     *time.Time
	EndDate       *time.Time

	State State
}

// Reason explains why a coupon was rejected.
type Reason string

const (
	ReasonNotFound    Reason = "not_found"
	ReasonInactive    Reason = "inactive"
	ReasonExpired     Reason = "expired"
	ReasonBranch      Reason = "branch"
	ReasonMinSpend    Reason = "min_spend"
	ReasonMaxSpend    Reason = "max_spend"
	ReasonDay         Reason = "day"
	ReasonServiceType Reason = "service_type"
	ReasonFirstOrder  Reason = "first_order"
	ReasonUsageLimit  Reason = "usage_limit"
)

var reasonMessages = map[Reason]string{
	ReasonNotFound:    "coupon not found",
	ReasonInactive:    "coupon is not active",
	ReasonExpired:     "coupon is not valid at this time",
	ReasonBranch:      "coupon is not available at this branch",
	ReasonMinSpend:    "order total is below the coupon minimum spend",
	ReasonMaxSpend:    "order total exceeds the coupon maximum spend",
	ReasonDay:         "coupon is not available today",
	ReasonServiceType: "coupon is not available for this delivery method",
	ReasonFirstOrder:  "coupon is only valid on a first order",
	ReasonUsageLimit:  "coupon usage limit reached",
}

// Error is returned when a coupon cannot be applied to an order.
type Error struct {
	Code   string
	Reason Reason
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	if msg, ok := reasonMessages[e.Reason]; ok {
		return msg
	}
	return fmt.Sprintf("coupon rejected: %s", e.Reason)
}

// Redemption identifies a single use of a coupon for usage accounting.
type Redemption struct {
	CouponID string
	UserID   string
	// Day is the redemption date (YYYY-MM-DD) in the branch timezone.
	Day    string
	Limits Limits
	// FirstOrderOnly adds a per-customer counter capped at one so that
	// concurrent first orders cannot both redeem the coupon.
	FirstOrderOnly bool
}

// Counter is one usage counter touched by a redemption. Limit of zero is
// unbounded.
type Counter struct {
	Scope string
	Limit int
	// Reason reported when the counter is full. Defaults to
	// ReasonUsageLimit.
	Reason Reason
}

// Full reports whether the counter cannot take another redemption given
// its current count.
func (c Counter) Full(count int) bool {
	return c.Limit > 0 && count >= c.Limit
}

// Rejection is the error returned when the counter is full.
func (c Counter) Rejection() *Error {
	if c.Reason == "" {
		return &Error{Reason: ReasonUsageLimit}
	}
	return &Error{Reason: c.Reason}
}

// Counters lists the usage counters a redemption increments.
func (r Redemption) Counters() []Counter {
	out := make([]Counter, 0, 4)
	out = append(out, Counter{Scope: "total", Limit: r.Limits.Total})
	if r.UserID != "" {
		out = append(out, Counter{Scope: "customer:" + r.UserID, Limit: r.Limits.PerCustomer})
		if r.FirstOrderOnly {
			out = append(out, Counter{Scope: "first-order:" + r.UserID, Limit: 1, Reason: ReasonFirstOrder})
		}
	}
	if r.Day != "" {
		out = append(out, Counter{Scope: "day:" + r.Day, Limit: r.Limits.PerDay})
	}
	return out
}

// NormalizeCode canonicalises a coupon code for storage and lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides coupon lookup and atomic usage accounting.
type Repository interface {
	// FindByCode returns the coupon with the given code at branchID.
	// Codes are matched case-insensitively. Returns ErrNotFound when absent.
	FindByCode(ctx context.Context, branchID, code string) (*Coupon, error)
	// Redeem atomically increments every counter of the redemption, failing
	// with the full counter's *Error without changing anything if any capped
	// counter is already full.
	Redeem(ctx context.Context, r Redemption) error
	// Release undoes a Redeem.
	Release(ctx context.Context, r Redemption) error
}
