package order

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/xenking/kitchen-orders/internal/domain/branch"
	"github.com/xenking/kitchen-orders/internal/domain/coupon"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// progress orders the non-terminal statuses along the fulfilment chain.
var progress = map[Status]int{
	StatusPending:   0,
	StatusConfirmed: 1,
	StatusPreparing: 2,
	StatusReady:     3,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady,
		StatusCompleted, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether an order with the given delivery method may
// move from one status to another. Orders move forward along
// pending → confirmed → preparing → ready and may skip steps. Delivery
// orders finish as delivered, all others as completed. Any non-terminal
// order may be cancelled.
func CanTransition(from, to Status, method branch.DeliveryMethod) bool {
	if from.Terminal() || from == to {
		return false
	}
	switch to {
	case StatusCancelled:
		return true
	case StatusDelivered:
		return method == branch.Delivery
	case StatusCompleted:
		return method != branch.Delivery
	}
	rf, okFrom := progress[from]
	rt, okTo := progress[to]
	return okFrom && okTo && rt > rf
}

// Order is a priced customer order. Lines, totals and the discount snapshot
// are fixed at creation.
type Order struct {
	ID       string
	Number   string
	BranchID string
	// UserID is empty for guest orders.
	UserID string

	Lines          []Line
	DeliveryMethod branch.DeliveryMethod
	Status         Status

	Discount    *Discount
	TotalAmount decimal.Decimal
	FinalTotal  decimal.Decimal

	EstimatedMinutes int
	DeliveryAddress  string
	Notes            string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CancelledAt *time.Time
}

// IsGuest reports whether the order was placed without a user account.
func (o *Order) IsGuest() bool {
	return o.UserID == ""
}

// Line is a single product entry of an order.
type Line struct {
	ProductID  string
	Name       string
	Quantity   int
	UnitPrice  decimal.Decimal
	Notes      string
	Attributes []SelectedAttribute
	LineTotal  decimal.Decimal
}

// SelectedAttribute is an attribute group chosen for a line.
type SelectedAttribute struct {
	AttributeID string
	Name        string
	Type        string
	Items       []AttributeItem
}

// AttributeItem is a chosen add-on with its catalog price at order time.
type AttributeItem struct {
	ItemID    string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Discount is the snapshot of the coupon applied to an order.
type Discount struct {
	CouponID string
	Code     string
	Type     coupon.DiscountType
	Value    decimal.Decimal
	Amount   decimal.Decimal
}

// Filter narrows List results.
type Filter struct {
	BranchID string
	UserID   string
	Status   Status
	// Limit of zero means DefaultListLimit.
	Limit int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	// Get returns ErrNotFound when the order does not exist.
	Get(ctx context.Context, id string) (*Order, error)
	// UpdateStatus sets the status to `to` only if the stored status is
	// still `from`, returning the updated order. It returns ErrConflict when
	// the stored status differs and ErrNotFound when the order is missing.
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) (*Order, error)
	Delete(ctx context.Context, id string) error
	// List returns matching orders, newest first.
	List(ctx context.Context, f Filter) ([]Order, error)
	// CountByUser counts the user's orders that were not cancelled.
	CountByUser(ctx context.Context, userID string) (int, error)
}

// NumberSequence hands out per-branch order numbers starting at 1.
type NumberSequence interface {
	Next(ctx context.Context, branchID string) (int64, error)
}

// FormatNumber renders a human readable order number such as "B1-000042".
func FormatNumber(branchID string, n int64) string {
	var prefix strings.Builder
	for _, r := range branchID {
		if prefix.Len() == 6 {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			prefix.WriteRune(unicode.ToUpper(r))
		}
	}
	if prefix.Len() == 0 {
		prefix.WriteString("ORD")
	}
	return fmt.Sprintf("%s-%06d", prefix.String(), n)
}
