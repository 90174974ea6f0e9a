package order

import (
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"

	"github.com/xenking/kitchen-orders/internal/domain/branch"
	"github.com/xenking/kitchen-orders/internal/domain/coupon"
)

const maxNotesRunes = 500

var notesPolicy = bluemonday.StrictPolicy()

// SanitizeNotes strips markup from customer free text and bounds its length.
func SanitizeNotes(s string) string {
	s = strings.TrimSpace(notesPolicy.Sanitize(s))
	if r := []rune(s); len(r) > maxNotesRunes {
		s = string(r[:maxNotesRunes])
	}
	return s
}

// AttributeUnitTotal is the add-on cost for one unit of the line.
func AttributeUnitTotal(attrs []SelectedAttribute) decimal.Decimal {
	total := decimal.Zero
	for _, a := range attrs {
		for _, it := range a.Items {
			total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
	}
	return total
}

// LineTotal is UnitPrice×Quantity plus the attribute add-ons×Quantity.
func LineTotal(l Line) decimal.Decimal {
	qty := decimal.NewFromInt(int64(l.Quantity))
	return l.UnitPrice.Mul(qty).Add(AttributeUnitTotal(l.Attributes).Mul(qty))
}

// Subtotal sums the totals of lines.
func Subtotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(LineTotal(l))
	}
	return total.Round(2)
}

// Draft is the validated and priced input to Assemble.
type Draft struct {
	ID               string
	Number           string
	BranchID         string
	UserID           string
	Lines            []Line
	DeliveryMethod   branch.DeliveryMethod
	Coupon           *coupon.Coupon
	EstimatedMinutes int
	DeliveryAddress  string
	Notes            string
	CreatedAt        time.Time
}

// Assemble computes line totals, the order total, the discount snapshot and
// the final total, and returns a pending order.
func Assemble(d Draft) *Order {
	lines := make([]Line, len(d.Lines))
	for i, l := range d.Lines {
		l.Notes = SanitizeNotes(l.Notes)
		l.LineTotal = LineTotal(l).Round(2)
		lines[i] = l
	}
	total := Subtotal(lines)

	var discount *Discount
	amount := decimal.Zero
	if d.Coupon != nil {
		amount = coupon.Calculate(d.Coupon, total)
		discount = &Discount{
			CouponID: d.Coupon.ID,
			Code:     d.Coupon.Code,
			Type:     d.Coupon.Type,
			Value:    d.Coupon.Value,
			Amount:   amount,
		}
	}
	final := total.Sub(amount)
	if final.IsNegative() {
		final = decimal.Zero
	}

	return &Order{
		ID:               d.ID,
		Number:           d.Number,
		BranchID:         d.BranchID,
		UserID:           d.UserID,
		Lines:            lines,
		DeliveryMethod:   d.DeliveryMethod,
		Status:           StatusPending,
		Discount:         discount,
		TotalAmount:      total,
		FinalTotal:       final.Round(2),
		EstimatedMinutes: d.EstimatedMinutes,
		DeliveryAddress:  strings.TrimSpace(d.DeliveryAddress),
		Notes:            SanitizeNotes(d.Notes),
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.CreatedAt,
	}
}
