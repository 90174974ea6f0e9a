package wire

import (
	"github.com/go-faster/jx"

	"github.com/xenking/kitchen-orders/internal/domain/schedule"
	"github.com/xenking/kitchen-orders/internal/domain/stock"
)

// Error is the body of every non-2xx response.
type Error struct {
	Code    int
	Kind    string
	Message string
	// Field names the offending request field of a validation error.
	Field string
	// Reason is the machine-readable cause of a coupon or schedule
	// rejection.
	Reason string
	// Stock lists the lines that failed a stock check.
	Stock []stock.LineError
}

// EncodeError writes an error object.
func EncodeError(e *jx.Encoder, er Error) {
	e.ObjStart()
	e.FieldStart("code")
	e.Int(er.Code)
	optStr(e, "kind", er.Kind)
	e.FieldStart("message")
	e.Str(er.Message)
	optStr(e, "field", er.Field)
	optStr(e, "reason", er.Reason)
	if len(er.Stock) > 0 {
		e.FieldStart("stock")
		e.ArrStart()
		for _, l := range er.Stock {
			e.ObjStart()
			e.FieldStart("productId")
			e.Str(l.ProductID)
			e.FieldStart("requested")
			e.Int(l.Requested)
			e.FieldStart("available")
			e.Int(l.Available)
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	e.ObjEnd()
}

// EncodeAvailability writes the ordering availability of a branch.
func EncodeAvailability(e *jx.Encoder, a schedule.Availability) {
	e.ObjStart()
	e.FieldStart("allowed")
	e.Bool(a.Allowed)
	optStr(e, "reason", string(a.Reason))
	e.FieldStart("leadTimeMinutes")
	e.Int(a.LeadTimeMinutes)
	e.ObjEnd()
}
