package wire

import (
	"github.com/go-faster/jx"

	"github.com/xenking/kitchen-orders/internal/domain/order"
)

// EncodeEvent writes the payload published for an order event.
func EncodeEvent(e *jx.Encoder, ev order.Event) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(ev.ID)
	e.FieldStart("type")
	e.Str(string(ev.Name))
	e.FieldStart("branchId")
	e.Str(ev.BranchID)
	optStr(e, "previousStatus", string(ev.Previous))
	e.FieldStart("occurredAt")
	timestamp(e, ev.OccurredAt)
	e.FieldStart("order")
	EncodeOrder(e, &ev.Order)
	e.ObjEnd()
}

// Event returns the encoded payload of ev.
func Event(ev order.Event) []byte {
	var e jx.Encoder
	EncodeEvent(&e, ev)
	return e.Bytes()
}
