package wire

import (
	"github.com/go-faster/jx"

	"github.com/xenking/kitchen-orders/internal/domain/order"
)

// EncodeOrder writes an order object.
func EncodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("number")
	e.Str(o.Number)
	e.FieldStart("branchId")
	e.Str(o.BranchID)
	optStr(e, "userId", o.UserID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("deliveryMethod")
	e.Str(string(o.DeliveryMethod))

	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range o.Lines {
		encodeLine(e, l)
	}
	e.ArrEnd()

	if d := o.Discount; d != nil {
		e.FieldStart("discount")
		e.ObjStart()
		e.FieldStart("couponId")
		e.Str(d.CouponID)
		e.FieldStart("code")
		e.Str(d.Code)
		e.FieldStart("type")
		e.Str(string(d.Type))
		e.FieldStart("value")
		e.RawStr(d.Value.String())
		e.FieldStart("amount")
		money(e, d.Amount)
		e.ObjEnd()
	}

	e.FieldStart("totalAmount")
	money(e, o.TotalAmount)
	e.FieldStart("finalTotal")
	money(e, o.FinalTotal)
	e.FieldStart("estimatedMinutes")
	e.Int(o.EstimatedMinutes)
	optStr(e, "deliveryAddress", o.DeliveryAddress)
	optStr(e, "notes", o.Notes)
	e.FieldStart("createdAt")
	timestamp(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	timestamp(e, o.UpdatedAt)
	if o.CancelledAt != nil {
		e.FieldStart("cancelledAt")
		timestamp(e, *o.CancelledAt)
	}
	e.ObjEnd()
}

func encodeLine(e *jx.Encoder, l order.Line) {
	e.ObjStart()
	e.FieldStart("productId")
	e.Str(l.ProductID)
	e.FieldStart("name")
	e.Str(l.Name)
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	e.FieldStart("unitPrice")
	money(e, l.UnitPrice)
	optStr(e, "notes", l.Notes)
	if len(l.Attributes) > 0 {
		e.FieldStart("attributes")
		e.ArrStart()
		for _, a := range l.Attributes {
			e.ObjStart()
			e.FieldStart("attributeId")
			e.Str(a.AttributeID)
			e.FieldStart("name")
			e.Str(a.Name)
			optStr(e, "type", a.Type)
			e.FieldStart("items")
			e.ArrStart()
			for _, it := range a.Items {
				e.ObjStart()
				e.FieldStart("itemId")
				e.Str(it.ItemID)
				e.FieldStart("name")
				e.Str(it.Name)
				e.FieldStart("unitPrice")
				money(e, it.UnitPrice)
				e.FieldStart("quantity")
				e.Int(it.Quantity)
				e.ObjEnd()
			}
			e.ArrEnd()
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	e.FieldStart("lineTotal")
	money(e, l.LineTotal)
	e.ObjEnd()
}

// EncodeOrders writes {"orders": [...]}.
func EncodeOrders(e *jx.Encoder, orders []order.Order) {
	e.ObjStart()
	e.FieldStart("orders")
	e.ArrStart()
	for i := range orders {
		EncodeOrder(e, &orders[i])
	}
	e.ArrEnd()
	e.ObjEnd()
}
