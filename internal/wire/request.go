package wire

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kitchen-orders/internal/domain/branch"
	"github.com/xenking/kitchen-orders/internal/domain/order"
)

// DecodeCreateOrder parses a create-order body. The principal is left
// unset; the caller fills it from the request.
func DecodeCreateOrder(data []byte) (order.CreateRequest, error) {
	var req order.CreateRequest
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "branchId":
			req.BranchID, err = d.Str()
		case "deliveryMethod":
			var s string
			s, err = d.Str()
			req.DeliveryMethod = branch.DeliveryMethod(s)
		case "couponCode":
			req.CouponCode, err = optionalStr(d)
		case "deliveryAddress":
			req.DeliveryAddress, err = optionalStr(d)
		case "notes":
			req.Notes, err = optionalStr(d)
		case "lines":
			err = d.Arr(func(d *jx.Decoder) error {
				l, err := decodeLine(d)
				if err != nil {
					return err
				}
				req.Lines = append(req.Lines, l)
				return nil
			})
		default:
			return d.Skip()
		}
		return errors.Wrapf(err, "decode %q", key)
	})
	if err != nil {
		return order.CreateRequest{}, err
	}
	return req, nil
}

func decodeLine(d *jx.Decoder) (order.LineRequest, error) {
	var l order.LineRequest
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "productId":
			l.ProductID, err = d.Str()
		case "quantity":
			l.Quantity, err = d.Int()
		case "notes":
			l.Notes, err = optionalStr(d)
		case "attributes":
			err = d.Arr(func(d *jx.Decoder) error {
				a, err := decodeAttribute(d)
				if err != nil {
					return err
				}
				l.Attributes = append(l.Attributes, a)
				return nil
			})
		default:
			return d.Skip()
		}
		return errors.Wrapf(err, "decode %q", key)
	})
	return l, err
}

func decodeAttribute(d *jx.Decoder) (order.AttributeRequest, error) {
	var a order.AttributeRequest
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "attributeId":
			a.AttributeID, err = d.Str()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				var it order.AttributeItemRequest
				if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
					var err error
					switch string(key) {
					case "itemId":
						it.ItemID, err = d.Str()
					case "quantity":
						it.Quantity, err = d.Int()
					default:
						return d.Skip()
					}
					return errors.Wrapf(err, "decode %q", key)
				}); err != nil {
					return err
				}
				a.Items = append(a.Items, it)
				return nil
			})
		default:
			return d.Skip()
		}
		return errors.Wrapf(err, "decode %q", key)
	})
	return a, err
}

// DecodeStatusUpdate parses {"status": "..."}.
func DecodeStatusUpdate(data []byte) (order.Status, error) {
	var status order.Status
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "status" {
			return d.Skip()
		}
		s, err := d.Str()
		if err != nil {
			return errors.Wrap(err, "decode \"status\"")
		}
		status = order.Status(s)
		return nil
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

func optionalStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}
