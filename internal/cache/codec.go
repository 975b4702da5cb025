package cache

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/order"
)

// Cached listings keep money as decimal strings so a hit is identical to a
// fresh read.

func encodeList(res *order.ListResult) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("page", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("number", func(e *jx.Encoder) { e.Int(res.Page.Number) })
				e.Field("size", func(e *jx.Encoder) { e.Int(res.Page.Size) })
				e.Field("totalItems", func(e *jx.Encoder) { e.Int(res.Page.TotalItems) })
				e.Field("totalPages", func(e *jx.Encoder) { e.Int(res.Page.TotalPages) })
			})
		})
		e.Field("orders", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range res.Orders {
					encodeOrder(e, &res.Orders[i])
				}
			})
		})
	})
	return e.Bytes()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("userId", func(e *jx.Encoder) { e.Str(o.UserID) })
		e.Field("subtotal", func(e *jx.Encoder) { e.Str(o.Subtotal.String()) })
		e.Field("discount", func(e *jx.Encoder) { e.Str(o.Discount.String()) })
		e.Field("total", func(e *jx.Encoder) { e.Str(o.Total.String()) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("shipping", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("fullName", func(e *jx.Encoder) { e.Str(o.Shipping.FullName) })
				e.Field("address", func(e *jx.Encoder) { e.Str(o.Shipping.Address) })
				e.Field("city", func(e *jx.Encoder) { e.Str(o.Shipping.City) })
				e.Field("postalCode", func(e *jx.Encoder) { e.Str(o.Shipping.PostalCode) })
				e.Field("country", func(e *jx.Encoder) { e.Str(o.Shipping.Country) })
				e.Field("phone", func(e *jx.Encoder) { e.Str(o.Shipping.Phone) })
			})
		})
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.Format(time.RFC3339Nano)) })
		e.Field("updatedAt", func(e *jx.Encoder) { e.Str(o.UpdatedAt.Format(time.RFC3339Nano)) })
	})
}

func decodeList(data []byte) (*order.ListResult, error) {
	res := &order.ListResult{Orders: []order.Order{}}
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "page":
			return d.Obj(func(d *jx.Decoder, key string) error {
				var (
					v   int
					err error
				)
				switch key {
				case "number":
					v, err = d.Int()
					res.Page.Number = v
				case "size":
					v, err = d.Int()
					res.Page.Size = v
				case "totalItems":
					v, err = d.Int()
					res.Page.TotalItems = v
				case "totalPages":
					v, err = d.Int()
					res.Page.TotalPages = v
				default:
					err = d.Skip()
				}
				return err
			})
		case "orders":
			return d.Arr(func(d *jx.Decoder) error {
				var o order.Order
				if err := decodeOrder(d, &o); err != nil {
					return err
				}
				res.Orders = append(res.Orders, o)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode order list")
	}
	return res, nil
}

func decodeOrder(d *jx.Decoder, o *order.Order) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			return str(d, &o.ID)
		case "userId":
			return str(d, &o.UserID)
		case "subtotal":
			return dec(d, &o.Subtotal)
		case "discount":
			return dec(d, &o.Discount)
		case "total":
			return dec(d, &o.Total)
		case "status":
			s, err := d.Str()
			o.Status = order.Status(s)
			return err
		case "shipping":
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "fullName":
					return str(d, &o.Shipping.FullName)
				case "address":
					return str(d, &o.Shipping.Address)
				case "city":
					return str(d, &o.Shipping.City)
				case "postalCode":
					return str(d, &o.Shipping.PostalCode)
				case "country":
					return str(d, &o.Shipping.Country)
				case "phone":
					return str(d, &o.Shipping.Phone)
				default:
					return d.Skip()
				}
			})
		case "createdAt":
			return ts(d, &o.CreatedAt)
		case "updatedAt":
			return ts(d, &o.UpdatedAt)
		default:
			return d.Skip()
		}
	})
}

func str(d *jx.Decoder, dst *string) error {
	s, err := d.Str()
	if err != nil {
		return err
	}
	*dst = s
	return nil
}

func dec(d *jx.Decoder, dst *decimal.Decimal) error {
	s, err := d.Str()
	if err != nil {
		return err
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return errors.Wrapf(err, "parse amount %q", s)
	}
	*dst = v
	return nil
}

func ts(d *jx.Decoder, dst *time.Time) error {
	s, err := d.Str()
	if err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return errors.Wrapf(err, "parse time %q", s)
	}
	*dst = t
	return nil
}
