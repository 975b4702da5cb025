package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/review"
)

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// readBody returns the request body, limited to maxBodyBytes.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, badRequest("unreadable request body")
	}
	if len(data) == 0 {
		return nil, badRequest("request body is required")
	}
	return data, nil
}

// money rounds to cents for presentation only. The digits are written as a
// JSON number verbatim, without a float conversion.
func money(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.StringFixed(2)))
}

func encodeOrder(e *jx.Encoder, o *order.Order, detailed bool) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("userId", func(e *jx.Encoder) { e.Str(o.UserID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("subtotal", func(e *jx.Encoder) { money(e, o.Subtotal) })
		e.Field("discount", func(e *jx.Encoder) { money(e, o.Discount) })
		e.Field("total", func(e *jx.Encoder) { money(e, o.Total) })
		e.Field("shipping", func(e *jx.Encoder) { encodeShipping(e, o.Shipping) })
		if detailed {
			e.Field("items", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, it := range o.Items {
						e.Obj(func(e *jx.Encoder) {
							e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
							e.Field("sellerId", func(e *jx.Encoder) { e.Str(it.SellerID) })
							e.Field("title", func(e *jx.Encoder) { e.Str(it.ProductTitle) })
							e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
							e.Field("price", func(e *jx.Encoder) { money(e, it.PriceAtOrder) })
							e.Field("lineTotal", func(e *jx.Encoder) { money(e, it.LineTotal()) })
						})
					}
				})
			})
			e.Field("coupons", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, c := range o.Coupons {
						e.Obj(func(e *jx.Encoder) {
							e.Field("code", func(e *jx.Encoder) { e.Str(c.Code) })
							e.Field("discount", func(e *jx.Encoder) { money(e, c.DiscountAmount) })
						})
					}
				})
			})
		}
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
		e.Field("updatedAt", func(e *jx.Encoder) { e.Str(o.UpdatedAt.UTC().Format(time.RFC3339)) })
	})
}

func encodeShipping(e *jx.Encoder, s order.ShippingInfo) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("fullName", func(e *jx.Encoder) { e.Str(s.FullName) })
		e.Field("address", func(e *jx.Encoder) { e.Str(s.Address) })
		e.Field("city", func(e *jx.Encoder) { e.Str(s.City) })
		if s.PostalCode != "" {
			e.Field("postalCode", func(e *jx.Encoder) { e.Str(s.PostalCode) })
		}
		e.Field("country", func(e *jx.Encoder) { e.Str(s.Country) })
		if s.Phone != "" {
			e.Field("phone", func(e *jx.Encoder) { e.Str(s.Phone) })
		}
	})
}

func encodeList(e *jx.Encoder, res *order.ListResult) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("orders", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range res.Orders {
					encodeOrder(e, &res.Orders[i], false)
				}
			})
		})
		e.Field("page", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("number", func(e *jx.Encoder) { e.Int(res.Page.Number) })
				e.Field("size", func(e *jx.Encoder) { e.Int(res.Page.Size) })
				e.Field("totalItems", func(e *jx.Encoder) { e.Int(res.Page.TotalItems) })
				e.Field("totalPages", func(e *jx.Encoder) { e.Int(res.Page.TotalPages) })
			})
		})
	})
}

func encodeReview(e *jx.Encoder, rv *review.Review) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(rv.ID) })
		e.Field("productId", func(e *jx.Encoder) { e.Str(rv.ProductID) })
		e.Field("userId", func(e *jx.Encoder) { e.Str(rv.UserID) })
		e.Field("rating", func(e *jx.Encoder) { e.Int(rv.Rating) })
		e.Field("comment", func(e *jx.Encoder) { e.Str(rv.Comment) })
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(rv.CreatedAt.UTC().Format(time.RFC3339)) })
	})
}

// decodePlaceOrder reads a cart. Both "couponCodes" and the single
// "couponCode" form are accepted; the latter is appended.
func decodePlaceOrder(data []byte) (order.PlaceOrderRequest, error) {
	var req order.PlaceOrderRequest
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var l order.CartLine
				err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "productId":
						l.ProductID, err = d.Str()
					case "quantity":
						l.Quantity, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				})
				req.Lines = append(req.Lines, l)
				return err
			})
		case "couponCodes":
			return d.Arr(func(d *jx.Decoder) error {
				code, err := d.Str()
				req.CouponCodes = append(req.CouponCodes, code)
				return err
			})
		case "couponCode":
			code, err := optionalStr(d)
			if code != "" {
				req.CouponCodes = append(req.CouponCodes, code)
			}
			return err
		case "shipping":
			return decodeShipping(d, &req.Shipping)
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return order.PlaceOrderRequest{}, &requestError{msg: "malformed order: " + err.Error()}
	}
	return req, nil
}

func decodeShipping(d *jx.Decoder, s *order.ShippingInfo) error {
	fields := map[string]*string{
		"fullName":   &s.FullName,
		"address":    &s.Address,
		"city":       &s.City,
		"postalCode": &s.PostalCode,
		"country":    &s.Country,
		"phone":      &s.Phone,
	}
	return d.Obj(func(d *jx.Decoder, key string) error {
		dst, ok := fields[key]
		if !ok {
			return d.Skip()
		}
		v, err := optionalStr(d)
		*dst = strings.TrimSpace(v)
		return err
	})
}

func decodeStatus(data []byte) (string, error) {
	var status string
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		status, err = d.Str()
		return err
	})
	if err != nil {
		return "", &requestError{msg: "malformed status update: " + err.Error()}
	}
	if status == "" {
		return "", badRequest("status is required")
	}
	return status, nil
}

func decodeReview(data []byte) (review.CreateRequest, error) {
	var req review.CreateRequest
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "rating":
			req.Rating, err = d.Int()
		case "comment":
			req.Comment, err = optionalStr(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return review.CreateRequest{}, &requestError{msg: "malformed review: " + err.Error()}
	}
	return req, nil
}

// optionalStr reads a string that may be null.
func optionalStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return "", errors.Wrap(err, "expected string")
	}
	return s, nil
}
