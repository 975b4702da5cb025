// Package catalog decodes seed data for products, coupons and API keys and
// loads it into a store.
package catalog

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/coupon"
	"github.com/xenking/kart-orders/internal/domain/product"
)

// APIKey is a plaintext key from the seed file. Only its hash is stored.
type APIKey struct {
	ID     string
	Name   string
	UserID string
	Role   auth.Role
	Key    string
}

// Catalog is the content of db/seed/catalog.json.
type Catalog struct {
	Products []product.Product
	Coupons  []coupon.Coupon
	APIKeys  []APIKey
}

// Sink receives catalog entries. Upserts must be idempotent.
type Sink interface {
	UpsertProduct(ctx context.Context, p product.Product) error
	UpsertCoupon(ctx context.Context, c coupon.Coupon) error
	UpsertAPIKey(ctx context.Context, k auth.APIKeyInfo) error
}

// Load writes every entry of c into s. hash turns a plaintext key into the
// value stored in APIKeyInfo.KeyHash.
func (c *Catalog) Load(ctx context.Context, s Sink, hash func(key string) string) error {
	for _, p := range c.Products {
		if err := s.UpsertProduct(ctx, p); err != nil {
			return errors.Wrapf(err, "product %q", p.ID)
		}
	}
	for _, cp := range c.Coupons {
		if err := s.UpsertCoupon(ctx, cp); err != nil {
			return errors.Wrapf(err, "coupon %q", cp.Code)
		}
	}
	for _, k := range c.APIKeys {
		info := auth.APIKeyInfo{
			ID:      k.ID,
			KeyHash: hash(k.Key),
			Name:    k.Name,
			UserID:  k.UserID,
			Role:    k.Role,
		}
		if err := s.UpsertAPIKey(ctx, info); err != nil {
			return errors.Wrapf(err, "api key %q", k.ID)
		}
	}
	return nil
}

// Parse decodes a catalog document.
func Parse(data []byte) (*Catalog, error) {
	c := &Catalog{}
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "products":
			return d.Arr(func(d *jx.Decoder) error {
				p, err := decodeProduct(d)
				if err != nil {
					return err
				}
				c.Products = append(c.Products, p)
				return nil
			})
		case "coupons":
			return d.Arr(func(d *jx.Decoder) error {
				cp, err := DecodeCoupon(d)
				if err != nil {
					return err
				}
				c.Coupons = append(c.Coupons, cp)
				return nil
			})
		case "apiKeys":
			return d.Arr(func(d *jx.Decoder) error {
				k, err := decodeAPIKey(d)
				if err != nil {
					return err
				}
				c.APIKeys = append(c.APIKeys, k)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	return c, nil
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.Obj(func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "sellerId":
			p.SellerID, err = d.Str()
		case "title":
			p.Title, err = d.Str()
		case "price":
			p.Price, err = decodeDecimal(d)
		case "stock":
			p.Stock, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return p, err
	}
	switch {
	case p.ID == "":
		return p, errors.New("product id is required")
	case p.Price.IsNegative():
		return p, errors.Errorf("product %q: negative price", p.ID)
	case p.Stock < 0:
		return p, errors.Errorf("product %q: negative stock", p.ID)
	}
	return p, nil
}

func decodeAPIKey(d *jx.Decoder) (APIKey, error) {
	var k APIKey
	err := d.Obj(func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "id":
			k.ID, err = d.Str()
		case "name":
			k.Name, err = d.Str()
		case "userId":
			k.UserID, err = d.Str()
		case "role":
			var role string
			role, err = d.Str()
			k.Role = auth.Role(role)
		case "key":
			k.Key, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return k, err
	}
	if k.Key == "" || k.UserID == "" {
		return k, errors.Errorf("api key %q: key and userId are required", k.ID)
	}
	if k.Role != auth.RoleCustomer && k.Role != auth.RoleAdmin {
		return k, errors.Errorf("api key %q: unknown role %q", k.ID, k.Role)
	}
	if k.ID == "" {
		k.ID = k.UserID
	}
	return k, nil
}

// ParseCoupon decodes a single coupon object, as found on each line of a
// coupon-ingest file.
func ParseCoupon(data []byte) (coupon.Coupon, error) {
	return DecodeCoupon(jx.DecodeBytes(data))
}

// DecodeCoupon reads a coupon object. Codes are normalized. A missing id is
// derived from the code so re-imports keep the same row.
func DecodeCoupon(d *jx.Decoder) (coupon.Coupon, error) {
	c := coupon.Coupon{IsActive: true}
	err := d.Obj(func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "id":
			c.ID, err = d.Str()
		case "code":
			c.Code, err = d.Str()
		case "type":
			var t string
			t, err = d.Str()
			c.Type = coupon.DiscountType(t)
		case "value":
			c.Value, err = decodeDecimal(d)
		case "minAmount":
			c.MinAmount, err = decodeDecimal(d)
		case "maxDiscount":
			if d.Next() == jx.Null {
				return d.Null()
			}
			c.MaxDiscount.Decimal, err = decodeDecimal(d)
			c.MaxDiscount.Valid = err == nil
		case "usageLimit":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var n int
			n, err = d.Int()
			c.UsageLimit = &n
		case "expiresAt":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var s string
			if s, err = d.Str(); err != nil {
				return err
			}
			var t time.Time
			if t, err = time.Parse(time.RFC3339, s); err != nil {
				return errors.Wrap(err, "expiresAt")
			}
			c.ExpiresAt = &t
		case "active":
			c.IsActive, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return c, errors.Wrap(err, "decode coupon")
	}

	c.Code = coupon.NormalizeCode(c.Code)
	if c.Code == "" {
		return c, errors.New("coupon code is required")
	}
	if c.Type != coupon.DiscountPercentage && c.Type != coupon.DiscountFixed {
		return c, errors.Errorf("coupon %q: unknown type %q", c.Code, c.Type)
	}
	if c.Value.IsNegative() {
		return c, errors.Errorf("coupon %q: negative value", c.Code)
	}
	if c.UsageLimit != nil && *c.UsageLimit < 0 {
		return c, errors.Errorf("coupon %q: negative usage limit", c.Code)
	}
	if c.ID == "" {
		c.ID = CouponID(c.Code)
	}
	return c, nil
}

// CouponID derives a stable identifier from a normalized code.
func CouponID(code string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("kart-coupon:"+code)).String()
}

// decodeDecimal accepts both "12.50" and 12.5.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Decimal{}, errors.Errorf("expected decimal, got %s", d.Next())
	}
}
