package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is the durable record of a placed cart. Monetary fields keep full
// precision; rounding to cents happens at presentation.
type Order struct {
	ID        string
	UserID    string
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	Total     decimal.Decimal
	Shipping  ShippingInfo
	Status    Status
	Items     []Item
	Coupons   []AppliedCoupon
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is an order line. SellerID, ProductTitle and PriceAtOrder are copied
// from the product when the order is placed and never re-read.
type Item struct {
	OrderID      string
	ProductID    string
	SellerID     string
	ProductTitle string
	Quantity     int
	PriceAtOrder decimal.Decimal
}

// LineTotal returns PriceAtOrder * Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.PriceAtOrder.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// AppliedCoupon records the discount portion one coupon produced.
type AppliedCoupon struct {
	OrderID        string
	CouponID       string
	Code           string
	DiscountAmount decimal.Decimal
}

// ShippingInfo is the delivery address captured with the order.
type ShippingInfo struct {
	FullName   string
	Address    string
	City       string
	PostalCode string
	Country    string
	Phone      string
}

// Validate reports the first required field that is blank.
func (s ShippingInfo) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"fullName", s.FullName},
		{"address", s.Address},
		{"city", s.City},
		{"country", s.Country},
	}
	for _, f := range required {
		if f.value == "" {
			return &InvalidShippingError{Field: f.name}
		}
	}
	return nil
}

// CartLine is a transient request line; it is never persisted as such.
type CartLine struct {
	ProductID string
	Quantity  int
}

// Repository persists orders inside a transaction.
type Repository interface {
	// Create inserts the order with its items and applied coupons.
	Create(ctx context.Context, o *Order) error
	// FindByID loads the order with items and coupons and locks it for the
	// rest of the transaction. Returns ErrNotFound when absent.
	FindByID(ctx context.Context, id string) (*Order, error)
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error
}

// ListFilter narrows an order listing.
type ListFilter struct {
	UserID string
	Status Status
}

// Page selects a window of a listing. Number is 1-based.
type Page struct {
	Number int
	Size   int
}

// PageInfo describes the window returned by a listing.
type PageInfo struct {
	Number     int
	Size       int
	TotalItems int
	TotalPages int
}

// ListResult is one page of orders, newest first. Orders carry no items or
// coupons; fetch a single order for details.
type ListResult struct {
	Orders []Order
	Page   PageInfo
}

// Reader serves read-only queries outside the transactional core.
type Reader interface {
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, filter ListFilter, page Page) ([]Order, int, error)
}
