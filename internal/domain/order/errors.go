package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for order operations.
var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrTooManyCoupons    = errors.New("too many coupon codes")
	ErrNotFound          = errors.New("order not found")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrNotCancellable    = errors.New("order cannot be cancelled")
	ErrPaymentDeclined   = errors.New("payment declined")

	// ErrConflict is returned by a Transactor when the store aborted the
	// transaction because of a concurrent write. The unit of work may be
	// retried.
	ErrConflict = errors.New("transaction conflict")
	// ErrTransactionFailed is surfaced once conflict retries are exhausted.
	ErrTransactionFailed = errors.New("transaction failed")
)

// InvalidQuantityError indicates a cart line has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s (got %d)", e.ProductID, e.Quantity)
}

// InvalidShippingError names the missing shipping field.
type InvalidShippingError struct {
	Field string
}

func (e *InvalidShippingError) Error() string {
	return fmt.Sprintf("shipping %s is required", e.Field)
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	From Status
	To   Status
	Err  error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", e.Err, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// PaymentDeclinedError carries the authorizer's reason.
type PaymentDeclinedError struct {
	OrderID string
	Reason  string
}

func (e *PaymentDeclinedError) Error() string {
	return fmt.Sprintf("payment for order %s declined: %s", e.OrderID, e.Reason)
}

func (e *PaymentDeclinedError) Unwrap() error {
	return ErrPaymentDeclined
}
