package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/coupon"
	"github.com/xenking/kart-orders/internal/domain/inventory"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/domain/review"
)

const kindInternal = "Internal"

// requestError reports a malformed request body or query.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

var couponKinds = []struct {
	err  error
	kind string
}{
	{coupon.ErrCouponInvalid, "CouponInvalid"},
	{coupon.ErrCouponExpired, "CouponExpired"},
	{coupon.ErrCouponAlreadyUsed, "CouponAlreadyUsed"},
	{coupon.ErrCouponLimitReached, "CouponLimitReached"},
	{coupon.ErrCouponMinimumNotMet, "CouponMinimumNotMet"},
}

// classify maps a service error to an HTTP status and error kind.
func classify(err error) (int, string) {
	var (
		reqErr    *requestError
		qtyErr    *order.InvalidQuantityError
		shipErr   *order.InvalidShippingError
		unavail   *inventory.ProductUnavailableError
		stockErr  *inventory.InsufficientStockError
		couponErr *coupon.Error
		ratingErr *review.InvalidRatingError
	)
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, "InvalidRequest"
	case errors.Is(err, order.ErrEmptyCart):
		return http.StatusBadRequest, "EmptyCart"
	case errors.As(err, &qtyErr):
		return http.StatusBadRequest, "InvalidQuantity"
	case errors.As(err, &shipErr):
		return http.StatusBadRequest, "InvalidShipping"
	case errors.Is(err, order.ErrTooManyCoupons):
		return http.StatusBadRequest, "TooManyCoupons"
	case errors.Is(err, order.ErrInvalidStatus):
		return http.StatusBadRequest, "InvalidStatus"
	case errors.As(err, &ratingErr):
		return http.StatusBadRequest, "InvalidRating"
	case errors.As(err, &unavail):
		return http.StatusNotFound, "ProductUnavailable"
	case errors.As(err, &stockErr):
		return http.StatusBadRequest, "InsufficientStock"
	case errors.As(err, &couponErr):
		for _, c := range couponKinds {
			if errors.Is(couponErr.Err, c.err) {
				return http.StatusUnprocessableEntity, c.kind
			}
		}
		return http.StatusUnprocessableEntity, "CouponInvalid"
	case errors.Is(err, order.ErrNotCancellable):
		return http.StatusBadRequest, "OrderNotCancellable"
	case errors.Is(err, order.ErrInvalidTransition):
		return http.StatusBadRequest, "InvalidOrderTransition"
	case errors.Is(err, order.ErrPaymentDeclined):
		return http.StatusPaymentRequired, "PaymentDeclined"
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "OrderNotFound"
	case errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound, "ProductNotFound"
	case errors.Is(err, review.ErrAlreadyReviewed):
		return http.StatusConflict, "AlreadyReviewed"
	case errors.Is(err, review.ErrNotPurchased):
		return http.StatusForbidden, "NotPurchased"
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, order.ErrTransactionFailed):
		return http.StatusServiceUnavailable, "TransactionFailed"
	default:
		return http.StatusInternalServerError, kindInternal
	}
}

// writeError renders err as a problem body. Unclassified errors are logged
// and their text is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal error"
	case http.StatusServiceUnavailable:
		zctx.From(r.Context()).Warn("Transaction gave up", zap.Error(err))
	}
	writeProblem(w, status, kind, msg)
}

func writeProblem(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("kind", func(e *jx.Encoder) { e.Str(kind) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}
