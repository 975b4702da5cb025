package order

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/coupon"
	"github.com/xenking/kart-orders/internal/domain/product"
)

// Repositories is the set of repositories bound to one transaction.
type Repositories struct {
	Products product.Repository
	Coupons  coupon.Repository
	Usages   coupon.UsageRepository
	Orders   Repository
}

// Transactor runs fn as a single atomic unit of work. If fn returns an error
// nothing it wrote is visible afterwards. Implementations return an error
// wrapping ErrConflict when the store aborted the unit because of concurrent
// writers.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error
}

// DefaultMaxTxAttempts is used when Options.MaxTxAttempts is not set.
const DefaultMaxTxAttempts = 3

func (s *Service) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.maxAttempts-1)), ctx)
}

// inTx runs fn through the transactor, replaying the whole unit of work on
// conflict. fn must build all of its results from scratch on every call.
func (s *Service) inTx(ctx context.Context, op string, fn func(ctx context.Context, r Repositories) error) error {
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := s.tx.WithinTx(ctx, fn)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrConflict):
			s.metrics.conflicts.Add(ctx, 1)
			zctx.From(ctx).Debug("Transaction conflict",
				zap.String("op", op),
				zap.Int("attempt", attempt),
			)
			return err
		default:
			return backoff.Permanent(err)
		}
	}, s.newBackOff(ctx))
	if err != nil && errors.Is(err, ErrConflict) {
		return errors.Wrapf(ErrTransactionFailed, "%s after %d attempts", op, attempt)
	}
	return err
}
