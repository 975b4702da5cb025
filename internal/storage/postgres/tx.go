package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xenking/kart-orders/internal/domain/order"
)

var _ order.Transactor = (*Store)(nil)

// SQLSTATE codes that make a transaction safe to replay.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// conflictError marks a driver error as a retryable conflict while keeping
// the original error in the chain.
type conflictError struct {
	err error
}

func (e *conflictError) Error() string {
	return "transaction conflict: " + e.err.Error()
}

func (e *conflictError) Unwrap() error { return e.err }

func (e *conflictError) Is(target error) bool { return target == order.ErrConflict }

func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

func classify(err error) error {
	if err == nil || errors.Is(err, order.ErrConflict) {
		return err
	}
	if isConflict(err) {
		return &conflictError{err: err}
	}
	return err
}

// WithinTx runs fn in a SERIALIZABLE transaction. fn's error, or a failed
// commit, rolls everything back.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, r order.Repositories) error) (rerr error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if rerr != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err := fn(ctx, repositories(tx)); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(errors.Wrap(err, "commit"))
	}
	return nil
}

func repositories(q querier) order.Repositories {
	return order.Repositories{
		Products: &ProductRepository{q: q},
		Coupons:  &CouponRepository{q: q},
		Usages:   &UsageRepository{q: q},
		Orders:   &OrderRepository{q: q},
	}
}
