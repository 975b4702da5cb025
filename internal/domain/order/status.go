package order

import (
	"time"

	"github.com/go-faster/errors"
)

// Status is the lifecycle state of an order.
//
//	pending -> paid -> shipped -> delivered
//	pending -> cancelled
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// forwardRank orders the statuses reachable through Advance.
var forwardRank = map[Status]int{
	StatusPending:   0,
	StatusPaid:      1,
	StatusShipped:   2,
	StatusDelivered: 3,
}

// ParseStatus converts s into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := forwardRank[st]; ok || st == StatusCancelled {
		return st, nil
	}
	return "", errors.Wrapf(ErrInvalidStatus, "%q", s)
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusDelivered
}

// Advance moves the order forward along pending -> paid -> shipped ->
// delivered. Steps may be skipped but never reversed, and terminal orders
// cannot move.
func (o *Order) Advance(to Status, at time.Time) error {
	if o.Status.Terminal() {
		return &TransitionError{From: o.Status, To: to, Err: ErrInvalidTransition}
	}
	toRank, ok := forwardRank[to]
	if !ok || toRank <= forwardRank[o.Status] {
		return &TransitionError{From: o.Status, To: to, Err: ErrInvalidTransition}
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}

// MarkPaid records a successful payment. Only pending orders can be paid.
func (o *Order) MarkPaid(at time.Time) error {
	if o.Status != StatusPending {
		return &TransitionError{From: o.Status, To: StatusPaid, Err: ErrInvalidTransition}
	}
	return o.Advance(StatusPaid, at)
}

// Cancel moves a pending order to cancelled. Orders that were paid or moved
// further cannot be cancelled.
func (o *Order) Cancel(at time.Time) error {
	if o.Status != StatusPending {
		return &TransitionError{From: o.Status, To: StatusCancelled, Err: ErrNotCancellable}
	}
	o.Status = StatusCancelled
	o.UpdatedAt = at
	return nil
}
