package order

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentRequest is what an authorizer sees for one checkout.
type PaymentRequest struct {
	OrderID string
	UserID  string
	Amount  decimal.Decimal
}

// Authorization is the authorizer's verdict.
type Authorization struct {
	Approved  bool
	Reference string
	Reason    string
}

// PaymentAuthorizer approves or declines a charge. An error means the
// authorizer could not decide, not that the charge was declined.
//
// Void releases an approved authorization that could not be applied to its
// order.
type PaymentAuthorizer interface {
	Authorize(ctx context.Context, req PaymentRequest) (*Authorization, error)
	Void(ctx context.Context, reference string) error
}

// RandomAuthorizer approves a fixed fraction of charges at random. It stands
// in for a real gateway.
type RandomAuthorizer struct {
	mu   sync.Mutex
	rng  *rand.Rand
	rate float64
}

// NewRandomAuthorizer approves with probability rate, clamped to [0, 1].
func NewRandomAuthorizer(rate float64, seed uint64) *RandomAuthorizer {
	rate = min(max(rate, 0), 1)
	return &RandomAuthorizer{
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		rate: rate,
	}
}

func (a *RandomAuthorizer) Authorize(_ context.Context, req PaymentRequest) (*Authorization, error) {
	a.mu.Lock()
	roll := a.rng.Float64()
	a.mu.Unlock()

	if roll >= a.rate {
		return &Authorization{Reason: "card declined"}, nil
	}
	return &Authorization{Approved: true, Reference: "auth_" + uuid.NewString()}, nil
}

// Void is a no-op: nothing is held.
func (a *RandomAuthorizer) Void(context.Context, string) error {
	return nil
}
