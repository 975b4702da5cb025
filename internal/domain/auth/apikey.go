package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// Role is the permission level of an authenticated principal.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

var (
	// ErrForbidden is returned when a requester may not act on a resource.
	ErrForbidden = errors.New("forbidden")
	// ErrKeyNotFound is returned by repositories for unknown or revoked keys.
	ErrKeyNotFound = errors.New("api key not found")
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	UserID  string
	Role    Role
}

// Requester returns the principal the key authenticates.
func (k *APIKeyInfo) Requester() Requester {
	return Requester{UserID: k.UserID, Role: k.Role}
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// Requester identifies who is calling into the order core.
type Requester struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the requester has administrative rights.
func (r Requester) IsAdmin() bool {
	return r.Role == RoleAdmin
}

// CanAccess reports whether the requester owns the resource or is an admin.
func (r Requester) CanAccess(ownerID string) bool {
	return r.IsAdmin() || (r.UserID != "" && r.UserID == ownerID)
}

type requesterKey struct{}

// WithRequester stores the authenticated requester in ctx.
func WithRequester(ctx context.Context, r Requester) context.Context {
	return context.WithValue(ctx, requesterKey{}, r)
}

// RequesterFrom extracts the requester stored by WithRequester.
func RequesterFrom(ctx context.Context) (Requester, bool) {
	r, ok := ctx.Value(requesterKey{}).(Requester)
	return r, ok
}
