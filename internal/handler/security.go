package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/pkg/httpmiddleware"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "api_key"

var errUnauthorized = errors.New("unauthorized")

// HashKey returns the hex HMAC-SHA256 of key keyed by pepper. Stored key
// hashes are produced with the same function.
func HashKey(pepper []byte, key string) string {
	return hex.EncodeToString(keyMAC(pepper, key))
}

func keyMAC(pepper []byte, key string) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// SecurityHandler authenticates API requests via HMAC-SHA256 hashed API keys.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// authenticate resolves key to a requester. Lookup misses and hash
// mismatches both yield errUnauthorized.
func (s *SecurityHandler) authenticate(ctx context.Context, key string) (auth.Requester, error) {
	if key == "" {
		return auth.Requester{}, errUnauthorized
	}
	hash := keyMAC(s.pepper, key)

	info, err := s.apikeys.FindByHash(ctx, hex.EncodeToString(hash))
	if errors.Is(err, auth.ErrKeyNotFound) {
		return auth.Requester{}, errUnauthorized
	}
	if err != nil {
		return auth.Requester{}, errors.Wrap(err, "find api key")
	}

	// The stored hash is compared again in constant time in case the
	// repository matched loosely.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return auth.Requester{}, errUnauthorized
	}
	if info.UserID == "" {
		return auth.Requester{}, errUnauthorized
	}
	return info.Requester(), nil
}

// Authenticate rejects requests without a valid API key and stores the
// requester in the request context.
func (s *SecurityHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		who, err := s.authenticate(r.Context(), r.Header.Get(APIKeyHeader))
		switch {
		case errors.Is(err, errUnauthorized):
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid api key")
			return
		case err != nil:
			zctx.From(r.Context()).Error("Authentication failed", zap.Error(err))
			writeProblem(w, http.StatusInternalServerError, kindInternal, "internal error")
			return
		}

		ctx := auth.WithRequester(r.Context(), who)
		ctx = zctx.With(ctx, zap.String("user_id", who.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PrincipalKey keys rate limits by authenticated user, falling back to the
// client address.
func PrincipalKey(r *http.Request) string {
	if who, ok := auth.RequesterFrom(r.Context()); ok && who.UserID != "" {
		return "user:" + who.UserID
	}
	return "ip:" + httpmiddleware.ClientIP(r)
}
