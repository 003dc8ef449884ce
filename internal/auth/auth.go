// Package auth turns bearer tokens into identities. Identity provisioning is
// external: the verifiers only check tokens issued elsewhere.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"festival-mileage/internal/domain"
)

// Identity is the authenticated caller.
type Identity struct {
	UID         string
	DisplayName string
	Email       string
}

// Verifier validates a raw bearer token.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

var errMissingToken = errors.New("missing bearer token")

// BearerToken extracts the token from an Authorization header. Browsers cannot
// set headers on websocket upgrades, so a token query parameter is accepted too.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, nil
		}
		return "", errMissingToken
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", errMissingToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errMissingToken
	}
	return token, nil
}

// Authenticate verifies the request token.
func Authenticate(r *http.Request, v Verifier) (Identity, error) {
	token, err := BearerToken(r)
	if err != nil {
		return Identity{}, domain.ErrUnauthenticated
	}
	id, err := v.Verify(r.Context(), token)
	if err != nil || id.UID == "" {
		return Identity{}, domain.ErrUnauthenticated
	}
	return id, nil
}

type ctxKey struct{}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
