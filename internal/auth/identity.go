// Package auth carries the authenticated identity through request call
// chains and provides the bearer-token middleware that establishes it.
package auth

import (
	"context"

	"github.com/elis/elis-backend/pkg/errors"
)

// Identity is the authenticated caller of a request. It is resolved from a
// validated token against a live user record, so a deleted or deactivated
// user cannot present a previously issued token.
type Identity struct {
	UserID   string
	Username string
	IsAdmin  bool
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a context carrying the authenticated identity
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the authenticated identity from the context
func IdentityFromContext(ctx context.Context) (*Identity, error) {
	id, ok := ctx.Value(identityKey).(*Identity)
	if !ok || id == nil {
		return nil, errors.Unauthorized("not authenticated")
	}
	return id, nil
}
