package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/elis/elis-backend/internal/auth/jwt"
	"github.com/elis/elis-backend/internal/user/domain"
	"github.com/elis/elis-backend/pkg/errors"
	"github.com/elis/elis-backend/pkg/httputil"
)

// UserResolver looks up a user by id for token validation
type UserResolver interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// Middleware validates bearer tokens and resolves them to a live user.
// Resolving against the user store means a token for a deleted user fails
// validation even before its expiry.
func Middleware(manager *jwt.Manager, users UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				httputil.Error(w, errors.Unauthorized("missing authorization header"))
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				httputil.Error(w, errors.Unauthorized("invalid authorization header"))
				return
			}

			claims, err := manager.Validate(parts[1])
			if err != nil {
				httputil.Error(w, err)
				return
			}

			user, err := users.GetByID(r.Context(), claims.UserID)
			if err != nil {
				httputil.Error(w, errors.TokenInvalid())
				return
			}

			if !user.IsActive {
				httputil.Error(w, errors.Forbidden("user account is disabled"))
				return
			}

			identity := &Identity{
				UserID:   user.ID,
				Username: user.Username,
				IsAdmin:  user.IsAdmin,
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireAdmin rejects requests whose identity is not an administrator
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := IdentityFromContext(r.Context())
		if err != nil {
			httputil.Error(w, err)
			return
		}

		if !identity.IsAdmin {
			httputil.Error(w, errors.Forbidden("admin privileges required"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
