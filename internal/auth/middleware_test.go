package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elis/elis-backend/internal/auth"
	"github.com/elis/elis-backend/internal/auth/jwt"
	"github.com/elis/elis-backend/internal/user/domain"
	"github.com/elis/elis-backend/pkg/config"
	"github.com/elis/elis-backend/pkg/errors"
)

type fakeResolver struct {
	users map[string]*domain.User
}

func (r *fakeResolver) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, errors.NotFound("user")
	}
	return u, nil
}

func newTestManager() *jwt.Manager {
	return jwt.NewManager(&config.JWTConfig{
		Secret:       "test-secret",
		AccessExpiry: time.Hour,
		Issuer:       "elis-test",
	})
}

// next handler records the identity the middleware established
func identityEcho(t *testing.T, got **auth.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := auth.IdentityFromContext(r.Context())
		require.NoError(t, err)
		*got = identity
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(handler http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware(t *testing.T) {
	manager := newTestManager()
	resolver := &fakeResolver{users: map[string]*domain.User{
		"user-1": {ID: "user-1", Username: "alice", IsActive: true},
	}}

	var got *auth.Identity
	handler := auth.Middleware(manager, resolver)(identityEcho(t, &got))

	token, err := manager.Generate("user-1", "alice")
	require.NoError(t, err)
	bearer := "Bearer " + token.AccessToken

	t.Run("valid token resolves identity", func(t *testing.T) {
		rec := doRequest(handler, bearer)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, got)
		assert.Equal(t, "user-1", got.UserID)
		assert.Equal(t, "alice", got.Username)
	})

	t.Run("token fails after user is deleted", func(t *testing.T) {
		delete(resolver.users, "user-1")
		defer func() {
			resolver.users["user-1"] = &domain.User{ID: "user-1", Username: "alice", IsActive: true}
		}()

		// The token itself is still well-formed and unexpired; only the
		// missing user row revokes it
		rec := doRequest(handler, bearer)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("deactivated user is rejected", func(t *testing.T) {
		resolver.users["user-1"].IsActive = false
		defer func() { resolver.users["user-1"].IsActive = true }()

		rec := doRequest(handler, bearer)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("missing header", func(t *testing.T) {
		rec := doRequest(handler, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		rec := doRequest(handler, "Token abc")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := doRequest(handler, "Bearer not-a-token")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		other := jwt.NewManager(&config.JWTConfig{
			Secret:       "other-secret",
			AccessExpiry: time.Hour,
			Issuer:       "elis-test",
		})
		forged, err := other.Generate("user-1", "alice")
		require.NoError(t, err)

		rec := doRequest(handler, "Bearer "+forged.AccessToken)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireAdmin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := auth.RequireAdmin(next)

	t.Run("admin passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		ctx := auth.WithIdentity(req.Context(), &auth.Identity{UserID: "user-1", IsAdmin: true})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req.WithContext(ctx))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("non-admin is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		ctx := auth.WithIdentity(req.Context(), &auth.Identity{UserID: "user-1"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req.WithContext(ctx))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("no identity", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
