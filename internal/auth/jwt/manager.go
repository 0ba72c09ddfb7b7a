package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/elis/elis-backend/pkg/config"
	"github.com/elis/elis-backend/pkg/errors"
)

// Claims represents the JWT claims
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Manager handles JWT operations
type Manager struct {
	config *config.JWTConfig
}

// NewManager creates a new JWT manager
func NewManager(cfg *config.JWTConfig) *Manager {
	return &Manager{config: cfg}
}

// Token is a signed, time-bounded bearer credential
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExpiresIn   int64     `json:"expires_in"`
}

// Generate issues an access token asserting the given user
func (m *Manager) Generate(userID, username string) (*Token, error) {
	now := time.Now()
	expiresAt := now.Add(m.config.AccessExpiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		UserID:   userID,
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.Secret))
	if err != nil {
		return nil, err
	}

	return &Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		ExpiresIn:   int64(m.config.AccessExpiry.Seconds()),
	}, nil
}

// Validate validates an access token and returns the claims
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.TokenInvalid()
		}
		return []byte(m.config.Secret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.TokenExpired()
		}
		return nil, errors.TokenInvalid()
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.TokenInvalid()
	}

	return claims, nil
}

// Expiry returns the access token expiry duration
func (m *Manager) Expiry() time.Duration {
	return m.config.AccessExpiry
}
