package service

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/elis/elis-backend/internal/auth/jwt"
	"github.com/elis/elis-backend/internal/user/domain"
	"github.com/elis/elis-backend/pkg/config"
	"github.com/elis/elis-backend/pkg/errors"
	"github.com/elis/elis-backend/pkg/logger"
)

// UserStore is the subset of the user repository the auth service needs
type UserStore interface {
	Create(ctx context.Context, user *domain.User) error
	GetByIdentity(ctx context.Context, identity string) (*domain.User, error)
	UpdateLastLogin(ctx context.Context, id string) error
}

// AuthService handles registration and login
type AuthService struct {
	users      UserStore
	jwtManager *jwt.Manager
	config     *config.Config
	logger     *logger.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(users UserStore, jwtManager *jwt.Manager, cfg *config.Config, log *logger.Logger) *AuthService {
	return &AuthService{
		users:      users,
		jwtManager: jwtManager,
		config:     cfg,
		logger:     log,
	}
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	FullName string `json:"full_name" validate:"max=255"`
}

// LoginRequest represents a login request. Username accepts either the
// username or the email address.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse represents a successful registration or login
type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int64        `json:"expires_in"`
	User        *domain.User `json:"user"`
}

// Register creates a new account and returns a token for it. The raw
// password is hashed immediately and never logged.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	minLen := s.config.Auth.MinPasswordLength
	if len(req.Password) < minLen {
		return nil, errors.Validation(map[string]string{
			"password": fmt.Sprintf("must be at least %d characters", minLen),
		})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Internal("failed to hash password")
	}

	user := &domain.User{
		Username:          req.Username,
		Email:             req.Email,
		PasswordHash:      string(hash),
		FullName:          req.FullName,
		IsActive:          true,
		StorageLimitBytes: s.config.Storage.DefaultUserQuotaBytes,
	}

	// The unique indexes decide duplicate identity; no check-then-insert.
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	token, err := s.jwtManager.Generate(user.ID, user.Username)
	if err != nil {
		return nil, errors.Internal("failed to generate token")
	}

	s.logger.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("user registered")

	return &AuthResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresIn:   token.ExpiresIn,
		User:        user,
	}, nil
}

// Login authenticates by username or email. Unknown identity and wrong
// password produce the same error to callers.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	user, err := s.users.GetByIdentity(ctx, req.Username)
	if err != nil {
		// Burn a comparison so the timing profile matches the
		// wrong-password path.
		bcrypt.CompareHashAndPassword([]byte("$2a$10$invalidinvalidinvalidinvalidinvalidinvalidinvalidinval"), []byte(req.Password))
		return nil, errors.InvalidCredentials()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errors.InvalidCredentials()
	}

	if !user.IsActive {
		return nil, errors.Forbidden("user account is disabled")
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("failed to update last login")
	}

	token, err := s.jwtManager.Generate(user.ID, user.Username)
	if err != nil {
		return nil, errors.Internal("failed to generate token")
	}

	return &AuthResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresIn:   token.ExpiresIn,
		User:        user,
	}, nil
}
