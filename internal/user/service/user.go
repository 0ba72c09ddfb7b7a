package service

import (
	"context"

	"github.com/elis/elis-backend/internal/user/domain"
	"github.com/elis/elis-backend/pkg/errors"
	"github.com/elis/elis-backend/pkg/logger"
)

// UserStore is the user repository surface the service needs
type UserStore interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, page, perPage int, search string) ([]*domain.User, int64, error)
	SetActive(ctx context.Context, id string, active bool) error
	SetStorageLimit(ctx context.Context, id string, limitBytes int64) error
}

// FileRemover removes an owner's stored files after their records are gone
type FileRemover interface {
	RemoveOwner(ownerID string) error
}

// UserService handles user business logic
type UserService struct {
	users  UserStore
	files  FileRemover
	logger *logger.Logger
}

// NewUserService creates a new user service
func NewUserService(users UserStore, files FileRemover, log *logger.Logger) *UserService {
	return &UserService{
		users:  users,
		files:  files,
		logger: log,
	}
}

// UpdateRequest represents a profile update
type UpdateRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	FullName *string `json:"full_name" validate:"omitempty,max=255"`
}

// GetByID gets a user by ID
func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

// Update applies a partial profile update
func (s *UserService) Update(ctx context.Context, id string, req *UpdateRequest) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.FullName != nil {
		user.FullName = *req.FullName
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	return s.users.GetByID(ctx, id)
}

// Delete removes a user and everything they own. The row delete cascades to
// documents and images in one statement; stored files are removed only after
// that succeeds, so a failed delete leaves the account fully intact rather
// than half-deleted.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}

	if err := s.files.RemoveOwner(id); err != nil {
		s.logger.Error().Err(err).Str("user_id", id).Msg("failed to remove stored files")
		return errors.Internal("user removed but stored files could not be deleted")
	}

	s.logger.Info().Str("user_id", id).Msg("user deleted")
	return nil
}

// List lists users for the admin panel
func (s *UserService) List(ctx context.Context, page, perPage int, search string) ([]*domain.User, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return s.users.List(ctx, page, perPage, search)
}

// SetQuota updates a user's storage limit
func (s *UserService) SetQuota(ctx context.Context, id string, limitBytes int64) (*domain.User, error) {
	if limitBytes < 0 {
		return nil, errors.Validation(map[string]string{
			"storage_limit_bytes": "must not be negative",
		})
	}

	if err := s.users.SetStorageLimit(ctx, id, limitBytes); err != nil {
		return nil, err
	}

	return s.users.GetByID(ctx, id)
}

// SetActive activates or deactivates an account
func (s *UserService) SetActive(ctx context.Context, id string, active bool) (*domain.User, error) {
	if err := s.users.SetActive(ctx, id, active); err != nil {
		return nil, err
	}

	return s.users.GetByID(ctx, id)
}
