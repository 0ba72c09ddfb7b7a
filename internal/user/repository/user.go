package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/elis/elis-backend/internal/user/domain"
	"github.com/elis/elis-backend/pkg/database"
	"github.com/elis/elis-backend/pkg/errors"
)

const userColumns = `id, username, email, password_hash, full_name, is_active, is_admin,
       storage_used_bytes, storage_limit_bytes, created_at, updated_at, last_login_at`

// UserRepository handles user persistence
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user. Uniqueness of username and email is enforced by
// the database indexes, so concurrent registrations with the same identity
// cannot both succeed.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.Username = strings.ToLower(user.Username)
	user.Email = strings.ToLower(user.Email)

	query := `
		INSERT INTO users (id, username, email, password_hash, full_name, is_active, is_admin, storage_limit_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FullName,
		user.IsActive,
		user.IsAdmin,
		user.StorageLimitBytes,
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	return nil
}

// GetByID gets a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	err := r.db.GetContext(ctx, &user, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("user")
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// GetByIdentity gets a user by username or email. The identity is lowercased
// before lookup to match the storage convention.
func (r *UserRepository) GetByIdentity(ctx context.Context, identity string) (*domain.User, error) {
	var user domain.User
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 OR email = $1`

	err := r.db.GetContext(ctx, &user, query, strings.ToLower(identity))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("user")
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// Update updates a user's mutable profile fields
func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	user.Email = strings.ToLower(user.Email)

	query := `
		UPDATE users
		SET email = $2, full_name = $3, is_active = $4, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, user.ID, user.Email, user.FullName, user.IsActive)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("user")
	}

	return nil
}

// UpdateLastLogin updates the last login timestamp
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string) error {
	query := `UPDATE users SET last_login_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// SetActive activates or deactivates an account
func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, active)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("user")
	}

	return nil
}

// SetStorageLimit updates a user's storage quota
func (r *UserRepository) SetStorageLimit(ctx context.Context, id string, limitBytes int64) error {
	query := `UPDATE users SET storage_limit_bytes = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, limitBytes)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("user")
	}

	return nil
}

// ReserveStorage atomically reserves quota for an upload. Returns
// QuotaExceeded when the reservation would pass the user's limit.
func (r *UserRepository) ReserveStorage(ctx context.Context, id string, sizeBytes int64) error {
	query := `
		UPDATE users
		SET storage_used_bytes = storage_used_bytes + $2, updated_at = NOW()
		WHERE id = $1 AND storage_used_bytes + $2 <= storage_limit_bytes
	`

	result, err := r.db.ExecContext(ctx, query, id, sizeBytes)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		user, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return errors.QuotaExceeded(sizeBytes, user.StorageLimitBytes)
	}

	return nil
}

// ReleaseStorage returns previously reserved quota, clamped at zero
func (r *UserRepository) ReleaseStorage(ctx context.Context, id string, sizeBytes int64) error {
	query := `
		UPDATE users
		SET storage_used_bytes = GREATEST(storage_used_bytes - $2, 0), updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, sizeBytes)
	return err
}

// List lists users with pagination and optional search over username, email
// and full name
func (r *UserRepository) List(ctx context.Context, page, perPage int, search string) ([]*domain.User, int64, error) {
	where := ""
	args := []interface{}{}
	if search != "" {
		where = `WHERE username ILIKE $1 OR email ILIKE $1 OR full_name ILIKE $1`
		args = append(args, "%"+search+"%")
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM users ` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := fmt.Sprintf(`SELECT `+userColumns+` FROM users %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, perPage, offset)

	var users []*domain.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

// Delete removes a user. Document and image rows cascade through foreign
// keys in the same statement, so the cascade either completes with the user
// row or not at all; the caller removes stored files only after success.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("user")
	}

	return nil
}
