// Package domain defines the user model.
package domain

import "time"

// User represents a registered account. Username and email are stored
// lowercased; uniqueness is enforced by the storage layer.
type User struct {
	ID                string     `db:"id" json:"id"`
	Username          string     `db:"username" json:"username"`
	Email             string     `db:"email" json:"email"`
	PasswordHash      string     `db:"password_hash" json:"-"`
	FullName          string     `db:"full_name" json:"full_name"`
	IsActive          bool       `db:"is_active" json:"is_active"`
	IsAdmin           bool       `db:"is_admin" json:"is_admin"`
	StorageUsedBytes  int64      `db:"storage_used_bytes" json:"storage_used_bytes"`
	StorageLimitBytes int64      `db:"storage_limit_bytes" json:"storage_limit_bytes"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
	LastLoginAt       *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
}

// StorageRemaining returns the unused portion of the user's quota
func (u *User) StorageRemaining() int64 {
	remaining := u.StorageLimitBytes - u.StorageUsedBytes
	if remaining < 0 {
		return 0
	}
	return remaining
}
