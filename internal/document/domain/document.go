// Package domain defines the document model and its processing states.
package domain

import "time"

// Status is the processing state of a document. Transitions are monotonic:
// pending -> completed or pending -> failed, never back.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status admits no further transitions
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document represents an uploaded file and its extraction state
type Document struct {
	ID               string    `db:"id" json:"id"`
	OwnerID          string    `db:"owner_id" json:"owner_id"`
	StoragePath      string    `db:"storage_path" json:"-"`
	OriginalFilename string    `db:"original_filename" json:"original_filename"`
	SizeBytes        int64     `db:"size_bytes" json:"size_bytes"`
	Status           Status    `db:"status" json:"status"`
	FailureReason    *string   `db:"failure_reason" json:"failure_reason,omitempty"`
	Attempt          int       `db:"attempt" json:"attempt"`
	PageCount        int       `db:"page_count" json:"page_count"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}
