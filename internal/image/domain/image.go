// Package domain defines the extracted image model.
package domain

import "time"

// Image is a page image extracted from a document. The owner reference is
// denormalized from the parent document for access control; an image never
// outlives its parent document.
type Image struct {
	ID          string    `db:"id" json:"id"`
	DocumentID  string    `db:"document_id" json:"document_id"`
	OwnerID     string    `db:"owner_id" json:"owner_id"`
	StoragePath string    `db:"storage_path" json:"-"`
	Sequence    int       `db:"sequence" json:"sequence"`
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
