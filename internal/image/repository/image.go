package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/elis/elis-backend/internal/image/domain"
	"github.com/elis/elis-backend/pkg/database"
	"github.com/elis/elis-backend/pkg/errors"
)

const imageColumns = `id, document_id, owner_id, storage_path, sequence, size_bytes, created_at`

// ImageRepository handles extracted image persistence
type ImageRepository struct {
	db *database.DB
}

// NewImageRepository creates a new image repository
func NewImageRepository(db *database.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// Create inserts an image record. Inserting the same (document, sequence)
// pair twice is a no-op, which keeps redelivered extraction jobs from
// duplicating the catalog.
func (r *ImageRepository) Create(ctx context.Context, img *domain.Image) error {
	if img.ID == "" {
		img.ID = uuid.New().String()
	}

	query := `
		INSERT INTO images (id, document_id, owner_id, storage_path, sequence, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (document_id, sequence) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		img.ID,
		img.DocumentID,
		img.OwnerID,
		img.StoragePath,
		img.Sequence,
		img.SizeBytes,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	return nil
}

// GetByID gets an image by ID
func (r *ImageRepository) GetByID(ctx context.Context, id string) (*domain.Image, error) {
	var img domain.Image
	query := `SELECT ` + imageColumns + ` FROM images WHERE id = $1`

	err := r.db.GetContext(ctx, &img, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("image")
	}
	if err != nil {
		return nil, err
	}

	return &img, nil
}

// ListByDocument lists a document's images in extraction order
func (r *ImageRepository) ListByDocument(ctx context.Context, documentID string) ([]*domain.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE document_id = $1 ORDER BY sequence ASC`

	var images []*domain.Image
	if err := r.db.SelectContext(ctx, &images, query, documentID); err != nil {
		return nil, err
	}

	return images, nil
}

// ListByOwner lists all images belonging to an owner, newest first
func (r *ImageRepository) ListByOwner(ctx context.Context, ownerID string, page, perPage int) ([]*domain.Image, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM images WHERE owner_id = $1`, ownerID); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := `SELECT ` + imageColumns + `
		FROM images
		WHERE owner_id = $1
		ORDER BY created_at DESC, sequence ASC
		LIMIT $2 OFFSET $3`

	var images []*domain.Image
	if err := r.db.SelectContext(ctx, &images, query, ownerID, perPage, offset); err != nil {
		return nil, 0, err
	}

	return images, total, nil
}

// Delete removes an image record
func (r *ImageRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("image")
	}

	return nil
}
