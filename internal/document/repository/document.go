package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/elis/elis-backend/internal/document/domain"
	"github.com/elis/elis-backend/pkg/database"
	"github.com/elis/elis-backend/pkg/errors"
)

const documentColumns = `id, owner_id, storage_path, original_filename, size_bytes,
       status, failure_reason, attempt, page_count, created_at, updated_at`

// DocumentRepository handles document persistence
type DocumentRepository struct {
	db *database.DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *database.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a new document in pending status
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.Status == "" {
		doc.Status = domain.StatusPending
	}

	query := `
		INSERT INTO documents (id, owner_id, storage_path, original_filename, size_bytes, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		doc.ID,
		doc.OwnerID,
		doc.StoragePath,
		doc.OriginalFilename,
		doc.SizeBytes,
		doc.Status,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)

	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	return nil
}

// GetByID gets a document by ID
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	var doc domain.Document
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	err := r.db.GetContext(ctx, &doc, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("document")
	}
	if err != nil {
		return nil, err
	}

	return &doc, nil
}

// ListByOwner lists an owner's documents, newest first
func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string, page, perPage int) ([]*domain.Document, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM documents WHERE owner_id = $1`, ownerID); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	var docs []*domain.Document
	if err := r.db.SelectContext(ctx, &docs, query, ownerID, perPage, offset); err != nil {
		return nil, 0, err
	}

	return docs, total, nil
}

// MarkCompleted transitions a pending document to completed. The update is
// conditional on the current status (compare-and-set), so a redelivered job
// applying the same result twice is a no-op. Returns true when this call
// performed the transition.
func (r *DocumentRepository) MarkCompleted(ctx context.Context, id string, pageCount, attempt int) (bool, error) {
	query := `
		UPDATE documents
		SET status = $2, page_count = $3, attempt = $4, failure_reason = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $5
	`

	result, err := r.db.ExecContext(ctx, query, id, domain.StatusCompleted, pageCount, attempt, domain.StatusPending)
	if err != nil {
		return false, err
	}

	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// MarkFailed transitions a pending document to failed with a recorded reason.
// Like MarkCompleted, the transition is compare-and-set on pending status and
// idempotent when the document is already terminal.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id, reason string, attempt int) (bool, error) {
	query := `
		UPDATE documents
		SET status = $2, failure_reason = $3, attempt = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5
	`

	result, err := r.db.ExecContext(ctx, query, id, domain.StatusFailed, reason, attempt, domain.StatusPending)
	if err != nil {
		return false, err
	}

	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// Delete removes a document row; image rows cascade through the foreign key
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("document")
	}

	return nil
}
