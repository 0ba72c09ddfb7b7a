package service

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/elis/elis-backend/internal/auth"
	"github.com/elis/elis-backend/internal/document/domain"
	"github.com/elis/elis-backend/pkg/config"
	"github.com/elis/elis-backend/pkg/errors"
	"github.com/elis/elis-backend/pkg/logger"
	"github.com/elis/elis-backend/pkg/messaging"
)

// DocumentStore is the document repository surface the service needs
type DocumentStore interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByOwner(ctx context.Context, ownerID string, page, perPage int) ([]*domain.Document, int64, error)
	MarkFailed(ctx context.Context, id, reason string, attempt int) (bool, error)
	Delete(ctx context.Context, id string) error
}

// QuotaStore reserves and releases per-user storage quota
type QuotaStore interface {
	ReserveStorage(ctx context.Context, id string, sizeBytes int64) error
	ReleaseStorage(ctx context.Context, id string, sizeBytes int64) error
}

// FileStore persists uploaded bytes partitioned per owner and document
type FileStore interface {
	SaveDocument(ownerID, documentID string, r io.Reader) (string, int64, error)
	RemoveDocument(ownerID, documentID string) error
}

// JobQueue publishes extraction jobs
type JobQueue interface {
	Publish(ctx context.Context, job *messaging.ExtractionJob) error
}

// DocumentService handles document ingestion and lifecycle
type DocumentService struct {
	docs   DocumentStore
	quota  QuotaStore
	files  FileStore
	queue  JobQueue
	config *config.Config
	logger *logger.Logger
}

// NewDocumentService creates a new document service
func NewDocumentService(
	docs DocumentStore,
	quota QuotaStore,
	files FileStore,
	queue JobQueue,
	cfg *config.Config,
	log *logger.Logger,
) *DocumentService {
	return &DocumentService{
		docs:   docs,
		quota:  quota,
		files:  files,
		queue:  queue,
		config: cfg,
		logger: log,
	}
}

// StatusResponse is the pollable processing state of a document
type StatusResponse struct {
	ID            string        `json:"id"`
	Status        domain.Status `json:"status"`
	PageCount     int           `json:"page_count"`
	Attempt       int           `json:"attempt"`
	FailureReason *string       `json:"failure_reason,omitempty"`
}

// Ingest accepts an upload, persists it, creates a pending document and
// enqueues an extraction job. It returns as soon as the job is enqueued;
// extraction itself runs in the workers. If enqueueing fails the document is
// marked failed immediately so nothing is ever left pending forever.
func (s *DocumentService) Ingest(ctx context.Context, identity *auth.Identity, filename string, size int64, file io.Reader) (*domain.Document, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, errors.Validation(map[string]string{
			"file": "only PDF uploads are supported",
		})
	}
	if size <= 0 {
		return nil, errors.Validation(map[string]string{
			"file": "file is empty",
		})
	}
	if size > s.config.Storage.MaxUploadBytes {
		return nil, errors.Validation(map[string]string{
			"file": "file exceeds the maximum upload size",
		})
	}

	if err := s.quota.ReserveStorage(ctx, identity.UserID, size); err != nil {
		return nil, err
	}

	documentID := uuid.New().String()
	path, written, err := s.files.SaveDocument(identity.UserID, documentID, file)
	if err != nil {
		if rerr := s.quota.ReleaseStorage(ctx, identity.UserID, size); rerr != nil {
			s.logger.Warn().Err(rerr).Str("user_id", identity.UserID).Msg("failed to release reserved storage")
		}
		return nil, errors.Internal("failed to store uploaded file")
	}

	doc := &domain.Document{
		ID:               documentID,
		OwnerID:          identity.UserID,
		StoragePath:      path,
		OriginalFilename: filepath.Base(filename),
		SizeBytes:        written,
		Status:           domain.StatusPending,
	}

	if err := s.docs.Create(ctx, doc); err != nil {
		if rerr := s.files.RemoveDocument(identity.UserID, documentID); rerr != nil {
			s.logger.Warn().Err(rerr).Str("document_id", documentID).Msg("failed to remove stored file")
		}
		if rerr := s.quota.ReleaseStorage(ctx, identity.UserID, size); rerr != nil {
			s.logger.Warn().Err(rerr).Str("user_id", identity.UserID).Msg("failed to release reserved storage")
		}
		return nil, err
	}

	job := &messaging.ExtractionJob{DocumentID: doc.ID, Attempt: 1}
	if err := s.queue.Publish(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("document_id", doc.ID).Msg("failed to enqueue extraction job")

		if _, ferr := s.docs.MarkFailed(ctx, doc.ID, "failed to enqueue extraction job", 0); ferr != nil {
			s.logger.Error().Err(ferr).Str("document_id", doc.ID).Msg("failed to mark document failed")
		}
		doc.Status = domain.StatusFailed

		return doc, nil
	}

	s.logger.Info().
		Str("document_id", doc.ID).
		Str("user_id", identity.UserID).
		Int64("size_bytes", written).
		Msg("document ingested")

	return doc, nil
}

// Get returns a document visible only to its owner
func (s *DocumentService) Get(ctx context.Context, identity *auth.Identity, documentID string) (*domain.Document, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if doc.OwnerID != identity.UserID {
		return nil, errors.Forbidden("document belongs to another user")
	}

	return doc, nil
}

// Status is a pure read of a document's processing state, safe to poll
func (s *DocumentService) Status(ctx context.Context, identity *auth.Identity, documentID string) (*StatusResponse, error) {
	doc, err := s.Get(ctx, identity, documentID)
	if err != nil {
		return nil, err
	}

	return &StatusResponse{
		ID:            doc.ID,
		Status:        doc.Status,
		PageCount:     doc.PageCount,
		Attempt:       doc.Attempt,
		FailureReason: doc.FailureReason,
	}, nil
}

// ListByOwner lists the caller's documents
func (s *DocumentService) ListByOwner(ctx context.Context, identity *auth.Identity, page, perPage int) ([]*domain.Document, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return s.docs.ListByOwner(ctx, identity.UserID, page, perPage)
}

// Delete removes a document, its image records (cascade) and its stored
// files, and returns the reserved quota
func (s *DocumentService) Delete(ctx context.Context, identity *auth.Identity, documentID string) error {
	doc, err := s.Get(ctx, identity, documentID)
	if err != nil {
		return err
	}

	if err := s.docs.Delete(ctx, doc.ID); err != nil {
		return err
	}

	if err := s.quota.ReleaseStorage(ctx, doc.OwnerID, doc.SizeBytes); err != nil {
		s.logger.Warn().Err(err).Str("document_id", doc.ID).Msg("failed to release quota")
	}

	if err := s.files.RemoveDocument(doc.OwnerID, doc.ID); err != nil {
		s.logger.Error().Err(err).Str("document_id", doc.ID).Msg("failed to remove stored files")
		return errors.Internal("document removed but stored files could not be deleted")
	}

	s.logger.Info().Str("document_id", doc.ID).Str("user_id", identity.UserID).Msg("document deleted")
	return nil
}
