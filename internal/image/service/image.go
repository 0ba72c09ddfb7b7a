package service

import (
	"context"
	"io"

	"github.com/elis/elis-backend/internal/auth"
	docdomain "github.com/elis/elis-backend/internal/document/domain"
	"github.com/elis/elis-backend/internal/image/domain"
	"github.com/elis/elis-backend/pkg/errors"
	"github.com/elis/elis-backend/pkg/logger"
)

// ImageStore is the image repository surface the service needs
type ImageStore interface {
	GetByID(ctx context.Context, id string) (*domain.Image, error)
	ListByDocument(ctx context.Context, documentID string) ([]*domain.Image, error)
	ListByOwner(ctx context.Context, ownerID string, page, perPage int) ([]*domain.Image, int64, error)
	Delete(ctx context.Context, id string) error
}

// DocumentGetter resolves documents for ownership checks
type DocumentGetter interface {
	GetByID(ctx context.Context, id string) (*docdomain.Document, error)
}

// FileStore reads and removes stored image files
type FileStore interface {
	Open(path string) (io.ReadSeekCloser, error)
	Remove(path string) error
}

// ImageService handles extracted image reads and deletion
type ImageService struct {
	images ImageStore
	docs   DocumentGetter
	files  FileStore
	logger *logger.Logger
}

// NewImageService creates a new image service
func NewImageService(images ImageStore, docs DocumentGetter, files FileStore, log *logger.Logger) *ImageService {
	return &ImageService{
		images: images,
		docs:   docs,
		files:  files,
		logger: log,
	}
}

// Get returns an image record visible only to its owner
func (s *ImageService) Get(ctx context.Context, identity *auth.Identity, imageID string) (*domain.Image, error) {
	img, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return nil, err
	}

	if img.OwnerID != identity.UserID {
		return nil, errors.Forbidden("image belongs to another user")
	}

	return img, nil
}

// ListByDocument lists a document's images in page order. The document is
// resolved first so a missing document reads as not found rather than an
// empty list.
func (s *ImageService) ListByDocument(ctx context.Context, identity *auth.Identity, documentID string) ([]*domain.Image, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != identity.UserID {
		return nil, errors.Forbidden("document belongs to another user")
	}

	return s.images.ListByDocument(ctx, documentID)
}

// ListByOwner lists all of the caller's images across documents
func (s *ImageService) ListByOwner(ctx context.Context, identity *auth.Identity, page, perPage int) ([]*domain.Image, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return s.images.ListByOwner(ctx, identity.UserID, page, perPage)
}

// Content opens the stored bytes of an image for serving
func (s *ImageService) Content(ctx context.Context, identity *auth.Identity, imageID string) (*domain.Image, io.ReadSeekCloser, error) {
	img, err := s.Get(ctx, identity, imageID)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.files.Open(img.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Str("image_id", img.ID).Msg("stored image file missing")
		return nil, nil, errors.Internal("image file could not be read")
	}

	return img, rc, nil
}

// Delete removes a single image record and its stored file
func (s *ImageService) Delete(ctx context.Context, identity *auth.Identity, imageID string) error {
	img, err := s.Get(ctx, identity, imageID)
	if err != nil {
		return err
	}

	if err := s.images.Delete(ctx, img.ID); err != nil {
		return err
	}

	if err := s.files.Remove(img.StoragePath); err != nil {
		s.logger.Error().Err(err).Str("image_id", img.ID).Msg("failed to remove stored image file")
		return errors.Internal("image removed but stored file could not be deleted")
	}

	s.logger.Info().Str("image_id", img.ID).Str("user_id", identity.UserID).Msg("image deleted")
	return nil
}
