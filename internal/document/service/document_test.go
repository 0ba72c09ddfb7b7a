package service_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elis/elis-backend/internal/auth"
	"github.com/elis/elis-backend/internal/document/domain"
	"github.com/elis/elis-backend/internal/document/service"
	"github.com/elis/elis-backend/pkg/config"
	"github.com/elis/elis-backend/pkg/errors"
	"github.com/elis/elis-backend/pkg/logger"
	"github.com/elis/elis-backend/pkg/messaging"
)

type fakeDocStore struct {
	docs       map[string]*domain.Document
	failedID   string
	failReason string
	createErr  error
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{docs: map[string]*domain.Document{}}
}

func (s *fakeDocStore) Create(ctx context.Context, doc *domain.Document) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.docs[doc.ID] = doc
	return nil
}

func (s *fakeDocStore) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, errors.NotFound("document")
	}
	return doc, nil
}

func (s *fakeDocStore) ListByOwner(ctx context.Context, ownerID string, page, perPage int) ([]*domain.Document, int64, error) {
	var out []*domain.Document
	for _, d := range s.docs {
		if d.OwnerID == ownerID {
			out = append(out, d)
		}
	}
	return out, int64(len(out)), nil
}

func (s *fakeDocStore) MarkFailed(ctx context.Context, id, reason string, attempt int) (bool, error) {
	doc, ok := s.docs[id]
	if !ok || doc.Status != domain.StatusPending {
		return false, nil
	}
	doc.Status = domain.StatusFailed
	s.failedID = id
	s.failReason = reason
	return true, nil
}

func (s *fakeDocStore) Delete(ctx context.Context, id string) error {
	if _, ok := s.docs[id]; !ok {
		return errors.NotFound("document")
	}
	delete(s.docs, id)
	return nil
}

type fakeQuota struct {
	used       int64
	limit      int64
	released   int64
	releaseErr error
}

func (q *fakeQuota) ReserveStorage(ctx context.Context, id string, sizeBytes int64) error {
	if q.used+sizeBytes > q.limit {
		return errors.QuotaExceeded(sizeBytes, q.limit)
	}
	q.used += sizeBytes
	return nil
}

func (q *fakeQuota) ReleaseStorage(ctx context.Context, id string, sizeBytes int64) error {
	if q.releaseErr != nil {
		return q.releaseErr
	}
	q.used -= sizeBytes
	q.released += sizeBytes
	return nil
}

type fakeFiles struct {
	saved     map[string]int64
	removed   []string
	saveErr   error
	removeErr error
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{saved: map[string]int64{}}
}

func (f *fakeFiles) SaveDocument(ownerID, documentID string, r io.Reader) (string, int64, error) {
	if f.saveErr != nil {
		return "", 0, f.saveErr
	}
	written, err := io.Copy(io.Discard, r)
	if err != nil {
		return "", 0, err
	}
	path := "/data/" + ownerID + "/" + documentID + "/source.pdf"
	f.saved[documentID] = written
	return path, written, nil
}

func (f *fakeFiles) RemoveDocument(ownerID, documentID string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, documentID)
	return nil
}

type fakeQueue struct {
	published  []*messaging.ExtractionJob
	publishErr error
}

func (q *fakeQueue) Publish(ctx context.Context, job *messaging.ExtractionJob) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, job)
	return nil
}

type fixture struct {
	svc   *service.DocumentService
	docs  *fakeDocStore
	quota *fakeQuota
	files *fakeFiles
	queue *fakeQueue
}

func newFixture() *fixture {
	docs := newFakeDocStore()
	quota := &fakeQuota{limit: 1 << 20}
	files := newFakeFiles()
	queue := &fakeQueue{}

	cfg := &config.Config{
		Storage: config.StorageConfig{MaxUploadBytes: 1 << 20},
	}

	return &fixture{
		svc:   service.NewDocumentService(docs, quota, files, queue, cfg, logger.New("test", "test")),
		docs:  docs,
		quota: quota,
		files: files,
		queue: queue,
	}
}

func identity() *auth.Identity {
	return &auth.Identity{UserID: "owner-1", Username: "alice"}
}

func TestDocumentService_Ingest(t *testing.T) {
	f := newFixture()
	body := strings.NewReader("%PDF-1.4 fake content")

	doc, err := f.svc.Ingest(context.Background(), identity(), "report.pdf", int64(body.Len()), body)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, doc.Status)
	assert.Equal(t, "owner-1", doc.OwnerID)
	assert.Equal(t, "report.pdf", doc.OriginalFilename)

	// One job enqueued with the first attempt
	require.Len(t, f.queue.published, 1)
	assert.Equal(t, doc.ID, f.queue.published[0].DocumentID)
	assert.Equal(t, 1, f.queue.published[0].Attempt)

	// Quota reserved for the upload
	assert.Equal(t, doc.SizeBytes, f.quota.used)
}

func TestDocumentService_IngestRejectsNonPDF(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Ingest(context.Background(), identity(), "notes.txt", 10, strings.NewReader("plain text"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Empty(t, f.queue.published)
	assert.Zero(t, f.quota.used)
}

func TestDocumentService_IngestRejectsOversized(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Ingest(context.Background(), identity(), "big.pdf", (1<<20)+1, strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Zero(t, f.quota.used)
}

func TestDocumentService_IngestQuotaExceeded(t *testing.T) {
	f := newFixture()
	f.quota.limit = 10

	_, err := f.svc.Ingest(context.Background(), identity(), "report.pdf", 100, strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrQuotaExceeded))
	assert.Empty(t, f.queue.published)
	assert.Empty(t, f.docs.docs)
}

func TestDocumentService_IngestPublishFailure(t *testing.T) {
	f := newFixture()
	f.queue.publishErr = errors.Internal("broker unavailable")
	body := strings.NewReader("%PDF-1.4 fake content")

	// The upload itself succeeds; the document must land in failed rather
	// than being stuck pending with no job behind it.
	doc, err := f.svc.Ingest(context.Background(), identity(), "report.pdf", int64(body.Len()), body)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, doc.Status)
	assert.Equal(t, doc.ID, f.docs.failedID)
	assert.Equal(t, domain.StatusFailed, f.docs.docs[doc.ID].Status)
}

func TestDocumentService_IngestSaveFailure(t *testing.T) {
	f := newFixture()
	f.files.saveErr = io.ErrUnexpectedEOF

	_, err := f.svc.Ingest(context.Background(), identity(), "report.pdf", 10, strings.NewReader("0123456789"))
	require.Error(t, err)
	// Reservation is rolled back when the write fails
	assert.Zero(t, f.quota.used)

	t.Run("release failure still surfaces the write error", func(t *testing.T) {
		f := newFixture()
		f.files.saveErr = io.ErrUnexpectedEOF
		f.quota.releaseErr = errors.Internal("quota store unavailable")

		_, err := f.svc.Ingest(context.Background(), identity(), "report.pdf", 10, strings.NewReader("0123456789"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInternal))
	})
}

func TestDocumentService_IngestCreateFailure(t *testing.T) {
	f := newFixture()
	f.docs.createErr = errors.Internal("database unavailable")
	body := strings.NewReader("%PDF-1.4 fake content")

	_, err := f.svc.Ingest(context.Background(), identity(), "report.pdf", int64(body.Len()), body)
	require.Error(t, err)

	// Stored file and reservation are both rolled back
	assert.Len(t, f.files.removed, 1)
	assert.Zero(t, f.quota.used)

	t.Run("cleanup failures still surface the create error", func(t *testing.T) {
		f := newFixture()
		f.docs.createErr = errors.Internal("database unavailable")
		f.files.removeErr = io.ErrUnexpectedEOF
		f.quota.releaseErr = errors.Internal("quota store unavailable")
		body := strings.NewReader("%PDF-1.4 fake content")

		_, err := f.svc.Ingest(context.Background(), identity(), "report.pdf", int64(body.Len()), body)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInternal))
		assert.Empty(t, f.docs.docs)
	})
}

func TestDocumentService_GetOwnership(t *testing.T) {
	f := newFixture()
	body := strings.NewReader("%PDF-1.4 fake content")
	doc, err := f.svc.Ingest(context.Background(), identity(), "report.pdf", int64(body.Len()), body)
	require.NoError(t, err)

	t.Run("owner sees the document", func(t *testing.T) {
		got, err := f.svc.Get(context.Background(), identity(), doc.ID)
		require.NoError(t, err)
		assert.Equal(t, doc.ID, got.ID)
	})

	t.Run("other user is rejected", func(t *testing.T) {
		other := &auth.Identity{UserID: "owner-2", Username: "bob"}
		_, err := f.svc.Get(context.Background(), other, doc.ID)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrForbidden))
	})

	t.Run("unknown document", func(t *testing.T) {
		_, err := f.svc.Get(context.Background(), identity(), "missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})
}

func TestDocumentService_Delete(t *testing.T) {
	f := newFixture()
	body := strings.NewReader("%PDF-1.4 fake content")
	doc, err := f.svc.Ingest(context.Background(), identity(), "report.pdf", int64(body.Len()), body)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(context.Background(), identity(), doc.ID))

	assert.Empty(t, f.docs.docs)
	assert.Contains(t, f.files.removed, doc.ID)
	assert.Equal(t, doc.SizeBytes, f.quota.released)
	assert.Zero(t, f.quota.used)
}
