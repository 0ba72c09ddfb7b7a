package extraction_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docdomain "github.com/elis/elis-backend/internal/document/domain"
	"github.com/elis/elis-backend/internal/extraction"
	imgdomain "github.com/elis/elis-backend/internal/image/domain"
	"github.com/elis/elis-backend/pkg/config"
	"github.com/elis/elis-backend/pkg/errors"
	"github.com/elis/elis-backend/pkg/logger"
	"github.com/elis/elis-backend/pkg/messaging"
)

type fakeDocs struct {
	docs             map[string]*docdomain.Document
	completedAttempt int
	completedPages   int
	failedReason     string
	failedAttempt    int
}

func newFakeDocs(docs ...*docdomain.Document) *fakeDocs {
	m := map[string]*docdomain.Document{}
	for _, d := range docs {
		m[d.ID] = d
	}
	return &fakeDocs{docs: m}
}

func (s *fakeDocs) GetByID(ctx context.Context, id string) (*docdomain.Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, errors.NotFound("document")
	}
	return doc, nil
}

func (s *fakeDocs) MarkCompleted(ctx context.Context, id string, pageCount, attempt int) (bool, error) {
	doc, ok := s.docs[id]
	if !ok || doc.Status != docdomain.StatusPending {
		return false, nil
	}
	doc.Status = docdomain.StatusCompleted
	doc.PageCount = pageCount
	s.completedPages = pageCount
	s.completedAttempt = attempt
	return true, nil
}

func (s *fakeDocs) MarkFailed(ctx context.Context, id, reason string, attempt int) (bool, error) {
	doc, ok := s.docs[id]
	if !ok || doc.Status != docdomain.StatusPending {
		return false, nil
	}
	doc.Status = docdomain.StatusFailed
	s.failedReason = reason
	s.failedAttempt = attempt
	return true, nil
}

type fakeImages struct {
	created map[string]*imgdomain.Image
}

func newFakeImages() *fakeImages {
	return &fakeImages{created: map[string]*imgdomain.Image{}}
}

// Create mirrors the conflict-ignoring insert: a duplicate (document,
// sequence) pair is silently dropped
func (s *fakeImages) Create(ctx context.Context, img *imgdomain.Image) error {
	key := fmt.Sprintf("%s/%d", img.DocumentID, img.Sequence)
	if _, ok := s.created[key]; ok {
		return nil
	}
	s.created[key] = img
	return nil
}

type fakePages struct{}

func (fakePages) DocumentPath(ownerID, documentID string) string {
	return "/data/" + ownerID + "/" + documentID + "/source.pdf"
}

func (fakePages) EnsurePagesDir(ownerID, documentID string) (string, error) {
	return "/data/" + ownerID + "/" + documentID + "/pages", nil
}

type fakeRenderer struct {
	pages []extraction.RenderedPage
	err   error
	calls int
}

func (r *fakeRenderer) Render(sourcePath, destDir string) ([]extraction.RenderedPage, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.pages, nil
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

func workerConfig() *config.Config {
	return &config.Config{
		Extraction: config.ExtractionConfig{
			MaxAttempts:  3,
			RetryBackoff: time.Millisecond,
			JobTimeout:   time.Minute,
		},
	}
}

func pendingDoc() *docdomain.Document {
	return &docdomain.Document{
		ID:      "doc-1",
		OwnerID: "owner-1",
		Status:  docdomain.StatusPending,
	}
}

func threePages() []extraction.RenderedPage {
	return []extraction.RenderedPage{
		{Sequence: 1, Path: "pages/page_001.jpg", SizeBytes: 100},
		{Sequence: 2, Path: "pages/page_002.jpg", SizeBytes: 200},
		{Sequence: 3, Path: "pages/page_003.jpg", SizeBytes: 300},
	}
}

func TestWorker_HandleSuccess(t *testing.T) {
	docs := newFakeDocs(pendingDoc())
	images := newFakeImages()
	queue := &fakeQueue{}
	renderer := &fakeRenderer{pages: threePages()}
	worker := extraction.NewWorker(docs, images, fakePages{}, renderer, queue, workerConfig(), logger.New("test", "test"))

	err := worker.Handle(context.Background(), &messaging.ExtractionJob{DocumentID: "doc-1", Attempt: 1})
	require.NoError(t, err)

	assert.Equal(t, docdomain.StatusCompleted, docs.docs["doc-1"].Status)
	assert.Equal(t, 3, docs.completedPages)
	assert.Equal(t, 1, docs.completedAttempt)
	assert.Len(t, images.created, 3)
	assert.Empty(t, queue.published)
}

func TestWorker_HandleRedelivery(t *testing.T) {
	docs := newFakeDocs(pendingDoc())
	images := newFakeImages()
	renderer := &fakeRenderer{pages: threePages()}
	worker := extraction.NewWorker(docs, images, fakePages{}, renderer, &fakeQueue{}, workerConfig(), logger.New("test", "test"))

	job := &messaging.ExtractionJob{DocumentID: "doc-1", Attempt: 1}
	require.NoError(t, worker.Handle(context.Background(), job))

	// A second delivery of the same job is a no-op: the document is already
	// completed and no duplicate image rows appear
	require.NoError(t, worker.Handle(context.Background(), job))

	assert.Equal(t, docdomain.StatusCompleted, docs.docs["doc-1"].Status)
	assert.Len(t, images.created, 3)
	assert.Equal(t, 1, renderer.calls)
}

func TestWorker_HandleMissingDocument(t *testing.T) {
	worker := extraction.NewWorker(newFakeDocs(), newFakeImages(), fakePages{}, &fakeRenderer{}, &fakeQueue{}, workerConfig(), logger.New("test", "test"))

	// Document deleted before the job ran: drop the job, don't error
	err := worker.Handle(context.Background(), &messaging.ExtractionJob{DocumentID: "gone", Attempt: 1})
	require.NoError(t, err)
}

func TestWorker_HandleTerminalFailure(t *testing.T) {
	docs := newFakeDocs(pendingDoc())
	renderer := &fakeRenderer{err: fmt.Errorf("%w: bad xref", extraction.ErrUnreadableDocument)}
	queue := &fakeQueue{}
	worker := extraction.NewWorker(docs, newFakeImages(), fakePages{}, renderer, queue, workerConfig(), logger.New("test", "test"))

	err := worker.Handle(context.Background(), &messaging.ExtractionJob{DocumentID: "doc-1", Attempt: 1})
	require.NoError(t, err)

	// Unreadable documents fail immediately, no retries
	assert.Equal(t, docdomain.StatusFailed, docs.docs["doc-1"].Status)
	assert.Contains(t, docs.failedReason, "bad xref")
	assert.Equal(t, 1, docs.failedAttempt)
	assert.Empty(t, queue.published)
}

func TestWorker_HandleRetryableFailure(t *testing.T) {
	docs := newFakeDocs(pendingDoc())
	renderer := &fakeRenderer{err: fmt.Errorf("disk briefly unavailable")}
	queue := &fakeQueue{}
	worker := extraction.NewWorker(docs, newFakeImages(), fakePages{}, renderer, queue, workerConfig(), logger.New("test", "test"))

	err := worker.Handle(context.Background(), &messaging.ExtractionJob{DocumentID: "doc-1", Attempt: 1})
	require.NoError(t, err)

	// Still pending; a follow-up job with the next attempt is enqueued
	assert.Equal(t, docdomain.StatusPending, docs.docs["doc-1"].Status)
	require.Len(t, queue.published, 1)
	assert.Equal(t, 2, queue.published[0].Attempt)
}

func TestWorker_HandleRetriesExhausted(t *testing.T) {
	docs := newFakeDocs(pendingDoc())
	renderer := &fakeRenderer{err: fmt.Errorf("disk briefly unavailable")}
	queue := &fakeQueue{}
	worker := extraction.NewWorker(docs, newFakeImages(), fakePages{}, renderer, queue, workerConfig(), logger.New("test", "test"))

	err := worker.Handle(context.Background(), &messaging.ExtractionJob{DocumentID: "doc-1", Attempt: 3})
	require.NoError(t, err)

	assert.Equal(t, docdomain.StatusFailed, docs.docs["doc-1"].Status)
	assert.Contains(t, docs.failedReason, "after 3 attempts")
	assert.Empty(t, queue.published)
}

func TestWorker_HandleRepublishFailure(t *testing.T) {
	docs := newFakeDocs(pendingDoc())
	renderer := &fakeRenderer{err: fmt.Errorf("disk briefly unavailable")}
	queue := &fakeQueue{publishErr: fmt.Errorf("broker unavailable")}
	worker := extraction.NewWorker(docs, newFakeImages(), fakePages{}, renderer, queue, workerConfig(), logger.New("test", "test"))

	// Re-enqueue failed: surface the error so the delivery is redelivered
	err := worker.Handle(context.Background(), &messaging.ExtractionJob{DocumentID: "doc-1", Attempt: 1})
	require.Error(t, err)
	assert.Equal(t, docdomain.StatusPending, docs.docs["doc-1"].Status)
}
