package extraction

import (
	"context"
	"fmt"
	"time"

	docdomain "github.com/elis/elis-backend/internal/document/domain"
	imgdomain "github.com/elis/elis-backend/internal/image/domain"
	"github.com/elis/elis-backend/pkg/config"
	"github.com/elis/elis-backend/pkg/errors"
	"github.com/elis/elis-backend/pkg/logger"
	"github.com/elis/elis-backend/pkg/messaging"
)

// DocumentStore is the document repository surface the worker needs
type DocumentStore interface {
	GetByID(ctx context.Context, id string) (*docdomain.Document, error)
	MarkCompleted(ctx context.Context, id string, pageCount, attempt int) (bool, error)
	MarkFailed(ctx context.Context, id, reason string, attempt int) (bool, error)
}

// ImageStore records extracted images. Create must tolerate duplicate
// (document, sequence) pairs so a redelivered job can re-apply its result.
type ImageStore interface {
	Create(ctx context.Context, img *imgdomain.Image) error
}

// PageStore resolves file locations for a document and its page images
type PageStore interface {
	DocumentPath(ownerID, documentID string) string
	EnsurePagesDir(ownerID, documentID string) (string, error)
}

// PageRenderer renders a PDF into page image files
type PageRenderer interface {
	Render(sourcePath, destDir string) ([]RenderedPage, error)
}

// JobQueue re-enqueues jobs for retry
type JobQueue interface {
	Publish(ctx context.Context, job *messaging.ExtractionJob) error
}

// Worker consumes extraction jobs and settles documents into a terminal
// status. Handle is safe under at-least-once delivery: results are applied
// with idempotent inserts and compare-and-set status transitions.
type Worker struct {
	docs     DocumentStore
	images   ImageStore
	files    PageStore
	renderer PageRenderer
	queue    JobQueue
	config   *config.Config
	logger   *logger.Logger
}

// NewWorker creates an extraction worker
func NewWorker(
	docs DocumentStore,
	images ImageStore,
	files PageStore,
	renderer PageRenderer,
	queue JobQueue,
	cfg *config.Config,
	log *logger.Logger,
) *Worker {
	return &Worker{
		docs:     docs,
		images:   images,
		files:    files,
		renderer: renderer,
		queue:    queue,
		config:   cfg,
		logger:   log,
	}
}

// Handle processes one extraction job. A nil return acknowledges the message;
// a non-nil return signals an infrastructure failure and leaves redelivery to
// the queue.
func (w *Worker) Handle(ctx context.Context, job *messaging.ExtractionJob) error {
	ctx, cancel := context.WithTimeout(ctx, w.config.Extraction.JobTimeout)
	defer cancel()

	if job.Attempt < 1 {
		job.Attempt = 1
	}

	log := w.logger.WithDocumentID(job.DocumentID)

	doc, err := w.docs.GetByID(ctx, job.DocumentID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			// Document deleted between enqueue and processing
			log.Warn().Msg("document gone, dropping extraction job")
			return nil
		}
		return fmt.Errorf("failed to load document: %w", err)
	}

	if doc.Status != docdomain.StatusPending {
		log.Info().Str("status", string(doc.Status)).Msg("document already settled, dropping job")
		return nil
	}

	pagesDir, err := w.files.EnsurePagesDir(doc.OwnerID, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to prepare pages directory: %w", err)
	}

	pages, err := w.renderer.Render(w.files.DocumentPath(doc.OwnerID, doc.ID), pagesDir)
	if err != nil {
		if IsTerminal(err) {
			return w.fail(ctx, doc, job.Attempt, err.Error())
		}
		return w.retry(ctx, doc, job, err)
	}

	for _, page := range pages {
		img := &imgdomain.Image{
			DocumentID:  doc.ID,
			OwnerID:     doc.OwnerID,
			StoragePath: page.Path,
			Sequence:    page.Sequence,
			SizeBytes:   page.SizeBytes,
		}
		if err := w.images.Create(ctx, img); err != nil {
			return fmt.Errorf("failed to record page %d: %w", page.Sequence, err)
		}
	}

	transitioned, err := w.docs.MarkCompleted(ctx, doc.ID, len(pages), job.Attempt)
	if err != nil {
		return fmt.Errorf("failed to mark document completed: %w", err)
	}
	if !transitioned {
		log.Info().Msg("document settled by a concurrent delivery")
		return nil
	}

	log.Info().Int("page_count", len(pages)).Int("attempt", job.Attempt).Msg("extraction completed")
	return nil
}

// retry re-enqueues the job with an incremented attempt, backing off
// exponentially, or fails the document once attempts are exhausted
func (w *Worker) retry(ctx context.Context, doc *docdomain.Document, job *messaging.ExtractionJob, cause error) error {
	log := w.logger.WithDocumentID(doc.ID)

	if job.Attempt >= w.config.Extraction.MaxAttempts {
		reason := fmt.Sprintf("extraction failed after %d attempts: %v", job.Attempt, cause)
		return w.fail(ctx, doc, job.Attempt, reason)
	}

	backoff := w.config.Extraction.RetryBackoff << (job.Attempt - 1)
	log.Warn().
		Err(cause).
		Int("attempt", job.Attempt).
		Dur("backoff", backoff).
		Msg("extraction failed, scheduling retry")

	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	next := &messaging.ExtractionJob{DocumentID: job.DocumentID, Attempt: job.Attempt + 1}
	if err := w.queue.Publish(ctx, next); err != nil {
		return fmt.Errorf("failed to re-enqueue extraction job: %w", err)
	}

	return nil
}

func (w *Worker) fail(ctx context.Context, doc *docdomain.Document, attempt int, reason string) error {
	transitioned, err := w.docs.MarkFailed(ctx, doc.ID, reason, attempt)
	if err != nil {
		return fmt.Errorf("failed to mark document failed: %w", err)
	}
	if transitioned {
		w.logger.WithDocumentID(doc.ID).Error().Int("attempt", attempt).Str("reason", reason).Msg("extraction failed permanently")
	}
	return nil
}
