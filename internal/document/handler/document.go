package handler

import (
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/elis/elis-backend/internal/auth"
	"github.com/elis/elis-backend/internal/document/service"
	"github.com/elis/elis-backend/pkg/errors"
	"github.com/elis/elis-backend/pkg/httputil"
	"github.com/elis/elis-backend/pkg/logger"
)

// DocumentHandler handles document endpoints
type DocumentHandler struct {
	service *service.DocumentService
	logger  *logger.Logger
	maxSize int64
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(svc *service.DocumentService, log *logger.Logger, maxUploadBytes int64) *DocumentHandler {
	return &DocumentHandler{
		service: svc,
		logger:  log,
		maxSize: maxUploadBytes,
	}
}

// Upload accepts a multipart PDF upload and responds 202 with the pending
// document; extraction happens asynchronously
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httputil.Error(w, errors.BadRequest("invalid or oversized multipart body"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.Error(w, errors.Validation(map[string]string{
			"file": "file field is required",
		}))
		return
	}
	defer file.Close()

	doc, err := h.service.Ingest(r.Context(), identity, header.Filename, header.Size, file)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Accepted(w, doc)
}

// Get returns a document's record
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	doc, err := h.service.Get(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, doc)
}

// Status returns the processing state of a document for polling
func (h *DocumentHandler) Status(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	status, err := h.service.Status(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, status)
}

// List lists the caller's documents
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	docs, total, err := h.service.ListByOwner(r.Context(), identity, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, docs, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(perPage))),
	})
}

// Delete removes a document and everything extracted from it
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), identity, chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}
