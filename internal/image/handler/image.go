package handler

import (
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/elis/elis-backend/internal/auth"
	"github.com/elis/elis-backend/internal/image/service"
	"github.com/elis/elis-backend/pkg/httputil"
	"github.com/elis/elis-backend/pkg/logger"
)

// ImageHandler handles extracted image endpoints
type ImageHandler struct {
	service *service.ImageService
	logger  *logger.Logger
}

// NewImageHandler creates a new image handler
func NewImageHandler(svc *service.ImageService, log *logger.Logger) *ImageHandler {
	return &ImageHandler{
		service: svc,
		logger:  log,
	}
}

// ListByDocument lists a document's images in page order
func (h *ImageHandler) ListByDocument(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	images, err := h.service.ListByDocument(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, images)
}

// List lists all of the caller's images across documents
func (h *ImageHandler) List(w http.ResponseWriter, r *http.Request) {
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

	images, total, err := h.service.ListByOwner(r.Context(), identity, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, images, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(perPage))),
	})
}

// Get returns a single image record
func (h *ImageHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	img, err := h.service.Get(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, img)
}

// Content serves the image bytes
func (h *ImageHandler) Content(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	img, rc, err := h.service.Content(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeContent(w, r, img.ID+".jpg", img.CreatedAt, rc)
}

// Delete removes a single image
func (h *ImageHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
