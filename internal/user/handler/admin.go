package handler

import (
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/elis/elis-backend/internal/user/service"
	"github.com/elis/elis-backend/pkg/httputil"
	"github.com/elis/elis-backend/pkg/logger"
)

// AdminHandler handles administrator user-management endpoints
type AdminHandler struct {
	service *service.UserService
	logger  *logger.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(svc *service.UserService, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		service: svc,
		logger:  log,
	}
}

// List lists users with pagination and optional search
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	search := r.URL.Query().Get("search")

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	users, total, err := h.service.List(r.Context(), page, perPage, search)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, users, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(perPage))),
	})
}

// Get returns a single user by id
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, user)
}

// UpdateQuota updates a user's storage limit
func (h *AdminHandler) UpdateQuota(w http.ResponseWriter, r *http.Request) {
	// Pointer so that an explicit zero limit survives the required check
	var req struct {
		StorageLimitBytes *int64 `json:"storage_limit_bytes" validate:"required,min=0"`
	}

	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	user, err := h.service.SetQuota(r.Context(), chi.URLParam(r, "id"), *req.StorageLimitBytes)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, user)
}

// UpdateStatus activates or deactivates an account
func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsActive *bool `json:"is_active" validate:"required"`
	}

	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	user, err := h.service.SetActive(r.Context(), chi.URLParam(r, "id"), *req.IsActive)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, user)
}
