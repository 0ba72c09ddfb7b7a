package handler

import (
	"net/http"

	"github.com/elis/elis-backend/internal/auth"
	"github.com/elis/elis-backend/internal/user/service"
	"github.com/elis/elis-backend/pkg/httputil"
	"github.com/elis/elis-backend/pkg/logger"
)

// UserHandler handles the authenticated user's own account endpoints
type UserHandler struct {
	service *service.UserService
	logger  *logger.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(svc *service.UserService, log *logger.Logger) *UserHandler {
	return &UserHandler{
		service: svc,
		logger:  log,
	}
}

// Me returns the authenticated user's record
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	user, err := h.service.GetByID(r.Context(), identity.UserID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, user)
}

// UpdateMe applies a partial update to the authenticated user's profile
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req service.UpdateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	user, err := h.service.Update(r.Context(), identity.UserID, &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, user)
}

// DeleteMe removes the authenticated user's account and everything it owns
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), identity.UserID); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}
