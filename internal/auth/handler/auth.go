package handler

import (
	"net/http"

	"github.com/elis/elis-backend/internal/auth"
	"github.com/elis/elis-backend/internal/auth/service"
	"github.com/elis/elis-backend/pkg/httputil"
	"github.com/elis/elis-backend/pkg/logger"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	service *service.AuthService
	logger  *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(svc *service.AuthService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		service: svc,
		logger:  log,
	}
}

// Register handles user registration
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	response, err := h.service.Register(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, response)
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	response, err := h.service.Login(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, response)
}

// Me returns the authenticated identity
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":  identity.UserID,
		"username": identity.Username,
		"is_admin": identity.IsAdmin,
	})
}
