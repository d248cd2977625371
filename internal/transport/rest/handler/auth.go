package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"astapp/internal/model"
	"astapp/internal/service"
)

// AuthHandler serves creator login
type AuthHandler struct {
	authSvc *service.AuthService
	logger  *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authSvc *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{authSvc: authSvc, logger: logger.Named("auth")}
}

// Login handles POST /v1/auth/login. The returned token authorizes the
// creator routes and the live feed.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.authSvc.Login(req.Username, req.Password)
	switch {
	case err == nil:
		h.logger.Info("creator logged in", zap.String("creator_id", resp.CreatorID))
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, service.ErrMissingCredentials):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrCreatorLoginDisabled):
		h.logger.Error("creator login attempted without configured credentials")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		h.logger.Warn("creator login rejected", zap.String("username", req.Username))
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		h.logger.Error("creator login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
