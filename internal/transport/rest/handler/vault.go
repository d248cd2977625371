package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"astapp/internal/transport/rest/middleware"
)

// KeyStore stores a creator's Roblox API key. *promotion.RobloxClient
// implements it.
type KeyStore interface {
	SaveAPIKey(ctx context.Context, creatorID, apiKey string) error
}

// VaultHandler lets creators register the key used to promote applicants
type VaultHandler struct {
	keys   KeyStore
	logger *zap.Logger
}

// NewVaultHandler creates a new vault handler
func NewVaultHandler(keys KeyStore, logger *zap.Logger) *VaultHandler {
	return &VaultHandler{keys: keys, logger: logger.Named("http")}
}

// SaveKeyRequest is the body of POST /v1/vault/keys
type SaveKeyRequest struct {
	CreatorID string `json:"creator_id"`
	APIKey    string `json:"api_key"`
}

// SaveKey handles POST /v1/vault/keys. A creator may only store its own key.
func (h *VaultHandler) SaveKey(w http.ResponseWriter, r *http.Request) {
	creatorID := middleware.GetCreatorID(r.Context())
	if creatorID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SaveKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.APIKey = strings.TrimSpace(req.APIKey)
	if req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "api_key is required")
		return
	}
	if req.CreatorID != "" && req.CreatorID != creatorID {
		writeError(w, http.StatusForbidden, "cannot store a key for another creator")
		return
	}

	if err := h.keys.SaveAPIKey(r.Context(), creatorID, req.APIKey); err != nil {
		h.logger.Error("failed to store api key", zap.String("creator_id", creatorID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to store api key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored", "creator_id": creatorID})
}
