package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/auth"
	"github.com/verdant-inc/verdant-engine/pkg/models"
	"github.com/verdant-inc/verdant-engine/pkg/services"
)

// APIKeysHandler manages device API keys from the dashboard. The plaintext
// key appears only in the generate and regenerate responses.
type APIKeysHandler struct {
	keyService services.APIKeyService
	logger     *zap.Logger
}

func NewAPIKeysHandler(keyService services.APIKeyService, logger *zap.Logger) *APIKeysHandler {
	return &APIKeysHandler{keyService: keyService, logger: logger}
}

// RegisterRoutes registers the API key routes on the given mux.
func (h *APIKeysHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, ownerMiddleware OwnerMiddleware) {
	mux.HandleFunc("GET /api/keys", authMiddleware.RequireAuth(ownerMiddleware(h.List)))
	mux.HandleFunc("POST /api/keys", authMiddleware.RequireAuth(ownerMiddleware(h.Generate)))
	mux.HandleFunc("DELETE /api/keys/{id}", authMiddleware.RequireAuth(ownerMiddleware(h.Revoke)))
	mux.HandleFunc("POST /api/keys/{id}/regenerate", authMiddleware.RequireAuth(ownerMiddleware(h.Regenerate)))
}

type generateKeyRequest struct {
	DeviceID  uuid.UUID  `json:"device_id"`
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *APIKeysHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}

	var req generateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON body"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	key, err := h.keyService.Generate(r.Context(), ownerID, req.DeviceID, req.Name, req.ExpiresAt)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to generate API key")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, key); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *APIKeysHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}

	keys, err := h.keyService.List(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list API keys")
		return
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}

	if err := WriteJSON(w, http.StatusOK, keys); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *APIKeysHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}
	keyID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid key id")
		return
	}

	if err := h.keyService.Revoke(r.Context(), ownerID, keyID); err != nil {
		writeServiceError(w, h.logger, err, "Failed to revoke API key")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *APIKeysHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}
	keyID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid key id")
		return
	}

	key, err := h.keyService.Regenerate(r.Context(), ownerID, keyID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to regenerate API key")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, key); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
