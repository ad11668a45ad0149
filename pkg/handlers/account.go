package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/apperrors"
	"github.com/verdant-inc/verdant-engine/pkg/auth"
	"github.com/verdant-inc/verdant-engine/pkg/models"
	"github.com/verdant-inc/verdant-engine/pkg/repositories"
)

// AccountHandler serves the owner's profile. The row is mirrored from the
// auth provider's claims on first access; only the display name is editable.
type AccountHandler struct {
	accounts repositories.AccountRepository
	logger   *zap.Logger
}

func NewAccountHandler(accounts repositories.AccountRepository, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

// RegisterRoutes registers the account routes on the given mux.
func (h *AccountHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, ownerMiddleware OwnerMiddleware) {
	mux.HandleFunc("GET /api/account", authMiddleware.RequireAuth(ownerMiddleware(h.Get)))
	mux.HandleFunc("PUT /api/account", authMiddleware.RequireAuth(ownerMiddleware(h.UpdateDisplayName)))
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}

	account, err := h.accounts.Get(r.Context(), ownerID)
	if errors.Is(err, apperrors.ErrNotFound) {
		// First access mirrors the row from the token claims.
		account = &models.Account{ID: ownerID}
		if claims, ok := auth.GetClaims(r.Context()); ok {
			account.Email = claims.Email
		}
		err = h.accounts.Upsert(r.Context(), account)
	}
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to get account")
		return
	}

	if err := WriteJSON(w, http.StatusOK, account); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *AccountHandler) UpdateDisplayName(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}

	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON body"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	if err := h.accounts.UpdateDisplayName(r.Context(), ownerID, req.DisplayName); err != nil {
		writeServiceError(w, h.logger, err, "Failed to update account")
		return
	}

	account, err := h.accounts.Get(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to get account")
		return
	}

	if err := WriteJSON(w, http.StatusOK, account); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
