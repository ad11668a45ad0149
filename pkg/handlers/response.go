// Package handlers contains the HTTP layer of verdant-engine.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/apperrors"
)

// OwnerMiddleware wraps a handler with owner-scoped database context.
type OwnerMiddleware func(http.HandlerFunc) http.HandlerFunc

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeServiceError maps a service-layer error onto the HTTP taxonomy.
// Not-found and not-owned are deliberately the same 404 so responses never
// reveal whether a row exists under another owner.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) {
	var status int
	var code string
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput), errors.Is(err, apperrors.ErrZoneRequired):
		status, code = http.StatusBadRequest, "bad_request"
	case errors.Is(err, apperrors.ErrInvalidAPIKey):
		status, code = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperrors.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrConflict), errors.Is(err, apperrors.ErrTerminalCommand):
		status, code = http.StatusConflict, "conflict"
	default:
		logger.Error(fallback, zap.Error(err))
		if werr := ErrorResponse(w, http.StatusInternalServerError, "internal_error", fallback); werr != nil {
			logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	if werr := ErrorResponse(w, status, code, err.Error()); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
}
