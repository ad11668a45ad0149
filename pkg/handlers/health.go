package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/database"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	db      *database.DB
	version string
	logger  *zap.Logger
}

func NewHealthHandler(db *database.DB, version string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, version: version, logger: logger}
}

// RegisterRoutes registers the health routes on the given mux. These are
// unauthenticated.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health reports readiness including database connectivity.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Error("Health check database ping failed", zap.Error(err))
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	if err := WriteJSON(w, code, map[string]string{
		"status":  status,
		"version": h.version,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Ping is a bare liveness probe with no dependencies.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
