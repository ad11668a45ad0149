package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/auth"
	"github.com/verdant-inc/verdant-engine/pkg/models"
	"github.com/verdant-inc/verdant-engine/pkg/services"
)

// AlertsHandler serves derived alerts to the dashboard.
type AlertsHandler struct {
	alertService services.AlertService
	logger       *zap.Logger
}

func NewAlertsHandler(alertService services.AlertService, logger *zap.Logger) *AlertsHandler {
	return &AlertsHandler{alertService: alertService, logger: logger}
}

// RegisterRoutes registers the alert routes on the given mux.
func (h *AlertsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, ownerMiddleware OwnerMiddleware) {
	mux.HandleFunc("GET /api/alerts", authMiddleware.RequireAuth(ownerMiddleware(h.List)))
	mux.HandleFunc("GET /api/alerts/unread-count", authMiddleware.RequireAuth(ownerMiddleware(h.UnreadCount)))
	mux.HandleFunc("POST /api/alerts/read-all", authMiddleware.RequireAuth(ownerMiddleware(h.MarkAllRead)))
	mux.HandleFunc("POST /api/alerts/{id}/read", authMiddleware.RequireAuth(ownerMiddleware(h.MarkRead)))
}

func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}

	zoneID, err := queryUUID(r, "zone_id")
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid zone filter")
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid limit")
		return
	}

	alerts, err := h.alertService.List(r.Context(), ownerID, models.AlertFilters{
		ZoneID:     zoneID,
		UnreadOnly: r.URL.Query().Get("unread") == "true",
		Limit:      limit,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}

	if err := WriteJSON(w, http.StatusOK, alerts); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *AlertsHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}

	count, err := h.alertService.CountUnread(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to count alerts")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]int{"unread": count}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *AlertsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}
	alertID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid alert id")
		return
	}

	if err := h.alertService.MarkRead(r.Context(), ownerID, alertID); err != nil {
		writeServiceError(w, h.logger, err, "Failed to mark alert read")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AlertsHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}

	n, err := h.alertService.MarkAllRead(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to mark alerts read")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]int64{"updated": n}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
