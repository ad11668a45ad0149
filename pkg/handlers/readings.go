package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/auth"
	"github.com/verdant-inc/verdant-engine/pkg/models"
	"github.com/verdant-inc/verdant-engine/pkg/repositories"
)

// ReadingsHandler serves sensor readings to dashboard charts.
type ReadingsHandler struct {
	readings repositories.ReadingRepository
	logger   *zap.Logger
}

func NewReadingsHandler(readings repositories.ReadingRepository, logger *zap.Logger) *ReadingsHandler {
	return &ReadingsHandler{readings: readings, logger: logger}
}

// RegisterRoutes registers the reading routes on the given mux.
func (h *ReadingsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, ownerMiddleware OwnerMiddleware) {
	mux.HandleFunc("GET /api/readings", authMiddleware.RequireAuth(ownerMiddleware(h.List)))
	mux.HandleFunc("GET /api/zones/{id}/readings/latest", authMiddleware.RequireAuth(ownerMiddleware(h.LatestForZone)))
}

func (h *ReadingsHandler) List(w http.ResponseWriter, r *http.Request) {
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
	deviceID, err := queryUUID(r, "device_id")
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid device filter")
		return
	}
	since, err := queryTime(r, "since")
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid since filter")
		return
	}
	until, err := queryTime(r, "until")
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid until filter")
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid limit")
		return
	}

	readings, err := h.readings.List(r.Context(), ownerID, models.ReadingFilters{
		ZoneID:   zoneID,
		DeviceID: deviceID,
		Since:    since,
		Until:    until,
		Limit:    limit,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list readings")
		return
	}
	if readings == nil {
		readings = []*models.SensorReading{}
	}

	if err := WriteJSON(w, http.StatusOK, readings); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *ReadingsHandler) LatestForZone(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}
	zoneID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid zone id")
		return
	}

	reading, err := h.readings.LatestForZone(r.Context(), ownerID, zoneID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to get latest reading")
		return
	}

	if err := WriteJSON(w, http.StatusOK, reading); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
