package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/auth"
	"github.com/verdant-inc/verdant-engine/pkg/models"
	"github.com/verdant-inc/verdant-engine/pkg/services"
)

// ZonesHandler handles zone-related HTTP requests.
type ZonesHandler struct {
	zoneService services.ZoneService
	logger      *zap.Logger
}

func NewZonesHandler(zoneService services.ZoneService, logger *zap.Logger) *ZonesHandler {
	return &ZonesHandler{zoneService: zoneService, logger: logger}
}

// RegisterRoutes registers the zone routes on the given mux.
func (h *ZonesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, ownerMiddleware OwnerMiddleware) {
	mux.HandleFunc("GET /api/zones", authMiddleware.RequireAuth(ownerMiddleware(h.List)))
	mux.HandleFunc("POST /api/zones", authMiddleware.RequireAuth(ownerMiddleware(h.Create)))
	mux.HandleFunc("GET /api/zones/{id}", authMiddleware.RequireAuth(ownerMiddleware(h.Get)))
	mux.HandleFunc("PUT /api/zones/{id}", authMiddleware.RequireAuth(ownerMiddleware(h.Update)))
	mux.HandleFunc("DELETE /api/zones/{id}", authMiddleware.RequireAuth(ownerMiddleware(h.Delete)))
	mux.HandleFunc("POST /api/zones/{id}/pump", authMiddleware.RequireAuth(ownerMiddleware(h.TogglePump)))
}

type zoneRequest struct {
	Name              string  `json:"name"`
	Description       string  `json:"description"`
	SoilType          string  `json:"soil_type"`
	MoistureThreshold float64 `json:"moisture_threshold"`
}

func (h *ZonesHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}

	var req zoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON body"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	zone, err := h.zoneService.Create(r.Context(), &models.Zone{
		OwnerID:           ownerID,
		Name:              req.Name,
		Description:       req.Description,
		SoilType:          req.SoilType,
		MoistureThreshold: req.MoistureThreshold,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to create zone")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, zone); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *ZonesHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	zone, err := h.zoneService.Get(r.Context(), ownerID, zoneID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to get zone")
		return
	}

	if err := WriteJSON(w, http.StatusOK, zone); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *ZonesHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}

	zones, err := h.zoneService.List(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list zones")
		return
	}
	if zones == nil {
		zones = []*models.Zone{}
	}

	if err := WriteJSON(w, http.StatusOK, zones); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *ZonesHandler) Update(w http.ResponseWriter, r *http.Request) {
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

	var req zoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON body"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	zone, err := h.zoneService.Update(r.Context(), &models.Zone{
		ID:                zoneID,
		OwnerID:           ownerID,
		Name:              req.Name,
		Description:       req.Description,
		SoilType:          req.SoilType,
		MoistureThreshold: req.MoistureThreshold,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to update zone")
		return
	}

	if err := WriteJSON(w, http.StatusOK, zone); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *ZonesHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

	if err := h.zoneService.Delete(r.Context(), ownerID, zoneID); err != nil {
		writeServiceError(w, h.logger, err, "Failed to delete zone")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ZonesHandler) TogglePump(w http.ResponseWriter, r *http.Request) {
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

	var req struct {
		On bool `json:"on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON body"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	zone, err := h.zoneService.TogglePump(r.Context(), ownerID, zoneID, req.On)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to toggle pump")
		return
	}

	if err := WriteJSON(w, http.StatusOK, zone); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
