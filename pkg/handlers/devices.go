package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/auth"
	"github.com/verdant-inc/verdant-engine/pkg/models"
	"github.com/verdant-inc/verdant-engine/pkg/services"
)

// DevicesHandler handles dashboard device management.
type DevicesHandler struct {
	deviceService  services.DeviceService
	commandService services.CommandService
	logger         *zap.Logger
}

func NewDevicesHandler(deviceService services.DeviceService, commandService services.CommandService, logger *zap.Logger) *DevicesHandler {
	return &DevicesHandler{deviceService: deviceService, commandService: commandService, logger: logger}
}

// RegisterRoutes registers the device routes on the given mux.
func (h *DevicesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, ownerMiddleware OwnerMiddleware) {
	mux.HandleFunc("GET /api/devices", authMiddleware.RequireAuth(ownerMiddleware(h.List)))
	mux.HandleFunc("POST /api/devices", authMiddleware.RequireAuth(ownerMiddleware(h.Register)))
	mux.HandleFunc("GET /api/devices/{id}", authMiddleware.RequireAuth(ownerMiddleware(h.Get)))
	mux.HandleFunc("DELETE /api/devices/{id}", authMiddleware.RequireAuth(ownerMiddleware(h.Delete)))
	mux.HandleFunc("PUT /api/devices/{id}/zone", authMiddleware.RequireAuth(ownerMiddleware(h.AssignZone)))
	mux.HandleFunc("GET /api/devices/{id}/commands", authMiddleware.RequireAuth(ownerMiddleware(h.ListCommands)))
	mux.HandleFunc("POST /api/devices/{id}/commands", authMiddleware.RequireAuth(ownerMiddleware(h.EnqueueCommand)))
}

type registerDeviceRequest struct {
	DeviceID string `json:"device_id"`
	models.DeviceAttrs
}

func (h *DevicesHandler) Register(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}

	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON body"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	device, err := h.deviceService.RegisterOrUpdate(r.Context(), ownerID, req.DeviceID, req.DeviceAttrs)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to register device")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, device); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *DevicesHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}
	deviceID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid device id")
		return
	}

	device, err := h.deviceService.Get(r.Context(), ownerID, deviceID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to get device")
		return
	}

	if err := WriteJSON(w, http.StatusOK, device); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *DevicesHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}

	devices, err := h.deviceService.List(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list devices")
		return
	}
	if devices == nil {
		devices = []*models.Device{}
	}

	if err := WriteJSON(w, http.StatusOK, devices); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *DevicesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}
	deviceID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid device id")
		return
	}

	if err := h.deviceService.Delete(r.Context(), ownerID, deviceID); err != nil {
		writeServiceError(w, h.logger, err, "Failed to delete device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DevicesHandler) AssignZone(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}
	deviceID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid device id")
		return
	}

	var req struct {
		ZoneID *uuid.UUID `json:"zone_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON body"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	device, err := h.deviceService.AssignZone(r.Context(), ownerID, deviceID, req.ZoneID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to assign zone")
		return
	}

	if err := WriteJSON(w, http.StatusOK, device); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type enqueueCommandRequest struct {
	CommandType string                 `json:"command_type"`
	Parameters  map[string]interface{} `json:"parameters"`
}

func (h *DevicesHandler) EnqueueCommand(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}
	deviceID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid device id")
		return
	}

	var req enqueueCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON body"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	cmd, err := h.commandService.Enqueue(r.Context(), ownerID, deviceID, req.CommandType, req.Parameters)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to enqueue command")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, cmd); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *DevicesHandler) ListCommands(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}
	deviceID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid device id")
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid limit")
		return
	}

	commands, err := h.commandService.ListForDevice(r.Context(), ownerID, deviceID, limit)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list commands")
		return
	}
	if commands == nil {
		commands = []*models.Command{}
	}

	if err := WriteJSON(w, http.StatusOK, commands); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
