package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/apperrors"
	"github.com/verdant-inc/verdant-engine/pkg/database"
	"github.com/verdant-inc/verdant-engine/pkg/logging"
	"github.com/verdant-inc/verdant-engine/pkg/models"
	"github.com/verdant-inc/verdant-engine/pkg/services"
)

// DeviceAPIHandler serves the device-facing endpoints. Devices authenticate
// with an API key instead of a JWT: the key resolves to an owner, and the
// request then runs under that owner's database scope exactly like a
// dashboard request would.
type DeviceAPIHandler struct {
	scopes         database.ScopeProvider
	keyService     services.APIKeyService
	ingestService  services.IngestService
	commandService services.CommandService
	deviceService  services.DeviceService
	logger         *zap.Logger
}

func NewDeviceAPIHandler(
	scopes database.ScopeProvider,
	keyService services.APIKeyService,
	ingestService services.IngestService,
	commandService services.CommandService,
	deviceService services.DeviceService,
	logger *zap.Logger,
) *DeviceAPIHandler {
	return &DeviceAPIHandler{
		scopes:         scopes,
		keyService:     keyService,
		ingestService:  ingestService,
		commandService: commandService,
		deviceService:  deviceService,
		logger:         logger,
	}
}

// RegisterRoutes registers the device-facing routes on the given mux. No JWT
// middleware here; the API key is the sole credential.
func (h *DeviceAPIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/device/readings", h.Ingest)
	mux.HandleFunc("GET /api/device/commands", h.PollCommands)
	mux.HandleFunc("POST /api/device/commands", h.EnqueueCommand)
	mux.HandleFunc("PUT /api/device/commands/ack", h.AcknowledgeCommand)
	mux.HandleFunc("POST /api/device/register", h.Register)
	mux.HandleFunc("PUT /api/device/heartbeat", h.Heartbeat)
}

// extractAPIKey pulls the credential from the X-API-Key header, the query
// string, or the request body (already decoded by the caller). Header wins.
func extractAPIKey(r *http.Request, bodyKey string) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if key := r.URL.Query().Get("api_key"); key != "" {
		return key
	}
	return bodyKey
}

// authenticate validates the key and returns a request context carrying the
// owner's database scope. The returned cleanup releases the scoped
// connection and must always run.
func (h *DeviceAPIHandler) authenticate(w http.ResponseWriter, r *http.Request, bodyKey string) (*models.APIKey, *http.Request, func(), bool) {
	plaintext := extractAPIKey(r, bodyKey)
	if plaintext == "" {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "API key required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return nil, nil, nil, false
	}

	// Key resolution runs on the system scope: the owner is not known until
	// the key row is found.
	sysCtx, sysCleanup, err := h.scopes.WithSystemScope(r.Context())
	if err != nil {
		h.logger.Error("Failed to acquire system scope", zap.Error(err))
		if werr := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to authenticate"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return nil, nil, nil, false
	}
	key, err := h.keyService.Validate(sysCtx, plaintext)
	sysCleanup()
	if err != nil {
		h.logger.Debug("Rejected device API key",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("error", logging.SanitizeError(err)))
		if werr := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Invalid API key"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return nil, nil, nil, false
	}

	ownerCtx, cleanup, err := h.scopes.WithOwnerScope(r.Context(), key.OwnerID)
	if err != nil {
		h.logger.Error("Failed to acquire owner scope", zap.Error(err))
		if werr := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to authenticate"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return nil, nil, nil, false
	}
	return key, r.WithContext(ownerCtx), cleanup, true
}

// Device success bodies carry a success flag plus a payload field named per
// endpoint. Shipped ESP32 firmware parses these shapes; changing a field name
// or status code here breaks devices in the field.
type deviceIngestResponse struct {
	Success bool                   `json:"success"`
	Data    *services.IngestResult `json:"data"`
}

type deviceCommandResponse struct {
	Success bool            `json:"success"`
	Command *models.Command `json:"command"`
}

type devicePollResponse struct {
	Commands []*models.Command `json:"commands"`
}

type deviceRegisterResponse struct {
	Success bool           `json:"success"`
	Device  *models.Device `json:"device"`
}

type deviceIngestRequest struct {
	services.IngestRequest
	APIKey string `json:"api_key,omitempty"`
}

func (h *DeviceAPIHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req deviceIngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON body"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	key, r, cleanup, ok := h.authenticate(w, r, req.APIKey)
	if !ok {
		return
	}
	defer cleanup()

	result, err := h.ingestService.Ingest(r.Context(), key.OwnerID, req.IngestRequest)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to store reading")
		return
	}

	if err := WriteJSON(w, http.StatusOK, deviceIngestResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *DeviceAPIHandler) PollCommands(w http.ResponseWriter, r *http.Request) {
	key, r, cleanup, ok := h.authenticate(w, r, "")
	if !ok {
		return
	}
	defer cleanup()

	// The key is bound to one device; a device_id in the query must name
	// that device or the poll is rejected as not found.
	if wantID := r.URL.Query().Get("device_id"); wantID != "" {
		device, err := h.deviceService.Get(r.Context(), key.OwnerID, key.DeviceID)
		if err != nil {
			writeServiceError(w, h.logger, err, "Failed to resolve device")
			return
		}
		if device.DeviceID != wantID {
			writeServiceError(w, h.logger, apperrors.ErrNotFound, "Device not found")
			return
		}
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid limit")
		return
	}

	commands, err := h.commandService.Poll(r.Context(), key.OwnerID, key.DeviceID, limit)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to poll commands")
		return
	}
	if commands == nil {
		commands = []*models.Command{}
	}

	if err := WriteJSON(w, http.StatusOK, devicePollResponse{Commands: commands}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type deviceEnqueueRequest struct {
	DeviceID    *uuid.UUID             `json:"device_id,omitempty"`
	CommandType string                 `json:"command_type"`
	Parameters  map[string]interface{} `json:"parameters"`
	APIKey      string                 `json:"api_key,omitempty"`
}

func (h *DeviceAPIHandler) EnqueueCommand(w http.ResponseWriter, r *http.Request) {
	var req deviceEnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON body"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	key, r, cleanup, ok := h.authenticate(w, r, req.APIKey)
	if !ok {
		return
	}
	defer cleanup()

	// The key's own device is the default target.
	deviceID := key.DeviceID
	if req.DeviceID != nil {
		deviceID = *req.DeviceID
	}

	cmd, err := h.commandService.Enqueue(r.Context(), key.OwnerID, deviceID, req.CommandType, req.Parameters)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to enqueue command")
		return
	}

	if err := WriteJSON(w, http.StatusOK, deviceCommandResponse{Success: true, Command: cmd}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type acknowledgeRequest struct {
	CommandID uuid.UUID `json:"command_id"`
	Status    string    `json:"status"`
	Result    *string   `json:"result,omitempty"`
	APIKey    string    `json:"api_key,omitempty"`
}

func (h *DeviceAPIHandler) AcknowledgeCommand(w http.ResponseWriter, r *http.Request) {
	var req acknowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON body"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}
	if req.CommandID == uuid.Nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "bad_request", "command_id is required"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	key, r, cleanup, ok := h.authenticate(w, r, req.APIKey)
	if !ok {
		return
	}
	defer cleanup()

	cmd, err := h.commandService.Acknowledge(r.Context(), key.OwnerID, req.CommandID, req.Status, req.Result)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to acknowledge command")
		return
	}

	if err := WriteJSON(w, http.StatusOK, deviceCommandResponse{Success: true, Command: cmd}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type deviceRegisterRequest struct {
	DeviceID string `json:"device_id"`
	models.DeviceAttrs
	APIKey string `json:"api_key,omitempty"`
}

func (h *DeviceAPIHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req deviceRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON body"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	key, r, cleanup, ok := h.authenticate(w, r, req.APIKey)
	if !ok {
		return
	}
	defer cleanup()

	device, err := h.deviceService.RegisterOrUpdate(r.Context(), key.OwnerID, req.DeviceID, req.DeviceAttrs)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to register device")
		return
	}

	if err := WriteJSON(w, http.StatusOK, deviceRegisterResponse{Success: true, Device: device}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type heartbeatRequest struct {
	DeviceID     string `json:"device_id,omitempty"`
	BatteryLevel *int   `json:"battery_level,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
}

func (h *DeviceAPIHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON body"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	key, r, cleanup, ok := h.authenticate(w, r, req.APIKey)
	if !ok {
		return
	}
	defer cleanup()

	externalID := req.DeviceID
	if externalID == "" {
		// Fall back to the device bound to the key.
		device, err := h.deviceService.Get(r.Context(), key.OwnerID, key.DeviceID)
		if err != nil {
			writeServiceError(w, h.logger, err, "Failed to resolve device")
			return
		}
		externalID = device.DeviceID
	}

	if err := h.deviceService.Heartbeat(r.Context(), key.OwnerID, externalID, req.BatteryLevel); err != nil {
		writeServiceError(w, h.logger, err, "Failed to record heartbeat")
		return
	}

	device, err := h.deviceService.GetByExternalID(r.Context(), key.OwnerID, externalID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve device")
		return
	}

	if err := WriteJSON(w, http.StatusOK, deviceRegisterResponse{Success: true, Device: device}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
