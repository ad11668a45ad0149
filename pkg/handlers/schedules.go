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

// SchedulesHandler manages watering schedules from the dashboard.
type SchedulesHandler struct {
	scheduleService services.ScheduleService
	logger          *zap.Logger
}

func NewSchedulesHandler(scheduleService services.ScheduleService, logger *zap.Logger) *SchedulesHandler {
	return &SchedulesHandler{scheduleService: scheduleService, logger: logger}
}

// RegisterRoutes registers the schedule routes on the given mux.
func (h *SchedulesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, ownerMiddleware OwnerMiddleware) {
	mux.HandleFunc("GET /api/schedules", authMiddleware.RequireAuth(ownerMiddleware(h.List)))
	mux.HandleFunc("POST /api/schedules", authMiddleware.RequireAuth(ownerMiddleware(h.Create)))
	mux.HandleFunc("GET /api/schedules/{id}", authMiddleware.RequireAuth(ownerMiddleware(h.Get)))
	mux.HandleFunc("PUT /api/schedules/{id}", authMiddleware.RequireAuth(ownerMiddleware(h.Update)))
	mux.HandleFunc("DELETE /api/schedules/{id}", authMiddleware.RequireAuth(ownerMiddleware(h.Delete)))
	mux.HandleFunc("POST /api/schedules/{id}/status", authMiddleware.RequireAuth(ownerMiddleware(h.SetStatus)))
}

type scheduleRequest struct {
	ZoneID          uuid.UUID `json:"zone_id"`
	Frequency       string    `json:"frequency"`
	TimeOfDay       string    `json:"time_of_day"`
	DurationSeconds int       `json:"duration_seconds"`
	Status          string    `json:"status"`
}

func (h *SchedulesHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON body"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	schedule, err := h.scheduleService.Create(r.Context(), &models.WateringSchedule{
		OwnerID:         ownerID,
		ZoneID:          req.ZoneID,
		Frequency:       req.Frequency,
		TimeOfDay:       req.TimeOfDay,
		DurationSeconds: req.DurationSeconds,
		Status:          req.Status,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to create schedule")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, schedule); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *SchedulesHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}
	scheduleID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid schedule id")
		return
	}

	schedule, err := h.scheduleService.Get(r.Context(), ownerID, scheduleID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to get schedule")
		return
	}

	if err := WriteJSON(w, http.StatusOK, schedule); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *SchedulesHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}

	schedules, err := h.scheduleService.List(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list schedules")
		return
	}
	if schedules == nil {
		schedules = []*models.WateringSchedule{}
	}

	if err := WriteJSON(w, http.StatusOK, schedules); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *SchedulesHandler) Update(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}
	scheduleID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid schedule id")
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON body"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	schedule, err := h.scheduleService.Update(r.Context(), &models.WateringSchedule{
		ID:              scheduleID,
		OwnerID:         ownerID,
		ZoneID:          req.ZoneID,
		Frequency:       req.Frequency,
		TimeOfDay:       req.TimeOfDay,
		DurationSeconds: req.DurationSeconds,
		Status:          req.Status,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to update schedule")
		return
	}

	if err := WriteJSON(w, http.StatusOK, schedule); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *SchedulesHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}
	scheduleID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid schedule id")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON body"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	schedule, err := h.scheduleService.SetStatus(r.Context(), ownerID, scheduleID, req.Status)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to set schedule status")
		return
	}

	if err := WriteJSON(w, http.StatusOK, schedule); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *SchedulesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}
	scheduleID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid schedule id")
		return
	}

	if err := h.scheduleService.Delete(r.Context(), ownerID, scheduleID); err != nil {
		writeServiceError(w, h.logger, err, "Failed to delete schedule")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
