package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/auth"
	"github.com/verdant-inc/verdant-engine/pkg/models"
	"github.com/verdant-inc/verdant-engine/pkg/repositories"
	"github.com/verdant-inc/verdant-engine/pkg/services"
)

// analyticsCommandLimit bounds the command history fed into aggregations.
const analyticsCommandLimit = 2000

// AnalyticsHandler fetches owner-scoped rows and applies the pure
// aggregation functions to them. All I/O happens here, none in the service.
type AnalyticsHandler struct {
	analytics services.AnalyticsService
	readings  repositories.ReadingRepository
	zones     repositories.ZoneRepository
	commands  repositories.CommandRepository
	logger    *zap.Logger
}

func NewAnalyticsHandler(
	analytics services.AnalyticsService,
	readings repositories.ReadingRepository,
	zones repositories.ZoneRepository,
	commands repositories.CommandRepository,
	logger *zap.Logger,
) *AnalyticsHandler {
	return &AnalyticsHandler{
		analytics: analytics,
		readings:  readings,
		zones:     zones,
		commands:  commands,
		logger:    logger,
	}
}

// RegisterRoutes registers the analytics routes on the given mux.
func (h *AnalyticsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, ownerMiddleware OwnerMiddleware) {
	mux.HandleFunc("GET /api/analytics/water-usage", authMiddleware.RequireAuth(ownerMiddleware(h.WaterUsage)))
	mux.HandleFunc("GET /api/analytics/water-savings", authMiddleware.RequireAuth(ownerMiddleware(h.WaterSavings)))
	mux.HandleFunc("GET /api/analytics/moisture-distribution", authMiddleware.RequireAuth(ownerMiddleware(h.MoistureDistribution)))
	mux.HandleFunc("GET /api/analytics/plant-health", authMiddleware.RequireAuth(ownerMiddleware(h.PlantHealth)))
	mux.HandleFunc("GET /api/analytics/insights", authMiddleware.RequireAuth(ownerMiddleware(h.Insights)))
}

func (h *AnalyticsHandler) WaterUsage(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}

	commands, err := h.commands.ListForOwner(r.Context(), ownerID, analyticsCommandLimit)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to fetch commands")
		return
	}
	zones, err := h.zones.List(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to fetch zones")
		return
	}

	usage := h.analytics.WaterUsageByZone(commands, zones)
	if usage == nil {
		usage = []services.ZoneWaterUsage{}
	}
	if err := WriteJSON(w, http.StatusOK, usage); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *AnalyticsHandler) WaterSavings(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}
	months, err := queryInt(r, "months", 6)
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid months")
		return
	}

	commands, err := h.commands.ListForOwner(r.Context(), ownerID, analyticsCommandLimit)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to fetch commands")
		return
	}

	savings := h.analytics.WaterSavings(commands, months)
	if err := WriteJSON(w, http.StatusOK, savings); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *AnalyticsHandler) MoistureDistribution(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}

	readings, err := h.fetchReadings(r, ownerID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to fetch readings")
		return
	}

	buckets := h.analytics.MoistureDistribution(readings)
	if buckets == nil {
		buckets = []services.MoistureBucket{}
	}
	if err := WriteJSON(w, http.StatusOK, buckets); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *AnalyticsHandler) PlantHealth(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}

	readings, err := h.fetchReadings(r, ownerID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to fetch readings")
		return
	}
	zones, err := h.zones.List(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to fetch zones")
		return
	}

	health := h.analytics.PlantHealthScore(readings, zones)
	if health == nil {
		health = []services.ZoneHealth{}
	}
	if err := WriteJSON(w, http.StatusOK, health); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *AnalyticsHandler) Insights(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}

	readings, err := h.fetchReadings(r, ownerID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to fetch readings")
		return
	}
	zones, err := h.zones.List(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to fetch zones")
		return
	}
	commands, err := h.commands.ListForOwner(r.Context(), ownerID, analyticsCommandLimit)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to fetch commands")
		return
	}

	insights := h.analytics.Insights(readings, zones, commands)
	if insights == nil {
		insights = []services.Insight{}
	}
	if err := WriteJSON(w, http.StatusOK, insights); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *AnalyticsHandler) fetchReadings(r *http.Request, ownerID uuid.UUID) ([]*models.SensorReading, error) {
	since, err := queryTime(r, "since")
	if err != nil {
		return nil, err
	}
	return h.readings.List(r.Context(), ownerID, models.ReadingFilters{Since: since})
}
