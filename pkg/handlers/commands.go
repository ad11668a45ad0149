package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/auth"
	"github.com/verdant-inc/verdant-engine/pkg/models"
	"github.com/verdant-inc/verdant-engine/pkg/services"
)

// CommandsHandler serves the dashboard command history view.
type CommandsHandler struct {
	commandService services.CommandService
	logger         *zap.Logger
}

func NewCommandsHandler(commandService services.CommandService, logger *zap.Logger) *CommandsHandler {
	return &CommandsHandler{commandService: commandService, logger: logger}
}

// RegisterRoutes registers the command routes on the given mux.
func (h *CommandsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, ownerMiddleware OwnerMiddleware) {
	mux.HandleFunc("GET /api/commands", authMiddleware.RequireAuth(ownerMiddleware(h.List)))
	mux.HandleFunc("GET /api/commands/{id}", authMiddleware.RequireAuth(ownerMiddleware(h.Get)))
}

func (h *CommandsHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid limit")
		return
	}

	commands, err := h.commandService.ListForOwner(r.Context(), ownerID, limit)
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

func (h *CommandsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.RequireOwnerIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve owner")
		return
	}
	commandID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid command id")
		return
	}

	cmd, err := h.commandService.Get(r.Context(), ownerID, commandID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to get command")
		return
	}

	if err := WriteJSON(w, http.StatusOK, cmd); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
