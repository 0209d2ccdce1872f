package handler

import (
	"context"
	"net/http"

	"github.com/capitalize-ai/concierge-platform/internal/middleware"
	"github.com/capitalize-ai/concierge-platform/internal/model"
	"github.com/capitalize-ai/concierge-platform/internal/service"
	"github.com/capitalize-ai/concierge-platform/pkg/logger"
)

// TurnProcessor runs one customer turn.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, req service.TurnRequest) (*model.TurnResponse, error)
}

// TurnHandler accepts turns from webhook channels.
type TurnHandler struct {
	turns  TurnProcessor
	logger *logger.Logger
}

// NewTurnHandler creates a turn handler.
func NewTurnHandler(turns TurnProcessor, log *logger.Logger) *TurnHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &TurnHandler{turns: turns, logger: log}
}

type turnRequest struct {
	Channel    model.Channel `json:"channel"`
	Message    string        `json:"message"`
	CustomerID string        `json:"customer_id"`
	SessionID  string        `json:"session_id"`
}

// Create handles POST /api/v1/turns
func (h *TurnHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	var req turnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateChannel(req.Channel); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.turns.ProcessTurn(ctx, service.TurnRequest{
		TenantID:   tenantID,
		Channel:    req.Channel,
		Message:    req.Message,
		CustomerID: req.CustomerID,
		SessionID:  req.SessionID,
	})
	if err != nil {
		log := h.logger.WithRequest(middleware.GetCorrelationID(r), tenantID, middleware.GetUserID(ctx))
		writeServiceError(w, log, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
