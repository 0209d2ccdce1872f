// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/concierge-platform/internal/middleware"
	"github.com/capitalize-ai/concierge-platform/internal/service"
	"github.com/capitalize-ai/concierge-platform/pkg/logger"
)

// ConversationHandler handles the operator conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ConversationHandler{
		service: svc,
		logger:  log,
	}
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	resp, err := h.service.List(ctx, tenantID, queryLimit(r))
	if err != nil {
		writeServiceError(w, h.logger.WithTenant(tenantID), err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/conversations/:id
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, conversationID, ok := scopedID(w, r)
	if !ok {
		return
	}

	conv, err := h.service.Get(r.Context(), tenantID, conversationID)
	if err != nil {
		writeServiceError(w, h.logger.WithTurn(tenantID, conversationID), err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Messages handles GET /api/v1/conversations/:id/messages
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	tenantID, conversationID, ok := scopedID(w, r)
	if !ok {
		return
	}

	resp, err := h.service.Messages(r.Context(), tenantID, conversationID, queryLimit(r))
	if err != nil {
		writeServiceError(w, h.logger.WithTurn(tenantID, conversationID), err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Close handles POST /api/v1/conversations/:id/close
func (h *ConversationHandler) Close(w http.ResponseWriter, r *http.Request) {
	tenantID, conversationID, ok := scopedID(w, r)
	if !ok {
		return
	}

	conv, err := h.service.Close(r.Context(), tenantID, conversationID)
	if err != nil {
		writeServiceError(w, h.logger.WithTurn(tenantID, conversationID), err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Handoff handles POST /api/v1/conversations/:id/handoff
func (h *ConversationHandler) Handoff(w http.ResponseWriter, r *http.Request) {
	tenantID, conversationID, ok := scopedID(w, r)
	if !ok {
		return
	}

	conv, err := h.service.Handoff(r.Context(), tenantID, conversationID)
	if err != nil {
		writeServiceError(w, h.logger.WithTurn(tenantID, conversationID), err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// UpdateSettings handles PUT /api/v1/tenant/settings
func (h *ConversationHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	var settings map[string]any
	if err := decodeJSON(w, r, &settings); err != nil || settings == nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tenant, err := h.service.UpdateTenantSettings(ctx, tenantID, settings)
	if err != nil {
		writeServiceError(w, h.logger.WithTenant(tenantID), err)
		return
	}

	writeJSON(w, http.StatusOK, tenant)
}

func scopedID(w http.ResponseWriter, r *http.Request) (tenantID, conversationID string, ok bool) {
	conversationID = chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	return middleware.GetTenantID(r.Context()), conversationID, true
}
