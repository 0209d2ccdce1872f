package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-platform/internal/channel"
	"github.com/capitalize-ai/concierge-platform/internal/middleware"
	"github.com/capitalize-ai/concierge-platform/internal/model"
	"github.com/capitalize-ai/concierge-platform/internal/service"
	"github.com/capitalize-ai/concierge-platform/pkg/logger"
	"github.com/capitalize-ai/concierge-platform/pkg/metrics"
)

// TenantResolver checks that a tenant exists and is active.
type TenantResolver interface {
	ResolveTenant(ctx context.Context, idOrSlug string) (*model.Tenant, error)
}

// inboundFrame is what the widget sends.
type inboundFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// SocketHandler serves the widget and operator WebSockets.
type SocketHandler struct {
	turns          TurnProcessor
	tenants        TenantResolver
	hub            *channel.Hub
	originPatterns []string
	logger         *logger.Logger
}

// NewSocketHandler creates a socket handler. originPatterns are host
// patterns accepted for cross-origin upgrades.
func NewSocketHandler(turns TurnProcessor, tenants TenantResolver, hub *channel.Hub, originPatterns []string, log *logger.Logger) *SocketHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SocketHandler{
		turns:          turns,
		tenants:        tenants,
		hub:            hub,
		originPatterns: originPatterns,
		logger:         log,
	}
}

// Chat handles GET /ws/chat?tenant=<id|slug>[&session_id=<id>]
func (h *SocketHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantRef := r.URL.Query().Get("tenant")
	if err := middleware.ValidateTenantID(tenantRef); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tenant, err := h.tenants.ResolveTenant(ctx, tenantRef)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	log := h.logger.WithTenant(tenant.ID).With(zap.String("session_id", sessionID))

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		log.Warn("failed to accept websocket", zap.Error(err))
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "session ended")

	h.hub.Register(sessionID, ws)
	defer h.hub.Unregister(sessionID, ws)
	metrics.IncrementWebSockets("widget")
	defer metrics.DecrementWebSockets("widget")

	if err := h.hub.SendFrame(ctx, sessionID, channel.Frame{Type: channel.FrameConnected, SessionID: sessionID}); err != nil {
		log.Debug("failed to send connected frame", zap.Error(err))
		return
	}
	log.Info("widget connected")

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				log.Debug("websocket read failed", zap.Error(err))
			}
			log.Info("widget disconnected")
			return
		}

		var in inboundFrame
		if err := json.Unmarshal(data, &in); err != nil || in.Type != channel.FrameMessage {
			continue
		}
		if err := middleware.ValidateMessageContent(in.Content); err != nil {
			h.sendError(ctx, sessionID, err.Error())
			continue
		}

		h.hub.SendFrame(ctx, sessionID, channel.TypingFrame(true))

		// the reply itself is delivered through the hub by the web sink
		_, err = h.turns.ProcessTurn(ctx, service.TurnRequest{
			TenantID:  tenant.ID,
			Channel:   model.ChannelWeb,
			Message:   in.Content,
			SessionID: sessionID,
		})
		if err != nil {
			log.Warn("turn failed", zap.Error(err))
			h.sendError(ctx, sessionID, apologyMessage)
		}

		h.hub.SendFrame(ctx, sessionID, channel.TypingFrame(false))
	}
}

// Operator handles GET /ws/operator. The tenant comes from the token.
func (h *SocketHandler) Operator(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	log := h.logger.WithTenant(tenantID).With(zap.String("user_id", middleware.GetUserID(r.Context())))

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		log.Warn("failed to accept operator websocket", zap.Error(err))
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "session ended")

	unsubscribe := h.hub.Subscribe(tenantID, ws)
	defer unsubscribe()
	metrics.IncrementWebSockets("operator")
	defer metrics.DecrementWebSockets("operator")

	log.Info("operator connected")
	<-ws.CloseRead(r.Context()).Done()
	log.Info("operator disconnected")
}

func (h *SocketHandler) sendError(ctx context.Context, sessionID, msg string) {
	h.hub.SendFrame(ctx, sessionID, channel.Frame{Type: channel.FrameError, Message: msg})
}
