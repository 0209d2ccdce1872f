package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-platform/internal/model"
	"github.com/capitalize-ai/concierge-platform/pkg/logger"
)

// Frame types sent to widget sockets.
const (
	FrameConnected = "connected"
	FrameTyping    = "typing"
	FrameMessage   = "message"
	FrameError     = "error"
)

// Frame is one JSON message on a widget socket.
type Frame struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Resolved  *bool          `json:"resolved,omitempty"`
	Typing    *bool          `json:"is_typing,omitempty"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// TypingFrame reports whether the assistant is composing a reply.
func TypingFrame(typing bool) Frame {
	return Frame{Type: FrameTyping, Typing: &typing, Timestamp: time.Now().UTC()}
}

// MessageFrame carries an assistant reply.
func MessageFrame(resp *model.TurnResponse) Frame {
	resolved := resp.Resolved
	return Frame{
		Type:      FrameMessage,
		Content:   resp.Content,
		Metadata:  resp.Metadata,
		Resolved:  &resolved,
		Timestamp: time.Now().UTC(),
	}
}

// Conn is the part of *websocket.Conn the hub writes to.
type Conn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
}

// Hub tracks live widget and operator sockets. Widget sockets are keyed by
// session id, operator sockets by tenant.
type Hub struct {
	mu        sync.RWMutex
	sessions  map[string]Conn
	operators map[string]map[Conn]struct{}

	writeTimeout time.Duration
	logger       *logger.Logger
}

// NewHub creates a hub.
func NewHub(writeTimeout time.Duration, log *logger.Logger) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		sessions:     make(map[string]Conn),
		operators:    make(map[string]map[Conn]struct{}),
		writeTimeout: writeTimeout,
		logger:       log,
	}
}

// Register binds a widget socket to a session, replacing any earlier one.
func (h *Hub) Register(sessionID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[sessionID] = conn
}

// Unregister removes the session binding if it still points at conn.
func (h *Hub) Unregister(sessionID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[sessionID] == conn {
		delete(h.sessions, sessionID)
	}
}

// Subscribe adds an operator socket for tenantID. Call the returned
// function to remove it.
func (h *Hub) Subscribe(tenantID string, conn Conn) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.operators[tenantID]
	if !ok {
		subs = make(map[Conn]struct{})
		h.operators[tenantID] = subs
	}
	subs[conn] = struct{}{}

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.operators[tenantID], conn)
		if len(h.operators[tenantID]) == 0 {
			delete(h.operators, tenantID)
		}
	}
}

// SendFrame writes f to the session's socket.
func (h *Hub) SendFrame(ctx context.Context, sessionID string, f Frame) error {
	h.mu.RLock()
	conn, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: session %s", ErrNoConnection, sessionID)
	}
	return h.write(ctx, conn, f)
}

// Send implements Sink for the web channel.
func (h *Hub) Send(ctx context.Context, ch model.Channel, recipient string, resp *model.TurnResponse) error {
	return h.SendFrame(ctx, recipient, MessageFrame(resp))
}

// Broadcast implements Broadcaster. Every operator is attempted and write
// errors are joined.
func (h *Hub) Broadcast(ctx context.Context, tenantID string, payload any) error {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.operators[tenantID]))
	for c := range h.operators[tenantID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var errs []error
	for _, c := range conns {
		if err := h.write(ctx, c, payload); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		h.logger.WithTenant(tenantID).Debug("operator broadcast incomplete",
			zap.Int("failed", len(errs)),
			zap.Int("operators", len(conns)),
		)
	}
	return errors.Join(errs...)
}

// Counts returns the number of live widget sessions and operator sockets.
func (h *Hub) Counts() (sessions, operators int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, subs := range h.operators {
		operators += len(subs)
	}
	return len(h.sessions), operators
}

func (h *Hub) write(ctx context.Context, conn Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
