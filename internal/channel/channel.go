// Package channel delivers turn replies to customers and operators.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/capitalize-ai/concierge-platform/internal/model"
)

var (
	// ErrUnsupportedChannel is returned for channels with no registered sink.
	ErrUnsupportedChannel = errors.New("unsupported channel")

	// ErrNoConnection is returned when the recipient has no live socket.
	ErrNoConnection = errors.New("no live connection")
)

// Sink delivers a reply to a recipient on a channel.
type Sink interface {
	Send(ctx context.Context, channel model.Channel, recipient string, resp *model.TurnResponse) error
}

// Broadcaster pushes a payload to every operator watching a tenant.
type Broadcaster interface {
	Broadcast(ctx context.Context, tenantID string, payload any) error
}

// Registry routes deliveries to the sink registered for the channel.
type Registry struct {
	mu    sync.RWMutex
	sinks map[model.Channel]Sink
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sinks: make(map[model.Channel]Sink)}
}

// Register installs sink for ch.
func (r *Registry) Register(ch model.Channel, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[ch] = sink
}

// Send implements Sink.
func (r *Registry) Send(ctx context.Context, ch model.Channel, recipient string, resp *model.TurnResponse) error {
	r.mu.RLock()
	sink, ok := r.sinks[ch]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedChannel, ch)
	}
	return sink.Send(ctx, ch, recipient, resp)
}

type scopeKey struct{}

type scope struct {
	tenantID       string
	conversationID string
}

// WithScope records which tenant and conversation a delivery belongs to.
func WithScope(ctx context.Context, tenantID, conversationID string) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope{tenantID: tenantID, conversationID: conversationID})
}

// ScopeFrom returns the values set by WithScope.
func ScopeFrom(ctx context.Context) (tenantID, conversationID string) {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s.tenantID, s.conversationID
}
