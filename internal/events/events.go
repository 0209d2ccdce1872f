// Package events publishes conversation lifecycle and analytics events.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/capitalize-ai/concierge-platform/internal/broker"
)

// Sink receives named events.
type Sink interface {
	Publish(ctx context.Context, name string, payload any) error
}

// Scoped payloads name the tenant and conversation they belong to.
type Scoped interface {
	Scope() (tenantID, conversationID string)
}

// Nop drops every event.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(ctx context.Context, name string, payload any) error { return nil }

// Fanout publishes to every sink and joins their errors.
type Fanout []Sink

// Publish sends the event to all sinks even if some fail.
func (f Fanout) Publish(ctx context.Context, name string, payload any) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, name, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StreamPublisher is the JetStream operation JetStreamSink needs.
type StreamPublisher interface {
	PublishEvent(ctx context.Context, tenantID, conversationID, name string, data []byte) (uint64, error)
}

// JetStreamSink appends events to the conversations stream.
type JetStreamSink struct {
	stream StreamPublisher
}

// NewJetStreamSink creates a JetStream sink.
func NewJetStreamSink(stream StreamPublisher) *JetStreamSink {
	return &JetStreamSink{stream: stream}
}

// Publish requires payload to be Scoped.
func (s *JetStreamSink) Publish(ctx context.Context, name string, payload any) error {
	scoped, ok := payload.(Scoped)
	if !ok {
		return fmt.Errorf("event %s: payload %T has no conversation scope", name, payload)
	}
	tenantID, conversationID := scoped.Scope()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := s.stream.PublishEvent(ctx, tenantID, conversationID, name, data); err != nil {
		return fmt.Errorf("event %s: %w", name, err)
	}
	return nil
}

// AMQPSink publishes enveloped events keyed by event name.
type AMQPSink struct {
	pub      broker.Publisher
	producer string
}

// NewAMQPSink creates an AMQP sink.
func NewAMQPSink(pub broker.Publisher, producer string) *AMQPSink {
	return &AMQPSink{pub: pub, producer: producer}
}

// Publish wraps payload in an envelope and publishes it.
func (s *AMQPSink) Publish(ctx context.Context, name string, payload any) error {
	env := broker.NewEnvelope(name, s.producer, payload)
	if cid, ok := CorrelationID(ctx); ok {
		env.Meta.CorrelationID = &cid
	}
	if err := s.pub.Publish(ctx, name, env); err != nil {
		return fmt.Errorf("event %s: %w", name, err)
	}
	return nil
}

type correlationKey struct{}

// WithCorrelationID attaches a correlation id carried into envelopes.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id set by WithCorrelationID.
func CorrelationID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationKey{}).(string)
	return id, ok && id != ""
}
