package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/concierge-platform/internal/broker"
	"github.com/capitalize-ai/concierge-platform/internal/model"
)

// OutboundMessage is what external channel processors receive.
type OutboundMessage struct {
	OutboundID     string         `json:"outbound_id"`
	TenantID       string         `json:"tenant_id"`
	ConversationID string         `json:"conversation_id"`
	Channel        model.Channel  `json:"channel"`
	Recipient      string         `json:"recipient"`
	Kind           string         `json:"kind"`
	Text           string         `json:"text"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	AtHub          time.Time      `json:"at_hub"`
}

// OutboundRoutingKey is the routing key for replies on ch.
func OutboundRoutingKey(ch model.Channel) string {
	return fmt.Sprintf("chat.outbound.%s.v1", ch)
}

// AMQPSink hands replies for sms and whatsapp to channel processors over
// RabbitMQ.
type AMQPSink struct {
	pub      broker.Publisher
	producer string
}

// NewAMQPSink creates an outbound sink.
func NewAMQPSink(pub broker.Publisher, producer string) *AMQPSink {
	return &AMQPSink{pub: pub, producer: producer}
}

// Send implements Sink.
func (s *AMQPSink) Send(ctx context.Context, ch model.Channel, recipient string, resp *model.TurnResponse) error {
	tenantID, conversationID := ScopeFrom(ctx)
	msg := OutboundMessage{
		OutboundID:     uuid.NewString(),
		TenantID:       tenantID,
		ConversationID: conversationID,
		Channel:        ch,
		Recipient:      recipient,
		Kind:           "text",
		Text:           resp.Content,
		Metadata:       resp.Metadata,
		AtHub:          time.Now().UTC(),
	}

	key := OutboundRoutingKey(ch)
	env := broker.NewEnvelope(key, s.producer, msg)
	env.Meta.ID = msg.OutboundID
	if err := s.pub.Publish(ctx, key, env); err != nil {
		return fmt.Errorf("failed to enqueue %s reply: %w", ch, err)
	}
	return nil
}
