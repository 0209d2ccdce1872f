// Package broker publishes JSON envelopes to a RabbitMQ topic exchange.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-platform/pkg/logger"
)

// Meta describes an envelope.
type Meta struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Time          time.Time `json:"time"`
	Producer      *string   `json:"producer,omitempty"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
}

// Envelope wraps every payload put on the exchange.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// NewEnvelope stamps a fresh id and time on data.
func NewEnvelope(eventType, producer string, data any) Envelope {
	env := Envelope{
		Meta: Meta{
			ID:   uuid.NewString(),
			Type: eventType,
			Time: time.Now().UTC(),
		},
		Data: data,
	}
	if producer != "" {
		env.Meta.Producer = &producer
	}
	return env
}

// Publisher publishes envelopes by routing key.
type Publisher interface {
	Publish(ctx context.Context, key string, env Envelope) error
	Close() error
}

// Config holds RabbitMQ settings.
type Config struct {
	URL      string
	Exchange string
	// Attempts bounds the initial dial loop.
	Attempts int
	Backoff  time.Duration
}

// RabbitPublisher publishes on a durable topic exchange with publisher
// confirms.
type RabbitPublisher struct {
	conn     *amqp.Connection
	exchange string
	logger   *logger.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

// Dial connects, declares the exchange and enables confirms.
func Dial(ctx context.Context, cfg Config, log *logger.Logger) (*RabbitPublisher, error) {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 5
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var conn *amqp.Connection
	var err error
	for i := 0; i < attempts; i++ {
		conn, err = amqp.Dial(cfg.URL)
		if err == nil {
			break
		}
		log.Warn("RabbitMQ dial failed, retrying",
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff * time.Duration(i+1)):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable confirms: %w", err)
	}

	return &RabbitPublisher{
		conn:     conn,
		exchange: cfg.Exchange,
		logger:   log,
		ch:       ch,
	}, nil
}

// Publish sends env and waits for the broker confirm.
func (p *RabbitPublisher) Publish(ctx context.Context, key string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	msgID := env.Meta.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	cid := msgID
	if env.Meta.CorrelationID != nil {
		cid = *env.Meta.CorrelationID
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		ch, err := p.conn.Channel()
		if err != nil {
			return fmt.Errorf("failed to reopen channel: %w", err)
		}
		if err := ch.Confirm(false); err != nil {
			return fmt.Errorf("failed to enable confirms: %w", err)
		}
		p.ch = ch
	}

	conf, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     msgID,
		CorrelationId: cid,
		Timestamp:     env.Meta.Time,
		Type:          env.Meta.Type,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", key, err)
	}

	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to confirm %s: %w", key, err)
	}
	if !acked {
		return fmt.Errorf("broker nacked %s", key)
	}

	p.logger.Debug("published",
		zap.String("key", key),
		zap.String("exchange", p.exchange),
	)
	return nil
}

// IsConnected reports whether the connection is open.
func (p *RabbitPublisher) IsConnected() bool {
	return p.conn != nil && !p.conn.IsClosed()
}

// Close closes the connection.
func (p *RabbitPublisher) Close() error {
	return p.conn.Close()
}
