package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the name of the conversations stream.
	StreamName = "CONVERSATIONS"

	// SubjectPrefix is the prefix for all conversation subjects.
	SubjectPrefix = "conv"
)

// StreamConfig tunes the conversations stream.
type StreamConfig struct {
	MaxAge   time.Duration
	MaxBytes int64
	Replicas int
}

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	js  jetstream.JetStream
	cfg StreamConfig
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client, cfg StreamConfig) *StreamManager {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 90 * 24 * time.Hour
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 * 1024 * 1024 * 1024
	}
	if cfg.Replicas <= 0 {
		cfg.Replicas = 1
	}
	return &StreamManager{js: client.JetStream(), cfg: cfg}
}

// EnsureStream creates the conversations stream if it does not exist.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	_, err := m.js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = m.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      m.cfg.MaxAge,
		MaxBytes:    m.cfg.MaxBytes,
		Storage:     jetstream.FileStorage,
		Replicas:    m.cfg.Replicas,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Conversation lifecycle and analytics events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for an event. Dots in the event name
// become subject tokens, so conversation.message is published as
// conv.<tenant>.<conversation>.event.conversation.message.
func EventSubject(tenantID, conversationID, name string) string {
	return fmt.Sprintf("%s.%s.%s.event.%s", SubjectPrefix, token(tenantID), token(conversationID), name)
}

// ConversationFilter returns the filter subject for all events in a conversation.
func ConversationFilter(tenantID, conversationID string) string {
	return fmt.Sprintf("%s.%s.%s.>", SubjectPrefix, token(tenantID), token(conversationID))
}

// token keeps ids from splitting or wildcarding a subject.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}

// PublishEvent publishes a JSON-encoded event and returns its stream sequence.
func (m *StreamManager) PublishEvent(ctx context.Context, tenantID, conversationID, name string, data []byte) (uint64, error) {
	ack, err := m.js.Publish(ctx, EventSubject(tenantID, conversationID, name), data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}
	return ack.Sequence, nil
}
