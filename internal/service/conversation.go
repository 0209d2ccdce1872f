// Package service provides business logic for the concierge platform.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-platform/internal/cache"
	"github.com/capitalize-ai/concierge-platform/internal/events"
	"github.com/capitalize-ai/concierge-platform/internal/model"
	"github.com/capitalize-ai/concierge-platform/internal/store"
	"github.com/capitalize-ai/concierge-platform/pkg/logger"
	"github.com/capitalize-ai/concierge-platform/pkg/metrics"
)

// ConversationTTL is how long a session cache entry lives.
const ConversationTTL = time.Hour

var (
	// ErrTenantNotFound is returned when the tenant id or slug is unknown.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantInactive is returned when the tenant is disabled.
	ErrTenantInactive = errors.New("tenant inactive")

	// ErrInvalidTurn is returned for turns with no message or counterparty.
	ErrInvalidTurn = errors.New("invalid turn")
)

// ConversationService manages conversation lifecycle.
type ConversationService struct {
	store  store.Store
	cache  cache.Cache
	events events.Sink
	ttl    time.Duration
	logger *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(st store.Store, c cache.Cache, sink events.Sink, log *logger.Logger) *ConversationService {
	if sink == nil {
		sink = events.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ConversationService{
		store:  st,
		cache:  c,
		events: sink,
		ttl:    ConversationTTL,
		logger: log,
	}
}

// ResolveTenant returns an active tenant by id or slug.
func (s *ConversationService) ResolveTenant(ctx context.Context, idOrSlug string) (*model.Tenant, error) {
	if idOrSlug == "" {
		return nil, ErrTenantNotFound
	}
	tenant, err := s.store.FindTenant(ctx, idOrSlug)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, idOrSlug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	if !tenant.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrTenantInactive, idOrSlug)
	}
	return tenant, nil
}

// ResolveOrCreate returns the counterparty's active conversation, creating
// one when the cache has no valid pointer. The cache only accelerates the
// lookup: every hit is revalidated against the store.
func (s *ConversationService) ResolveOrCreate(ctx context.Context, tenantID string, ch model.Channel, counterparty string, customerID *string, sessionID string) (*model.Conversation, error) {
	key := cache.ConversationKey(tenantID, counterparty)
	log := s.logger.WithTenant(tenantID)

	if id, ok := s.lookup(ctx, key, log); ok {
		conv, err := s.store.FindActiveConversation(ctx, id)
		switch {
		case err == nil && conv.TenantID == tenantID:
			metrics.SessionCacheTotal.WithLabelValues("hit").Inc()
			return conv, nil
		case err == nil, errors.Is(err, store.ErrNotFound):
			metrics.SessionCacheTotal.WithLabelValues("stale").Inc()
			log.Debug("stale conversation pointer", zap.String("conversation_id", id))
		default:
			return nil, fmt.Errorf("failed to load conversation: %w", err)
		}
	}

	var metadata map[string]any
	if sessionID != "" {
		metadata = map[string]any{"session_id": sessionID}
	}
	conv, err := s.store.CreateConversation(ctx, tenantID, ch, customerID, metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	metrics.ConversationsTotal.WithLabelValues(tenantID, string(ch)).Inc()

	if err := s.cache.SetWithExpiry(ctx, key, conv.ID, s.ttl); err != nil {
		log.Warn("failed to cache conversation", zap.String("conversation_id", conv.ID), zap.Error(err))
	}

	log.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("channel", string(ch)),
	)
	return conv, nil
}

func (s *ConversationService) lookup(ctx context.Context, key string, log *logger.Logger) (string, bool) {
	id, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		metrics.SessionCacheTotal.WithLabelValues("error").Inc()
		log.Warn("session cache read failed", zap.Error(err))
		return "", false
	}
	if !ok || id == "" {
		metrics.SessionCacheTotal.WithLabelValues("miss").Inc()
		return "", false
	}
	return id, true
}

// Get retrieves a conversation owned by the tenant.
func (s *ConversationService) Get(ctx context.Context, tenantID, conversationID string) (*model.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, tenantID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// List returns the tenant's open conversations, newest first.
func (s *ConversationService) List(ctx context.Context, tenantID string, limit int) (*model.ListConversationsResponse, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	convs, err := s.store.ListActiveConversations(ctx, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	return &model.ListConversationsResponse{Conversations: convs, Total: len(convs)}, nil
}

// Messages returns the most recent messages of a tenant's conversation.
func (s *ConversationService) Messages(ctx context.Context, tenantID, conversationID string, limit int) (*model.ListMessagesResponse, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	if _, err := s.Get(ctx, tenantID, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.store.RecentMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return &model.ListMessagesResponse{Messages: msgs}, nil
}

// Close ends a conversation. The next turn from the same counterparty
// starts a new one.
func (s *ConversationService) Close(ctx context.Context, tenantID, conversationID string) (*model.Conversation, error) {
	conv, err := s.transition(ctx, tenantID, conversationID, model.StatusClosed)
	if err != nil {
		return nil, err
	}

	if key := counterpartyKey(conv); key != "" {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.WithTurn(tenantID, conversationID).Warn("failed to evict session cache", zap.Error(err))
		}
	}

	s.publish(ctx, model.EventConversationClosed, model.ConversationEvent{
		TenantID:       tenantID,
		ConversationID: conversationID,
		Status:         model.StatusClosed,
		OccurredAt:     time.Now().UTC(),
	})
	return conv, nil
}

// Handoff moves a conversation to a human operator.
func (s *ConversationService) Handoff(ctx context.Context, tenantID, conversationID string) (*model.Conversation, error) {
	conv, err := s.transition(ctx, tenantID, conversationID, model.StatusPendingHandoff)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, model.EventConversationHandoff, model.HandoffEvent{
		TenantID:       tenantID,
		ConversationID: conversationID,
		OccurredAt:     time.Now().UTC(),
	})
	return conv, nil
}

// UpdateTenantSettings replaces the tenant's settings.
func (s *ConversationService) UpdateTenantSettings(ctx context.Context, tenantID string, settings map[string]any) (*model.Tenant, error) {
	tenant, err := s.store.UpdateTenantSettings(ctx, tenantID, settings)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update tenant settings: %w", err)
	}
	return tenant, nil
}

func (s *ConversationService) transition(ctx context.Context, tenantID, conversationID string, status model.ConversationStatus) (*model.Conversation, error) {
	conv, err := s.Get(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateConversationStatus(ctx, conversationID, status); err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	conv.Status = status

	s.logger.WithTurn(tenantID, conversationID).Info("conversation status changed",
		zap.String("status", string(status)),
	)
	return conv, nil
}

func (s *ConversationService) publish(ctx context.Context, name string, payload events.Scoped) {
	if err := s.events.Publish(ctx, name, payload); err != nil {
		metrics.EventPublishFailuresTotal.WithLabelValues(name).Inc()
		tenantID, conversationID := payload.Scope()
		s.logger.WithTurn(tenantID, conversationID).Warn("failed to publish event",
			zap.String("event", name),
			zap.Error(err),
		)
	}
}

func counterpartyKey(conv *model.Conversation) string {
	if conv.CustomerID != nil && *conv.CustomerID != "" {
		return cache.ConversationKey(conv.TenantID, *conv.CustomerID)
	}
	if sid, ok := conv.Metadata["session_id"].(string); ok && sid != "" {
		return cache.ConversationKey(conv.TenantID, sid)
	}
	return ""
}
