package service

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-platform/internal/channel"
	"github.com/capitalize-ai/concierge-platform/internal/events"
	"github.com/capitalize-ai/concierge-platform/internal/model"
	"github.com/capitalize-ai/concierge-platform/internal/store"
	"github.com/capitalize-ai/concierge-platform/pkg/logger"
	"github.com/capitalize-ai/concierge-platform/pkg/metrics"
	"github.com/capitalize-ai/concierge-platform/pkg/tracing"
)

// TurnRequest is one inbound customer message.
type TurnRequest struct {
	TenantID   string        `json:"tenant_id"`
	Channel    model.Channel `json:"channel"`
	Message    string        `json:"message"`
	CustomerID string        `json:"customer_id,omitempty"`
	SessionID  string        `json:"session_id,omitempty"`
}

// counterparty is who the conversation is with: the customer when known,
// otherwise the anonymous session.
func (r TurnRequest) counterparty() string {
	if r.CustomerID != "" {
		return r.CustomerID
	}
	return r.SessionID
}

// Classifier assigns an intent to a message. It never fails.
type Classifier interface {
	Classify(ctx context.Context, message string, cc *model.ConversationContext, tenantID string) *model.ClassificationResult
}

// Dispatcher turns a classification into a reply.
type Dispatcher interface {
	Dispatch(ctx context.Context, cls *model.ClassificationResult, cc *model.ConversationContext) (*model.TurnResponse, error)
}

// OperatorUpdate is broadcast to a tenant's operators after every turn.
type OperatorUpdate struct {
	Type           string        `json:"type"`
	TenantID       string        `json:"tenant_id"`
	ConversationID string        `json:"conversation_id"`
	Channel        model.Channel `json:"channel"`
	UserMessage    string        `json:"user_message"`
	Reply          string        `json:"reply"`
	Intent         string        `json:"intent"`
	Resolved       bool          `json:"resolved"`
	Timestamp      time.Time     `json:"timestamp"`
}

// TurnService runs the per-message pipeline: resolve the conversation,
// record the message, classify, dispatch, record the reply, deliver it
// and emit the analytics event.
type TurnService struct {
	conversations *ConversationService
	store         store.Store
	classifier    Classifier
	router        Dispatcher
	sink          channel.Sink
	operators     channel.Broadcaster
	events        events.Sink
	locks         *keyedMutex
	logger        *logger.Logger
}

// TurnDeps are the collaborators of a TurnService.
type TurnDeps struct {
	Conversations *ConversationService
	Store         store.Store
	Classifier    Classifier
	Router        Dispatcher
	Sink          channel.Sink
	Operators     channel.Broadcaster
	Events        events.Sink
	Logger        *logger.Logger
}

// NewTurnService creates a turn service.
func NewTurnService(d TurnDeps) *TurnService {
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	return &TurnService{
		conversations: d.Conversations,
		store:         d.Store,
		classifier:    d.Classifier,
		router:        d.Router,
		sink:          d.Sink,
		operators:     d.Operators,
		events:        d.Events,
		locks:         newKeyedMutex(),
		logger:        d.Logger,
	}
}

// ProcessTurn handles one customer message end to end. Turns from the same
// counterparty of the same tenant run one at a time.
func (s *TurnService) ProcessTurn(ctx context.Context, req TurnRequest) (*model.TurnResponse, error) {
	start := time.Now()

	ctx, span := tracing.Tracer().Start(ctx, "turn.process")
	defer span.End()

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidTurn)
	}
	counterparty := req.counterparty()
	if counterparty == "" {
		return nil, fmt.Errorf("%w: customer or session id required", ErrInvalidTurn)
	}
	ch := req.Channel
	if ch == "" {
		ch = model.ChannelWeb
	}

	tenant, err := s.conversations.ResolveTenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(tenant.ID + ":" + counterparty)
	defer unlock()

	span.SetAttributes(
		attribute.String("tenant.id", tenant.ID),
		attribute.String("channel", string(ch)),
	)

	fail := func(step string, err error) error {
		metrics.RecordTurnFailure(string(ch), step, time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, step)
		return err
	}

	var customerID *string
	if req.CustomerID != "" {
		customerID = &req.CustomerID
	}
	conv, err := s.conversations.ResolveOrCreate(ctx, tenant.ID, ch, counterparty, customerID, req.SessionID)
	if err != nil {
		s.logger.WithTenant(tenant.ID).Error("failed to resolve conversation", zap.Error(err))
		return nil, fail("resolve", err)
	}

	log := s.logger.WithTurn(tenant.ID, conv.ID)

	if _, err := s.store.AppendMessage(ctx, conv.ID, model.RoleUser, message, map[string]any{"channel": string(ch)}); err != nil {
		log.Error("failed to save user message", zap.Error(err))
		return nil, fail("append_user", fmt.Errorf("failed to save user message: %w", err))
	}
	metrics.MessagesTotal.WithLabelValues(tenant.ID, string(model.RoleUser)).Inc()

	history, err := s.store.RecentMessages(ctx, conv.ID, model.ContextWindow)
	if err != nil {
		log.Error("failed to load context", zap.Error(err))
		return nil, fail("context", fmt.Errorf("failed to load context: %w", err))
	}

	cc := &model.ConversationContext{
		ConversationID: conv.ID,
		TenantID:       tenant.ID,
		Channel:        ch,
		CustomerID:     req.CustomerID,
		SessionID:      req.SessionID,
		History:        history,
		Metadata:       maps.Clone(conv.Metadata),
	}

	cls := s.classifier.Classify(ctx, message, cc, tenant.ID)
	span.SetAttributes(
		attribute.String("conversation.id", conv.ID),
		attribute.String("intent", cls.Intent),
		attribute.Float64("confidence", cls.Confidence),
	)

	resp, err := s.router.Dispatch(ctx, cls, cc)
	if err != nil {
		log.Error("failed to handle intent", zap.String("intent", cls.Intent), zap.Error(err))
		return nil, fail("dispatch", fmt.Errorf("failed to handle intent %s: %w", cls.Intent, err))
	}

	if _, err := s.store.AppendMessage(ctx, conv.ID, model.RoleAssistant, resp.Content, resp.Metadata); err != nil {
		log.Error("failed to save assistant message", zap.Error(err))
		return nil, fail("append_assistant", fmt.Errorf("failed to save assistant message: %w", err))
	}
	metrics.MessagesTotal.WithLabelValues(tenant.ID, string(model.RoleAssistant)).Inc()

	s.deliver(ctx, log, conv, ch, counterparty, message, resp)

	ev := model.TurnEvent{
		TenantID:       tenant.ID,
		ConversationID: conv.ID,
		Intent:         cls.Intent,
		Confidence:     cls.Confidence,
		Resolved:       resp.Resolved,
		Channel:        ch,
		OccurredAt:     time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, model.EventConversationMessage, ev); err != nil {
		metrics.EventPublishFailuresTotal.WithLabelValues(model.EventConversationMessage).Inc()
		log.Warn("failed to publish turn event", zap.Error(err))
	}

	elapsed := time.Since(start)
	metrics.RecordTurn(tenant.ID, string(ch), cls.Intent, resp.Resolved, elapsed.Seconds())
	log.Info("turn processed",
		zap.String("intent", cls.Intent),
		zap.String("source", cls.Source),
		zap.Float64("confidence", cls.Confidence),
		zap.Bool("resolved", resp.Resolved),
		zap.Duration("duration", elapsed),
	)

	return resp, nil
}

// deliver sends the reply and mirrors the turn to operators. The reply is
// already persisted, so failures here are logged only.
func (s *TurnService) deliver(ctx context.Context, log *logger.Logger, conv *model.Conversation, ch model.Channel, recipient, message string, resp *model.TurnResponse) {
	ctx = channel.WithScope(ctx, conv.TenantID, conv.ID)

	if s.sink != nil {
		if err := s.sink.Send(ctx, ch, recipient, resp); err != nil {
			metrics.DeliveryFailuresTotal.WithLabelValues(string(ch)).Inc()
			log.Warn("failed to deliver reply", zap.String("channel", string(ch)), zap.Error(err))
		}
	}

	if s.operators != nil {
		update := OperatorUpdate{
			Type:           model.EventConversationMessage,
			TenantID:       conv.TenantID,
			ConversationID: conv.ID,
			Channel:        ch,
			UserMessage:    message,
			Reply:          resp.Content,
			Intent:         resp.Intent(),
			Resolved:       resp.Resolved,
			Timestamp:      time.Now().UTC(),
		}
		if err := s.operators.Broadcast(ctx, conv.TenantID, update); err != nil {
			log.Debug("operator broadcast failed", zap.Error(err))
		}
	}
}
