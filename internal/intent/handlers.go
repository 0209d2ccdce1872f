package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-platform/internal/events"
	"github.com/capitalize-ai/concierge-platform/internal/knowledge"
	"github.com/capitalize-ai/concierge-platform/internal/model"
	"github.com/capitalize-ai/concierge-platform/internal/nlp"
	"github.com/capitalize-ai/concierge-platform/internal/store"
	"github.com/capitalize-ai/concierge-platform/pkg/logger"
)

// Reply sources recorded in response metadata.
const (
	SourceKnowledgeBase = "knowledge_base"
	SourceNotFound      = "not_found"
	SourceAIGenerated   = "ai_generated"
)

const noGeneratorMessage = "I'm not sure I can help with that. Would you like me to connect you with a team member?"

const faqNotFoundMessage = "I don't have that information right now. Would you like me to connect you with someone who can help?"

// KnowledgeFinder looks up a single knowledge entry.
type KnowledgeFinder interface {
	FindKnowledgeEntry(ctx context.Context, tenantID, category, key string) (*model.KnowledgeEntry, error)
}

// FAQHandler answers faq.<topic> intents from the tenant's FAQ entries.
type FAQHandler struct {
	knowledge KnowledgeFinder
}

// NewFAQHandler creates an FAQ handler.
func NewFAQHandler(kf KnowledgeFinder) *FAQHandler {
	return &FAQHandler{knowledge: kf}
}

// Handle implements Handler.
func (h *FAQHandler) Handle(ctx context.Context, cls *model.ClassificationResult, cc *model.ConversationContext) (*model.TurnResponse, error) {
	topic := strings.TrimPrefix(cls.Intent, "faq.")

	entry, err := h.knowledge.FindKnowledgeEntry(ctx, cc.TenantID, model.KnowledgeCategoryFAQ, topic)
	switch {
	case err == nil:
		return &model.TurnResponse{
			Content:  entry.Content,
			Metadata: map[string]any{"intent": cls.Intent, "source": SourceKnowledgeBase},
			Resolved: true,
		}, nil
	case errors.Is(err, store.ErrNotFound):
		return &model.TurnResponse{
			Content:  faqNotFoundMessage,
			Metadata: map[string]any{"intent": cls.Intent, "source": SourceNotFound},
			Resolved: false,
		}, nil
	default:
		return nil, fmt.Errorf("failed to find faq %s: %w", topic, err)
	}
}

// StatusUpdater changes a conversation's status.
type StatusUpdater interface {
	UpdateConversationStatus(ctx context.Context, conversationID string, status model.ConversationStatus) error
}

// HandoffHandler marks the conversation for a human operator.
type HandoffHandler struct {
	conversations StatusUpdater
	events        events.Sink
	logger        *logger.Logger
}

// NewHandoffHandler creates a handoff handler.
func NewHandoffHandler(conversations StatusUpdater, sink events.Sink, log *logger.Logger) *HandoffHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &HandoffHandler{conversations: conversations, events: sink, logger: log}
}

// Handle implements Handler.
func (h *HandoffHandler) Handle(ctx context.Context, cls *model.ClassificationResult, cc *model.ConversationContext) (*model.TurnResponse, error) {
	if err := h.conversations.UpdateConversationStatus(ctx, cc.ConversationID, model.StatusPendingHandoff); err != nil {
		return nil, fmt.Errorf("failed to mark handoff: %w", err)
	}

	ev := model.HandoffEvent{TenantID: cc.TenantID, ConversationID: cc.ConversationID, OccurredAt: time.Now().UTC()}
	if err := h.events.Publish(ctx, model.EventConversationHandoff, ev); err != nil {
		h.logger.WithTurn(cc.TenantID, cc.ConversationID).Warn("failed to publish handoff event", zap.Error(err))
	}

	return &model.TurnResponse{
		Content:  "I'm connecting you with a team member who can better assist you. They'll be with you shortly!",
		Metadata: map[string]any{"intent": IntentHandoff, "status": "initiated"},
		Resolved: false,
	}, nil
}

// OrderHandler starts the order flow.
type OrderHandler struct{}

// Handle implements Handler.
func (OrderHandler) Handle(ctx context.Context, cls *model.ClassificationResult, cc *model.ConversationContext) (*model.TurnResponse, error) {
	return &model.TurnResponse{
		Content:  "I can help you place an order! What would you like to order today?",
		Metadata: map[string]any{"intent": IntentOrderStart},
		Resolved: false,
	}, nil
}

// GeneralHandler answers anything without a dedicated handler by
// generating a reply grounded in the tenant's knowledge.
type GeneralHandler struct {
	retriever knowledge.Retriever
	generator nlp.Generator
	logger    *logger.Logger
}

// NewGeneralHandler creates the default handler.
func NewGeneralHandler(retriever knowledge.Retriever, generator nlp.Generator, log *logger.Logger) *GeneralHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GeneralHandler{retriever: retriever, generator: generator, logger: log}
}

// Handle implements Handler.
func (h *GeneralHandler) Handle(ctx context.Context, cls *model.ClassificationResult, cc *model.ConversationContext) (*model.TurnResponse, error) {
	snippets, err := h.retriever.SearchSimilar(ctx, cls.Intent, cc.TenantID)
	if err != nil {
		// answer without grounding rather than fail the turn
		h.logger.WithTurn(cc.TenantID, cc.ConversationID).Warn("knowledge search failed", zap.Error(err))
		snippets = nil
	}

	if h.generator == nil {
		return &model.TurnResponse{
			Content:  noGeneratorMessage,
			Metadata: map[string]any{"intent": cls.Intent, "confidence": cls.Confidence, "source": SourceNotFound},
			Resolved: false,
		}, nil
	}

	gen, err := h.generator.GenerateResponse(ctx, cls, cc, snippets)
	if err != nil {
		return nil, fmt.Errorf("failed to generate response: %w", err)
	}

	return &model.TurnResponse{
		Content: gen.Content,
		Metadata: map[string]any{
			"intent":     cls.Intent,
			"confidence": cls.Confidence,
			"source":     SourceAIGenerated,
		},
		Resolved: gen.Resolved,
	}, nil
}

// Deps are the collaborators NewDefaultRouter wires into handlers.
type Deps struct {
	Bookings      BookingService
	Knowledge     KnowledgeFinder
	Conversations StatusUpdater
	Events        events.Sink
	Retriever     knowledge.Retriever
	Generator     nlp.Generator
	Logger        *logger.Logger
}

// NewDefaultRouter registers the standard handler set.
func NewDefaultRouter(d Deps) *Router {
	r := NewRouter(NewGeneralHandler(d.Retriever, d.Generator, d.Logger), d.Logger)

	r.Register(IntentBookingCreate, NewBookingHandler(d.Bookings))
	faq := NewFAQHandler(d.Knowledge)
	for _, name := range []string{IntentFAQHours, IntentFAQLocation, IntentFAQPricing} {
		r.Register(name, faq)
	}
	r.Register(IntentHandoff, NewHandoffHandler(d.Conversations, d.Events, d.Logger))
	r.Register(IntentOrderPlace, OrderHandler{})

	r.Continue(IntentBookingCollect, IntentBookingCreate)
	r.Continue(IntentBookingAlternatives, IntentBookingCreate)
	r.Continue(IntentBookingUnavailable, IntentBookingCreate)
	return r
}
