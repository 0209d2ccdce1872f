// Package intent routes classified messages to the handler that owns the
// intent and builds the reply.
package intent

import (
	"context"

	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-platform/internal/model"
	"github.com/capitalize-ai/concierge-platform/pkg/logger"
)

// ClarifyThreshold is the confidence below which the router asks the
// customer to rephrase instead of acting.
const ClarifyThreshold = 0.5

const clarificationMessage = "I'm not quite sure what you're asking. Could you please rephrase that?"

// Intent names produced by the router and handlers.
const (
	IntentUnclear = "unclear"

	IntentBookingCreate       = "booking.create"
	IntentBookingCollect      = "booking.collect"
	IntentBookingConfirmed    = "booking.confirmed"
	IntentBookingAlternatives = "booking.alternatives"
	IntentBookingUnavailable  = "booking.unavailable"

	IntentFAQHours    = "faq.hours"
	IntentFAQLocation = "faq.location"
	IntentFAQPricing  = "faq.pricing"

	IntentHandoff    = "human.handoff"
	IntentOrderPlace = "order.place"
	IntentOrderStart = "order.start"
)

// Handler builds the reply for one intent.
type Handler interface {
	Handle(ctx context.Context, cls *model.ClassificationResult, cc *model.ConversationContext) (*model.TurnResponse, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, cls *model.ClassificationResult, cc *model.ConversationContext) (*model.TurnResponse, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, cls *model.ClassificationResult, cc *model.ConversationContext) (*model.TurnResponse, error) {
	return f(ctx, cls, cc)
}

// Router maps intent names to handlers.
type Router struct {
	handlers map[string]Handler
	// pending reply intent -> handler intent, for multi-turn flows
	continuations map[string]string
	fallback      Handler
	logger        *logger.Logger
}

// NewRouter creates a router. Intents without a handler go to fallback.
func NewRouter(fallback Handler, log *logger.Logger) *Router {
	if log == nil {
		log = logger.Nop()
	}
	return &Router{
		handlers:      make(map[string]Handler),
		continuations: make(map[string]string),
		fallback:      fallback,
		logger:        log,
	}
}

// Register installs h for intent, replacing any earlier handler.
func (r *Router) Register(intent string, h Handler) {
	r.handlers[intent] = h
}

// Continue routes a turn to target's handler when the previous assistant
// reply had intent pending and the new message carries entities but no
// intent of its own that the router knows.
func (r *Router) Continue(pending, target string) {
	r.continuations[pending] = target
}

// Dispatch builds the reply for a classified message.
func (r *Router) Dispatch(ctx context.Context, cls *model.ClassificationResult, cc *model.ConversationContext) (*model.TurnResponse, error) {
	if cls == nil || cls.Confidence < ClarifyThreshold {
		confidence := 0.0
		if cls != nil {
			confidence = cls.Confidence
		}
		return &model.TurnResponse{
			Content:  clarificationMessage,
			Metadata: map[string]any{"intent": IntentUnclear, "confidence": confidence},
			Resolved: false,
		}, nil
	}

	name, h := r.resolve(cls, cc)
	r.logger.Debug("dispatching intent",
		zap.String("intent", cls.Intent),
		zap.String("handler", name),
	)

	resp, err := h.Handle(ctx, cls, cc)
	if err != nil {
		return nil, err
	}
	if resp.Metadata == nil {
		resp.Metadata = map[string]any{}
	}
	if _, ok := resp.Metadata["intent"]; !ok {
		resp.Metadata["intent"] = cls.Intent
	}
	return resp, nil
}

func (r *Router) resolve(cls *model.ClassificationResult, cc *model.ConversationContext) (string, Handler) {
	if h, ok := r.handlers[cls.Intent]; ok {
		return cls.Intent, h
	}
	if len(cls.Entities) > 0 {
		if target, ok := r.continuations[lastAssistantIntent(cc)]; ok {
			if h, ok := r.handlers[target]; ok {
				return target, h
			}
		}
	}
	return "default", r.fallback
}

func lastAssistantIntent(cc *model.ConversationContext) string {
	if cc == nil {
		return ""
	}
	for i := len(cc.History) - 1; i >= 0; i-- {
		m := cc.History[i]
		if m.Role != model.RoleAssistant {
			continue
		}
		s, _ := m.Metadata["intent"].(string)
		return s
	}
	return ""
}
