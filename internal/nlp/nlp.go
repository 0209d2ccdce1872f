// Package nlp classifies customer messages through an ordered cascade of
// intent providers and generates free-form answers.
package nlp

import (
	"context"
	"math"

	"github.com/capitalize-ai/concierge-platform/internal/model"
)

// Intent names the cascade itself produces.
const (
	IntentUnknown  = "unknown"
	IntentFallback = "fallback"
)

// ProviderResult is a raw provider answer before normalization.
type ProviderResult struct {
	Intent      string
	Entities    map[string]any
	Confidence  float64
	Sentiment   *model.Sentiment
	Suggestions []string
}

// Classifier detects the intent of one message. A nil result with a nil
// error means the provider has no opinion and the cascade moves on.
type Classifier interface {
	DetectIntent(ctx context.Context, message string, cc *model.ConversationContext) (*ProviderResult, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, message string, cc *model.ConversationContext) (*ProviderResult, error)

// DetectIntent calls f.
func (f ClassifierFunc) DetectIntent(ctx context.Context, message string, cc *model.ConversationContext) (*ProviderResult, error) {
	return f(ctx, message, cc)
}

// normalize fills defaults and clamps confidence into [0,1].
func normalize(r *ProviderResult, source string) *model.ClassificationResult {
	out := &model.ClassificationResult{
		Intent:   IntentUnknown,
		Entities: map[string]any{},
		Source:   source,
	}
	if r == nil {
		return out
	}
	if r.Intent != "" {
		out.Intent = r.Intent
	}
	for k, v := range r.Entities {
		out.Entities[k] = v
	}
	out.Confidence = clamp(r.Confidence)
	out.Sentiment = r.Sentiment
	out.Suggestions = r.Suggestions
	return out
}

func clamp(c float64) float64 {
	switch {
	case math.IsNaN(c), c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// Fallback is the result returned when classification faults.
func Fallback() *model.ClassificationResult {
	return &model.ClassificationResult{
		Intent:     IntentFallback,
		Entities:   map[string]any{},
		Confidence: 0,
		Source:     IntentFallback,
	}
}

func conversationID(cc *model.ConversationContext) string {
	if cc == nil {
		return ""
	}
	return cc.ConversationID
}
