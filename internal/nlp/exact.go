package nlp

import (
	"context"
	"strings"

	"github.com/capitalize-ai/concierge-platform/internal/model"
)

// Pattern maps a phrase to an intent.
type Pattern struct {
	Phrase string
	Intent string
}

// DefaultPatterns are tested in order, first hit wins.
var DefaultPatterns = []Pattern{
	{Phrase: "what are your hours", Intent: "faq.hours"},
	{Phrase: "where are you located", Intent: "faq.location"},
	{Phrase: "how much does it cost", Intent: "faq.pricing"},
	{Phrase: "book appointment", Intent: "booking.create"},
	{Phrase: "cancel appointment", Intent: "booking.cancel"},
}

// ExactMatcher resolves well-known phrases without calling a provider.
type ExactMatcher struct {
	patterns []Pattern
}

// NewExactMatcher creates a matcher. Nil patterns select DefaultPatterns.
func NewExactMatcher(patterns []Pattern) *ExactMatcher {
	if patterns == nil {
		patterns = DefaultPatterns
	}
	normalized := make([]Pattern, 0, len(patterns))
	for _, p := range patterns {
		phrase := strings.ToLower(strings.TrimSpace(p.Phrase))
		if phrase == "" || p.Intent == "" {
			continue
		}
		normalized = append(normalized, Pattern{Phrase: phrase, Intent: p.Intent})
	}
	return &ExactMatcher{patterns: normalized}
}

// DetectIntent returns confidence 1 on a substring hit and nil otherwise.
func (m *ExactMatcher) DetectIntent(ctx context.Context, message string, cc *model.ConversationContext) (*ProviderResult, error) {
	text := strings.ToLower(strings.TrimSpace(message))
	for _, p := range m.patterns {
		if strings.Contains(text, p.Phrase) {
			return &ProviderResult{
				Intent:     p.Intent,
				Entities:   map[string]any{},
				Confidence: 1.0,
			}, nil
		}
	}
	return nil, nil
}
