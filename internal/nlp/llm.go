package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/capitalize-ai/concierge-platform/internal/knowledge"
	"github.com/capitalize-ai/concierge-platform/internal/llm"
	"github.com/capitalize-ai/concierge-platform/internal/model"
	"github.com/capitalize-ai/concierge-platform/pkg/metrics"
)

// historyTurns is how many prior messages are sent to the model.
const historyTurns = 6

const classifySystemPrompt = `You classify customer messages for a small business assistant.
Known intents: faq.hours, faq.location, faq.pricing, booking.create, booking.cancel,
order.place, human.handoff, greeting, general.
Extract entities such as service, date (YYYY-MM-DD) and time (HH:MM) when present.
Reply with JSON: {"intent": string, "entities": object, "confidence": number between 0 and 1,
"sentiment": {"score": number, "magnitude": number}, "suggestions": [string]}.`

const generateSystemPrompt = `You are a friendly customer service assistant for a business.
Answer using only the provided knowledge when it is relevant. If you cannot answer, say so and
offer to connect the customer with a person.
Reply with JSON: {"content": string, "resolved": boolean}.`

// Generation is a free-form answer from the model.
type Generation struct {
	Content  string `json:"content"`
	Resolved bool   `json:"resolved"`
}

// Generator produces an answer for turns no specific handler owns.
type Generator interface {
	GenerateResponse(ctx context.Context, cls *model.ClassificationResult, cc *model.ConversationContext, snippets []knowledge.Snippet) (*Generation, error)
}

// LLM classifies and answers messages with a chat completion model.
type LLM struct {
	client      llm.Client
	model       string
	temperature float64
}

// NewLLM creates an LLM-backed classifier and generator.
func NewLLM(client llm.Client, model string, temperature float64) *LLM {
	return &LLM{client: client, model: model, temperature: temperature}
}

type llmClassification struct {
	Intent      string           `json:"intent"`
	Entities    map[string]any   `json:"entities"`
	Confidence  float64          `json:"confidence"`
	Sentiment   *model.Sentiment `json:"sentiment"`
	Suggestions []string         `json:"suggestions"`
}

// DetectIntent asks the model for a JSON classification.
func (l *LLM) DetectIntent(ctx context.Context, message string, cc *model.ConversationContext) (*ProviderResult, error) {
	msgs := historyMessages(cc)
	// the turn's user message is usually already the last history entry
	if n := len(msgs); n == 0 || msgs[n-1].Role != "user" || msgs[n-1].Content != message {
		msgs = append(msgs, llm.ChatMessage{Role: "user", Content: message})
	}

	resp, err := l.complete(ctx, classifySystemPrompt, msgs, 512)
	if err != nil {
		return nil, err
	}

	var out llmClassification
	if err := decodeJSON(resp.Content, &out); err != nil {
		return nil, fmt.Errorf("failed to parse classification: %w", err)
	}

	return &ProviderResult{
		Intent:      out.Intent,
		Entities:    out.Entities,
		Confidence:  out.Confidence,
		Sentiment:   out.Sentiment,
		Suggestions: out.Suggestions,
	}, nil
}

// GenerateResponse answers the customer using retrieved knowledge.
func (l *LLM) GenerateResponse(ctx context.Context, cls *model.ClassificationResult, cc *model.ConversationContext, snippets []knowledge.Snippet) (*Generation, error) {
	var sys strings.Builder
	sys.WriteString(generateSystemPrompt)
	if cls != nil {
		fmt.Fprintf(&sys, "\n\nDetected intent: %s", cls.Intent)
	}
	if len(snippets) > 0 {
		sys.WriteString("\n\nKnowledge:")
		for _, s := range snippets {
			fmt.Fprintf(&sys, "\n- %s: %s", s.Title, s.Content)
		}
	}

	msgs := historyMessages(cc)
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != "user" {
		return nil, fmt.Errorf("no customer message to answer")
	}

	resp, err := l.complete(ctx, sys.String(), msgs, 1024)
	if err != nil {
		return nil, err
	}

	var gen Generation
	if err := decodeJSON(resp.Content, &gen); err != nil || gen.Content == "" {
		// plain prose is still a usable answer
		return &Generation{Content: strings.TrimSpace(resp.Content)}, nil
	}
	return &gen, nil
}

func (l *LLM) complete(ctx context.Context, system string, msgs []llm.ChatMessage, maxTokens int) (*llm.CompletionResponse, error) {
	resp, err := l.client.Complete(ctx, &llm.CompletionRequest{
		Model:       l.model,
		System:      system,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: l.temperature,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s completion failed: %w", l.client.Name(), err)
	}
	metrics.RecordLLMUsage(resp.Model, resp.TokensIn, resp.TokensOut)
	return resp, nil
}

func historyMessages(cc *model.ConversationContext) []llm.ChatMessage {
	if cc == nil {
		return nil
	}
	history := cc.History
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	msgs := make([]llm.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		if m.Role == model.RoleSystem {
			continue
		}
		msgs = append(msgs, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return msgs
}

// decodeJSON extracts the outermost object from model output, repairing
// it when the model produced slightly malformed JSON.
func decodeJSON(s string, v any) error {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if i := strings.Index(s, "{"); i > 0 {
		s = s[i:]
	}
	if j := strings.LastIndex(s, "}"); j >= 0 && json.Valid([]byte(s[:j+1])) {
		s = s[:j+1]
	}

	if !json.Valid([]byte(s)) {
		repaired, err := jsonrepair.JSONRepair(s)
		if err != nil {
			return err
		}
		s = repaired
	}
	return json.Unmarshal([]byte(s), v)
}
