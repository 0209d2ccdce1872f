package model

// ContextWindow is how many recent messages a turn sees.
const ContextWindow = 10

// ConversationContext is the read projection handed to classifiers and
// intent handlers. It is rebuilt from the message log on every turn.
type ConversationContext struct {
	ConversationID string         `json:"conversation_id"`
	TenantID       string         `json:"tenant_id"`
	Channel        Channel        `json:"channel"`
	CustomerID     string         `json:"customer_id,omitempty"`
	SessionID      string         `json:"session_id,omitempty"`
	History        []Message      `json:"history"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Sentiment is an optional provider sentiment estimate.
type Sentiment struct {
	Score     float64 `json:"score"`
	Magnitude float64 `json:"magnitude"`
}

// ClassificationResult is the normalized output of the intent cascade.
type ClassificationResult struct {
	Intent      string         `json:"intent"`
	Entities    map[string]any `json:"entities"`
	Confidence  float64        `json:"confidence"`
	Sentiment   *Sentiment     `json:"sentiment,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Source      string         `json:"source,omitempty"`
}

// Entity returns a string entity value, or "" if absent or empty.
func (c *ClassificationResult) Entity(name string) string {
	if c == nil || c.Entities == nil {
		return ""
	}
	return stringValue(c.Entities[name])
}

// TurnResponse is what a turn produces for the counterparty.
type TurnResponse struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Resolved bool           `json:"resolved"`
}

// Intent returns the intent recorded in the response metadata.
func (r *TurnResponse) Intent() string {
	if r == nil || r.Metadata == nil {
		return ""
	}
	return stringValue(r.Metadata["intent"])
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case []any:
		if len(s) > 0 {
			return stringValue(s[0])
		}
		return ""
	case map[string]any:
		// Dialogflow date-time and period entities
		for _, key := range []string{"date_time", "startDateTime", "startDate", "startTime"} {
			if v := stringValue(s[key]); v != "" {
				return v
			}
		}
		return ""
	default:
		return ""
	}
}
