package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/capitalize-ai/concierge-platform/internal/model"
)

// RasaClassifier calls a Rasa NLU server's /model/parse endpoint.
type RasaClassifier struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewRasaClassifier creates a Rasa classifier. token may be empty.
func NewRasaClassifier(baseURL, token string, httpClient *http.Client) *RasaClassifier {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RasaClassifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

type rasaParseRequest struct {
	Text      string `json:"text"`
	MessageID string `json:"message_id,omitempty"`
}

type rasaParseResponse struct {
	Intent struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"intent"`
	Entities []struct {
		Entity string `json:"entity"`
		Value  any    `json:"value"`
	} `json:"entities"`
}

// DetectIntent parses the message with Rasa.
func (c *RasaClassifier) DetectIntent(ctx context.Context, message string, cc *model.ConversationContext) (*ProviderResult, error) {
	body, err := json.Marshal(rasaParseRequest{Text: message, MessageID: conversationID(cc)})
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/model/parse"
	if c.token != "" {
		endpoint += "?" + url.Values{"token": {c.token}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rasa request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rasa returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed rasaParseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode rasa response: %w", err)
	}

	entities := make(map[string]any, len(parsed.Entities))
	for _, e := range parsed.Entities {
		if e.Entity == "" {
			continue
		}
		addEntity(entities, e.Entity, e.Value)
	}

	return &ProviderResult{
		Intent:     parsed.Intent.Name,
		Entities:   entities,
		Confidence: parsed.Intent.Confidence,
	}, nil
}

// addEntity stores repeated entity names as a list.
func addEntity(entities map[string]any, name string, value any) {
	existing, ok := entities[name]
	if !ok {
		entities[name] = value
		return
	}
	if list, ok := existing.([]any); ok {
		entities[name] = append(list, value)
		return
	}
	entities[name] = []any{existing, value}
}
