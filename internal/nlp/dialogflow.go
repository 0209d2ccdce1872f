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

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/capitalize-ai/concierge-platform/internal/model"
)

const dialogflowEndpoint = "https://dialogflow.googleapis.com/v2"

// DialogflowScope is the OAuth scope detectIntent requires.
const DialogflowScope = "https://www.googleapis.com/auth/dialogflow"

// DialogflowConfig holds Dialogflow ES settings.
type DialogflowConfig struct {
	ProjectID    string
	LanguageCode string
	// Endpoint overrides the API base URL.
	Endpoint string
}

// DialogflowClassifier calls the Dialogflow ES detectIntent REST method.
// The conversation id is used as the session id. Authentication is the
// http.Client's job, see NewDialogflowHTTPClient.
type DialogflowClassifier struct {
	cfg        DialogflowConfig
	httpClient *http.Client
}

// NewDialogflowClassifier creates a Dialogflow classifier.
func NewDialogflowClassifier(cfg DialogflowConfig, httpClient *http.Client) *DialogflowClassifier {
	if cfg.Endpoint == "" {
		cfg.Endpoint = dialogflowEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &DialogflowClassifier{cfg: cfg, httpClient: httpClient}
}

// NewDialogflowHTTPClient wraps base so every request carries a Google
// access token. Tokens come from Application Default Credentials and are
// refreshed before they expire. A non-empty staticToken is used as is,
// which only suits local development.
func NewDialogflowHTTPClient(ctx context.Context, base *http.Client, staticToken string) (*http.Client, error) {
	var src oauth2.TokenSource
	if staticToken != "" {
		src = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: staticToken, TokenType: "Bearer"})
	} else {
		creds, err := google.FindDefaultCredentials(ctx, DialogflowScope)
		if err != nil {
			return nil, fmt.Errorf("failed to find google credentials: %w", err)
		}
		src = creds.TokenSource
	}
	return tokenClient(base, src), nil
}

func tokenClient(base *http.Client, src oauth2.TokenSource) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &http.Client{
		Timeout: base.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.ReuseTokenSource(nil, src),
			Base:   transport,
		},
	}
}

type detectIntentRequest struct {
	QueryInput struct {
		Text struct {
			Text         string `json:"text"`
			LanguageCode string `json:"languageCode"`
		} `json:"text"`
	} `json:"queryInput"`
}

type detectIntentResponse struct {
	QueryResult struct {
		Intent struct {
			DisplayName string `json:"displayName"`
		} `json:"intent"`
		IntentDetectionConfidence float64        `json:"intentDetectionConfidence"`
		Parameters                map[string]any `json:"parameters"`
		SentimentAnalysisResult   *struct {
			QueryTextSentiment model.Sentiment `json:"queryTextSentiment"`
		} `json:"sentimentAnalysisResult"`
		FulfillmentMessages []struct {
			Text struct {
				Text []string `json:"text"`
			} `json:"text"`
		} `json:"fulfillmentMessages"`
	} `json:"queryResult"`
}

// DetectIntent runs detectIntent for the conversation's session.
func (c *DialogflowClassifier) DetectIntent(ctx context.Context, message string, cc *model.ConversationContext) (*ProviderResult, error) {
	session := conversationID(cc)
	if session == "" {
		session = "anonymous"
	}

	var body detectIntentRequest
	body.QueryInput.Text.Text = message
	body.QueryInput.Text.LanguageCode = c.cfg.LanguageCode

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/projects/%s/agent/sessions/%s:detectIntent",
		c.cfg.Endpoint, url.PathEscape(c.cfg.ProjectID), url.PathEscape(session))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dialogflow request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("dialogflow returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed detectIntentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode dialogflow response: %w", err)
	}

	qr := parsed.QueryResult
	entities := make(map[string]any, len(qr.Parameters))
	for k, v := range qr.Parameters {
		// unfilled parameters come back as empty strings
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		entities[k] = v
	}

	result := &ProviderResult{
		Intent:     qr.Intent.DisplayName,
		Entities:   entities,
		Confidence: qr.IntentDetectionConfidence,
	}
	if qr.SentimentAnalysisResult != nil {
		s := qr.SentimentAnalysisResult.QueryTextSentiment
		result.Sentiment = &s
	}
	for _, m := range qr.FulfillmentMessages {
		result.Suggestions = append(result.Suggestions, m.Text.Text...)
	}
	return result, nil
}
