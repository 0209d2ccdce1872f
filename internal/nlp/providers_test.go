package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/capitalize-ai/concierge-platform/internal/knowledge"
	"github.com/capitalize-ai/concierge-platform/internal/llm"
	"github.com/capitalize-ai/concierge-platform/internal/model"
)

func TestRasaClassifier(t *testing.T) {
	var got rasaParseRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/model/parse", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{
			"intent": {"name": "booking.create", "confidence": 0.93},
			"entities": [
				{"entity": "service", "value": "haircut"},
				{"entity": "date", "value": "2025-03-01"},
				{"entity": "date", "value": "2025-03-02"}
			]
		}`))
	}))
	defer srv.Close()

	c := NewRasaClassifier(srv.URL+"/", "secret", srv.Client())
	res, err := c.DetectIntent(context.Background(), "book a haircut", &model.ConversationContext{ConversationID: "conv-1"})
	require.NoError(t, err)

	assert.Equal(t, "book a haircut", got.Text)
	assert.Equal(t, "conv-1", got.MessageID)
	assert.Equal(t, "booking.create", res.Intent)
	assert.Equal(t, 0.93, res.Confidence)
	assert.Equal(t, "haircut", res.Entities["service"])
	assert.Equal(t, []any{"2025-03-01", "2025-03-02"}, res.Entities["date"])
}

func TestRasaClassifierEscapesToken(t *testing.T) {
	const token = "a&b=c d+e"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, token, r.URL.Query().Get("token"))
		assert.Len(t, r.URL.Query(), 1)
		_, _ = w.Write([]byte(`{"intent": {"name": "greeting", "confidence": 0.9}}`))
	}))
	defer srv.Close()

	res, err := NewRasaClassifier(srv.URL, token, srv.Client()).DetectIntent(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "greeting", res.Intent)
}

func TestRasaClassifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewRasaClassifier(srv.URL, "", nil).DetectIntent(context.Background(), "hi", nil)
	assert.ErrorContains(t, err, "503")
}

func TestDialogflowClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/acme/agent/sessions/conv-9:detectIntent", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body detectIntentRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "I want a massage tomorrow", body.QueryInput.Text.Text)
		assert.Equal(t, "en", body.QueryInput.Text.LanguageCode)

		_, _ = w.Write([]byte(`{"queryResult": {
			"intent": {"displayName": "booking.create"},
			"intentDetectionConfidence": 0.75,
			"parameters": {"service": "massage", "time": ""},
			"sentimentAnalysisResult": {"queryTextSentiment": {"score": 0.4, "magnitude": 0.6}},
			"fulfillmentMessages": [{"text": {"text": ["What time works for you?"]}}]
		}}`))
	}))
	defer srv.Close()

	httpClient, err := NewDialogflowHTTPClient(context.Background(), srv.Client(), "tok")
	require.NoError(t, err)
	c := NewDialogflowClassifier(DialogflowConfig{ProjectID: "acme", Endpoint: srv.URL}, httpClient)
	res, err := c.DetectIntent(context.Background(), "I want a massage tomorrow", &model.ConversationContext{ConversationID: "conv-9"})
	require.NoError(t, err)

	assert.Equal(t, "booking.create", res.Intent)
	assert.Equal(t, 0.75, res.Confidence)
	assert.Equal(t, map[string]any{"service": "massage"}, res.Entities)
	require.NotNil(t, res.Sentiment)
	assert.Equal(t, 0.4, res.Sentiment.Score)
	assert.Equal(t, []string{"What time works for you?"}, res.Suggestions)
}

type sequenceTokenSource struct {
	n int
}

// Token hands out already expired tokens, so each request needs a new one.
func (s *sequenceTokenSource) Token() (*oauth2.Token, error) {
	s.n++
	return &oauth2.Token{
		AccessToken: fmt.Sprintf("tok-%d", s.n),
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(-time.Minute),
	}, nil
}

func TestDialogflowClientRefreshesExpiredToken(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		_, _ = w.Write([]byte(`{"queryResult": {"intent": {"displayName": "greeting"}, "intentDetectionConfidence": 0.9}}`))
	}))
	defer srv.Close()

	src := &sequenceTokenSource{}
	c := NewDialogflowClassifier(DialogflowConfig{ProjectID: "acme", Endpoint: srv.URL}, tokenClient(srv.Client(), src))
	for i := 0; i < 2; i++ {
		_, err := c.DetectIntent(context.Background(), "hello", &model.ConversationContext{ConversationID: "conv-1"})
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Bearer tok-1", "Bearer tok-2"}, seen)
}

func TestDialogflowClientKeepsValidToken(t *testing.T) {
	calls := 0
	src := oauth2.TokenSource(tokenSourceFunc(func() (*oauth2.Token, error) {
		calls++
		return &oauth2.Token{AccessToken: "fresh", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}, nil
	}))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"queryResult": {"intent": {"displayName": "greeting"}, "intentDetectionConfidence": 0.9}}`))
	}))
	defer srv.Close()

	c := NewDialogflowClassifier(DialogflowConfig{ProjectID: "acme", Endpoint: srv.URL}, tokenClient(srv.Client(), src))
	for i := 0; i < 3; i++ {
		_, err := c.DetectIntent(context.Background(), "hello", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)
}

type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) { return f() }

type fakeLLM struct {
	content string
	err     error
	reqs    []*llm.CompletionRequest
}

func (f *fakeLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content, Model: "test-model", TokensIn: 10, TokensOut: 5}, nil
}

func (f *fakeLLM) Name() string { return "fake" }

func TestLLMDetectIntentRepairsJSON(t *testing.T) {
	client := &fakeLLM{content: "```json\n{\"intent\": \"booking.create\", \"entities\": {\"service\": \"facial\",}, \"confidence\": 0.66\n```"}
	l := NewLLM(client, "m", 0)

	// history already ends with the current message, as built by the turn pipeline
	cc := &model.ConversationContext{History: []model.Message{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleSystem, Content: "internal"},
		{Role: model.RoleAssistant, Content: "hello!"},
		{Role: model.RoleUser, Content: "a facial please"},
	}}
	res, err := l.DetectIntent(context.Background(), "a facial please", cc)
	require.NoError(t, err)

	assert.Equal(t, "booking.create", res.Intent)
	assert.Equal(t, "facial", res.Entities["service"])
	assert.Equal(t, 0.66, res.Confidence)

	require.Len(t, client.reqs, 1)
	req := client.reqs[0]
	assert.True(t, req.JSON)
	assert.Equal(t, []llm.ChatMessage{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello!"},
		{Role: "user", Content: "a facial please"},
	}, req.Messages)
}

func TestLLMDetectIntentAppendsMissingMessage(t *testing.T) {
	tests := []struct {
		name    string
		history []model.Message
		want    []llm.ChatMessage
	}{
		{
			name: "no history",
			want: []llm.ChatMessage{{Role: "user", Content: "book a massage"}},
		},
		{
			name:    "history ends with assistant",
			history: []model.Message{{Role: model.RoleUser, Content: "hi"}, {Role: model.RoleAssistant, Content: "hello!"}},
			want: []llm.ChatMessage{
				{Role: "user", Content: "hi"},
				{Role: "assistant", Content: "hello!"},
				{Role: "user", Content: "book a massage"},
			},
		},
		{
			name:    "history ends with a different user message",
			history: []model.Message{{Role: model.RoleUser, Content: "hi"}},
			want: []llm.ChatMessage{
				{Role: "user", Content: "hi"},
				{Role: "user", Content: "book a massage"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeLLM{content: `{"intent": "booking.create", "confidence": 0.9}`}
			_, err := NewLLM(client, "m", 0).DetectIntent(context.Background(), "book a massage", &model.ConversationContext{History: tt.history})
			require.NoError(t, err)
			require.Len(t, client.reqs, 1)
			assert.Equal(t, tt.want, client.reqs[0].Messages)
		})
	}
}

func TestLLMDetectIntentProviderError(t *testing.T) {
	boom := errors.New("overloaded")
	_, err := NewLLM(&fakeLLM{err: boom}, "m", 0).DetectIntent(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, boom)
}

func TestLLMGenerateResponse(t *testing.T) {
	client := &fakeLLM{content: `{"content": "We open at 9.", "resolved": true}`}
	l := NewLLM(client, "m", 0.3)

	cc := &model.ConversationContext{History: []model.Message{{Role: model.RoleUser, Content: "when do you open"}}}
	gen, err := l.GenerateResponse(context.Background(),
		&model.ClassificationResult{Intent: "general"},
		cc,
		[]knowledge.Snippet{{Title: "hours", Content: "9am to 5pm"}},
	)
	require.NoError(t, err)

	assert.Equal(t, &Generation{Content: "We open at 9.", Resolved: true}, gen)
	assert.Contains(t, client.reqs[0].System, "hours: 9am to 5pm")
	assert.Contains(t, client.reqs[0].System, "Detected intent: general")
}

func TestLLMGenerateResponsePlainText(t *testing.T) {
	l := NewLLM(&fakeLLM{content: "  Sure, happy to help.  "}, "m", 0)
	cc := &model.ConversationContext{History: []model.Message{{Role: model.RoleUser, Content: "hey"}}}

	gen, err := l.GenerateResponse(context.Background(), nil, cc, nil)
	require.NoError(t, err)
	assert.Equal(t, "Sure, happy to help.", gen.Content)
	assert.False(t, gen.Resolved)
}

func TestLLMGenerateResponseNeedsCustomerMessage(t *testing.T) {
	_, err := NewLLM(&fakeLLM{}, "m", 0).GenerateResponse(context.Background(), nil, &model.ConversationContext{}, nil)
	assert.Error(t, err)
}
