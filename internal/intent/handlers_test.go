package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/concierge-platform/internal/knowledge"
	"github.com/capitalize-ai/concierge-platform/internal/model"
	"github.com/capitalize-ai/concierge-platform/internal/nlp"
	"github.com/capitalize-ai/concierge-platform/internal/store"
)

func TestFAQHandler(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.CreateKnowledgeEntry(ctx, &model.KnowledgeEntry{
		TenantID: "t1", Category: model.KnowledgeCategoryFAQ, Title: "hours", Content: "We're open 9am to 5pm, Monday to Friday.",
	}))
	h := NewFAQHandler(s)

	tests := []struct {
		name     string
		tenant   string
		intent   string
		content  string
		source   string
		resolved bool
	}{
		{"hit", "t1", IntentFAQHours, "We're open 9am to 5pm, Monday to Friday.", SourceKnowledgeBase, true},
		{"missing topic", "t1", IntentFAQLocation, faqNotFoundMessage, SourceNotFound, false},
		{"other tenant", "t2", IntentFAQHours, faqNotFoundMessage, SourceNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := h.Handle(ctx, &model.ClassificationResult{Intent: tt.intent, Confidence: 1}, &model.ConversationContext{TenantID: tt.tenant})
			require.NoError(t, err)
			assert.Equal(t, tt.content, resp.Content)
			assert.Equal(t, tt.source, resp.Metadata["source"])
			assert.Equal(t, tt.intent, resp.Intent())
			assert.Equal(t, tt.resolved, resp.Resolved)
		})
	}
}

type failingFinder struct{ err error }

func (f failingFinder) FindKnowledgeEntry(ctx context.Context, tenantID, category, key string) (*model.KnowledgeEntry, error) {
	return nil, f.err
}

func TestFAQHandlerStoreError(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := NewFAQHandler(failingFinder{boom}).Handle(context.Background(), &model.ClassificationResult{Intent: IntentFAQPricing}, &model.ConversationContext{TenantID: "t"})
	assert.ErrorIs(t, err, boom)
}

type recordingSink struct {
	names    []string
	payloads []any
	err      error
}

func (r *recordingSink) Publish(ctx context.Context, name string, payload any) error {
	r.names = append(r.names, name)
	r.payloads = append(r.payloads, payload)
	return r.err
}

func TestHandoffHandler(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	conv, err := s.CreateConversation(ctx, "t1", model.ChannelWeb, nil, nil)
	require.NoError(t, err)

	// a failing event sink must not fail the handoff
	sink := &recordingSink{err: errors.New("broker down")}
	h := NewHandoffHandler(s, sink, nil)

	resp, err := h.Handle(ctx, &model.ClassificationResult{Intent: IntentHandoff, Confidence: 1}, &model.ConversationContext{TenantID: "t1", ConversationID: conv.ID})
	require.NoError(t, err)
	assert.False(t, resp.Resolved)
	assert.Equal(t, IntentHandoff, resp.Intent())

	got, err := s.GetConversation(ctx, "t1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingHandoff, got.Status)

	require.Equal(t, []string{model.EventConversationHandoff}, sink.names)
	ev := sink.payloads[0].(model.HandoffEvent)
	assert.Equal(t, conv.ID, ev.ConversationID)
}

func TestHandoffHandlerUnknownConversation(t *testing.T) {
	h := NewHandoffHandler(store.NewMemory(), &recordingSink{}, nil)
	_, err := h.Handle(context.Background(), &model.ClassificationResult{Intent: IntentHandoff}, &model.ConversationContext{ConversationID: "nope"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOrderHandler(t *testing.T) {
	resp, err := OrderHandler{}.Handle(context.Background(), &model.ClassificationResult{Intent: IntentOrderPlace}, &model.ConversationContext{})
	require.NoError(t, err)
	assert.Equal(t, IntentOrderStart, resp.Intent())
	assert.False(t, resp.Resolved)
}

type fakeRetriever struct {
	query, tenant string
	snippets      []knowledge.Snippet
	err           error
}

func (f *fakeRetriever) SearchSimilar(ctx context.Context, query, tenantID string) ([]knowledge.Snippet, error) {
	f.query, f.tenant = query, tenantID
	return f.snippets, f.err
}

type fakeGenerator struct {
	snippets []knowledge.Snippet
	gen      *nlp.Generation
	err      error
}

func (f *fakeGenerator) GenerateResponse(ctx context.Context, cls *model.ClassificationResult, cc *model.ConversationContext, snippets []knowledge.Snippet) (*nlp.Generation, error) {
	f.snippets = snippets
	return f.gen, f.err
}

func TestGeneralHandler(t *testing.T) {
	retriever := &fakeRetriever{snippets: []knowledge.Snippet{{Title: "parking", Content: "Free parking."}}}
	generator := &fakeGenerator{gen: &nlp.Generation{Content: "Yes, parking is free.", Resolved: true}}
	h := NewGeneralHandler(retriever, generator, nil)

	resp, err := h.Handle(context.Background(), &model.ClassificationResult{Intent: "parking.info", Confidence: 0.72}, &model.ConversationContext{TenantID: "t1"})
	require.NoError(t, err)

	assert.Equal(t, "parking.info", retriever.query)
	assert.Equal(t, "t1", retriever.tenant)
	assert.Equal(t, retriever.snippets, generator.snippets)
	assert.Equal(t, "Yes, parking is free.", resp.Content)
	assert.Equal(t, SourceAIGenerated, resp.Metadata["source"])
	assert.Equal(t, 0.72, resp.Metadata["confidence"])
	assert.True(t, resp.Resolved)
}

func TestGeneralHandlerDegradesWithoutKnowledge(t *testing.T) {
	generator := &fakeGenerator{gen: &nlp.Generation{Content: "Let me check."}}
	h := NewGeneralHandler(&fakeRetriever{err: errors.New("es down")}, generator, nil)

	resp, err := h.Handle(context.Background(), &model.ClassificationResult{Intent: "x", Confidence: 1}, &model.ConversationContext{TenantID: "t1"})
	require.NoError(t, err)
	assert.Nil(t, generator.snippets)
	assert.Equal(t, "Let me check.", resp.Content)
}

func TestGeneralHandlerGenerationError(t *testing.T) {
	boom := errors.New("llm timeout")
	h := NewGeneralHandler(&fakeRetriever{}, &fakeGenerator{err: boom}, nil)
	_, err := h.Handle(context.Background(), &model.ClassificationResult{Intent: "x", Confidence: 1}, &model.ConversationContext{})
	assert.ErrorIs(t, err, boom)
}

func TestGeneralHandlerWithoutGenerator(t *testing.T) {
	h := NewGeneralHandler(&fakeRetriever{}, nil, nil)
	resp, err := h.Handle(context.Background(), &model.ClassificationResult{Intent: "x", Confidence: 0.9}, &model.ConversationContext{TenantID: "t1"})
	require.NoError(t, err)
	assert.False(t, resp.Resolved)
	assert.Equal(t, SourceNotFound, resp.Metadata["source"])
}
