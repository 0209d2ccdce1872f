package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/concierge-platform/internal/model"
)

func named(name string) Handler {
	return HandlerFunc(func(ctx context.Context, cls *model.ClassificationResult, cc *model.ConversationContext) (*model.TurnResponse, error) {
		return &model.TurnResponse{Content: name}, nil
	})
}

func TestDispatchClarifiesLowConfidence(t *testing.T) {
	tests := []struct {
		name string
		cls  *model.ClassificationResult
	}{
		{"nil classification", nil},
		{"cascade fallback", &model.ClassificationResult{Intent: "fallback", Confidence: 0}},
		{"just under threshold", &model.ClassificationResult{Intent: "faq.hours", Confidence: 0.49}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			r := NewRouter(HandlerFunc(func(ctx context.Context, cls *model.ClassificationResult, cc *model.ConversationContext) (*model.TurnResponse, error) {
				called = true
				return nil, nil
			}), nil)
			r.Register("faq.hours", named("faq"))

			resp, err := r.Dispatch(context.Background(), tt.cls, &model.ConversationContext{})
			require.NoError(t, err)
			assert.False(t, called)
			assert.Equal(t, "I'm not quite sure what you're asking. Could you please rephrase that?", resp.Content)
			assert.Equal(t, IntentUnclear, resp.Intent())
			assert.False(t, resp.Resolved)
		})
	}
}

func TestDispatchRoutesByIntent(t *testing.T) {
	r := NewRouter(named("default"), nil)
	r.Register("faq.hours", named("faq"))
	r.Register("order.place", named("order"))

	tests := []struct {
		intent string
		want   string
	}{
		{"faq.hours", "faq"},
		{"order.place", "order"},
		{"small.talk", "default"},
		{"booking.cancel", "default"},
	}
	for _, tt := range tests {
		t.Run(tt.intent, func(t *testing.T) {
			resp, err := r.Dispatch(context.Background(), &model.ClassificationResult{Intent: tt.intent, Confidence: 0.5}, &model.ConversationContext{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Content)
			assert.Equal(t, tt.intent, resp.Intent())
		})
	}
}

func TestDispatchPropagatesHandlerError(t *testing.T) {
	boom := errors.New("db down")
	r := NewRouter(HandlerFunc(func(ctx context.Context, cls *model.ClassificationResult, cc *model.ConversationContext) (*model.TurnResponse, error) {
		return nil, boom
	}), nil)

	_, err := r.Dispatch(context.Background(), &model.ClassificationResult{Intent: "x", Confidence: 1}, &model.ConversationContext{})
	assert.ErrorIs(t, err, boom)
}

func TestDispatchContinuesPendingFlow(t *testing.T) {
	r := NewRouter(named("default"), nil)
	r.Register(IntentBookingCreate, named("booking"))
	r.Continue(IntentBookingCollect, IntentBookingCreate)

	pending := &model.ConversationContext{History: []model.Message{
		{Role: model.RoleUser, Content: "book appointment"},
		{Role: model.RoleAssistant, Metadata: map[string]any{"intent": IntentBookingCollect}},
		{Role: model.RoleUser, Content: "2pm"},
	}}

	tests := []struct {
		name string
		cls  *model.ClassificationResult
		cc   *model.ConversationContext
		want string
	}{
		{
			name: "entities after collect prompt",
			cls:  &model.ClassificationResult{Intent: "general", Confidence: 0.9, Entities: map[string]any{"time": "14:00"}},
			cc:   pending,
			want: "booking",
		},
		{
			name: "no entities",
			cls:  &model.ClassificationResult{Intent: "general", Confidence: 0.9, Entities: map[string]any{}},
			cc:   pending,
			want: "default",
		},
		{
			name: "no pending flow",
			cls:  &model.ClassificationResult{Intent: "general", Confidence: 0.9, Entities: map[string]any{"time": "14:00"}},
			cc:   &model.ConversationContext{},
			want: "default",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := r.Dispatch(context.Background(), tt.cls, tt.cc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Content)
		})
	}
}
