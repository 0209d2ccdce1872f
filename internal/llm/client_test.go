package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	c, err := NewClient(ProviderOpenAI, "sk-test", "")
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())

	c, err = NewClient(ProviderAnthropic, "sk-ant-test", "")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Name())

	_, err = NewClient(ProviderOpenAI, "", "")
	assert.Error(t, err)

	_, err = NewClient("bogus", "key", "")
	assert.Error(t, err)
}

func TestWithDefaults(t *testing.T) {
	model, maxTokens := withDefaults(&CompletionRequest{}, "gpt-4o-mini")
	assert.Equal(t, "gpt-4o-mini", model)
	assert.Equal(t, 1024, maxTokens)

	model, maxTokens = withDefaults(&CompletionRequest{Model: "gpt-4o", MaxTokens: 64}, "gpt-4o-mini")
	assert.Equal(t, "gpt-4o", model)
	assert.Equal(t, 64, maxTokens)
}

func TestAnthropicMessages(t *testing.T) {
	tests := []struct {
		name  string
		req   *CompletionRequest
		roles []string
		first string
	}{
		{
			name: "user turn kept as is",
			req: &CompletionRequest{
				System:   "You are helpful.",
				Messages: []ChatMessage{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}},
			},
			roles: []string{"user", "assistant"},
			first: "hi",
		},
		{
			name: "leading assistant turn gets a user opener",
			req: &CompletionRequest{
				Messages: []ChatMessage{{Role: "assistant", Content: "hello"}, {Role: "user", Content: "hi"}},
			},
			roles: []string{"user", "assistant", "user"},
			first: "(conversation start)",
		},
		{
			name: "system role messages dropped",
			req: &CompletionRequest{
				JSON:     true,
				Messages: []ChatMessage{{Role: "system", Content: "ignored"}, {Role: "user", Content: "classify"}},
			},
			roles: []string{"user"},
			first: "classify",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := anthropicMessages(tt.req)
			roles := make([]string, len(got))
			for i, m := range got {
				roles[i] = m.Role
			}
			assert.Equal(t, tt.roles, roles)
			assert.Equal(t, tt.first, got[0].Content)
		})
	}
}

func TestAnthropicSystem(t *testing.T) {
	assert.Equal(t, "", anthropicSystem(&CompletionRequest{}))
	assert.Equal(t, "You are helpful.", anthropicSystem(&CompletionRequest{System: "You are helpful."}))
	assert.Equal(t, "Classify.\n\nRespond with a single JSON object and nothing else.",
		anthropicSystem(&CompletionRequest{System: "Classify.", JSON: true}))
	assert.Equal(t, "Respond with a single JSON object and nothing else.",
		anthropicSystem(&CompletionRequest{JSON: true}))
}
