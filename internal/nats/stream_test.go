package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventSubject(t *testing.T) {
	tests := []struct {
		name                 string
		tenant, conversation string
		event                string
		want                 string
	}{
		{"plain ids", "t1", "c1", "conversation.message", "conv.t1.c1.event.conversation.message"},
		{"dotted tenant", "acme.co", "c1", "conversation.handoff", "conv.acme_co.c1.event.conversation.handoff"},
		{"wildcards escaped", "t*", "c>", "conversation.closed", "conv.t_.c_.event.conversation.closed"},
		{"empty conversation", "t1", "", "conversation.message", "conv.t1._.event.conversation.message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EventSubject(tt.tenant, tt.conversation, tt.event))
		})
	}
}

func TestConversationFilter(t *testing.T) {
	assert.Equal(t, "conv.t1.c1.>", ConversationFilter("t1", "c1"))
}
