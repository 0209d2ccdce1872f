package model

import "time"

// Event names published by the turn pipeline.
const (
	EventConversationMessage = "conversation.message"
	EventConversationHandoff = "conversation.handoff"
	EventConversationClosed  = "conversation.closed"
)

// TurnEvent is the analytics payload emitted after each completed turn.
type TurnEvent struct {
	TenantID       string    `json:"tenant_id"`
	ConversationID string    `json:"conversation_id"`
	Intent         string    `json:"intent"`
	Confidence     float64   `json:"confidence"`
	Resolved       bool      `json:"resolved"`
	Channel        Channel   `json:"channel"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// HandoffEvent notifies operators that a conversation needs a human.
type HandoffEvent struct {
	TenantID       string    `json:"tenant_id"`
	ConversationID string    `json:"conversation_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// ConversationEvent is a generic lifecycle event.
type ConversationEvent struct {
	TenantID       string             `json:"tenant_id"`
	ConversationID string             `json:"conversation_id"`
	Status         ConversationStatus `json:"status"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

// Scope returns the tenant and conversation an event belongs to.
func (e TurnEvent) Scope() (string, string) { return e.TenantID, e.ConversationID }

// Scope returns the tenant and conversation an event belongs to.
func (e HandoffEvent) Scope() (string, string) { return e.TenantID, e.ConversationID }

// Scope returns the tenant and conversation an event belongs to.
func (e ConversationEvent) Scope() (string, string) { return e.TenantID, e.ConversationID }
