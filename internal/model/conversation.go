package model

import (
	"time"

	"gorm.io/datatypes"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusActive         ConversationStatus = "active"
	StatusClosed         ConversationStatus = "closed"
	StatusPendingHandoff ConversationStatus = "pending_handoff"
)

// Channel names the transport a conversation arrived on.
type Channel string

const (
	ChannelWeb      Channel = "web"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// Conversation is a bounded sequence of turns between one counterparty
// and one tenant on one channel.
type Conversation struct {
	ID         string             `json:"id" gorm:"type:varchar(36);primaryKey"`
	TenantID   string             `json:"tenant_id" gorm:"type:varchar(36);index:idx_conv_tenant_status,priority:1;not null"`
	Channel    Channel            `json:"channel" gorm:"type:varchar(32);not null"`
	CustomerID *string            `json:"customer_id,omitempty" gorm:"type:varchar(128);index"`
	Status     ConversationStatus `json:"status" gorm:"type:varchar(32);index:idx_conv_tenant_status,priority:2;not null"`
	Metadata   datatypes.JSONMap  `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time          `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time          `json:"updated_at" gorm:"autoUpdateTime"`
	EndedAt    *time.Time         `json:"ended_at,omitempty"`
}

// TableName implements the GORM tabler interface.
func (Conversation) TableName() string { return "conversations" }

// IsActive reports whether the conversation can accept automated turns.
func (c *Conversation) IsActive() bool {
	return c != nil && c.Status == StatusActive
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}
