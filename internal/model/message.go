package model

import (
	"time"

	"gorm.io/datatypes"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one append-only entry in a conversation. Messages are
// ordered by CreatedAt, ties broken by the time-ordered ID.
type Message struct {
	ID             string            `json:"id" gorm:"type:varchar(36);primaryKey"`
	ConversationID string            `json:"conversation_id" gorm:"type:varchar(36);index:idx_msg_conv_created,priority:1;not null"`
	Role           Role              `json:"role" gorm:"type:varchar(16);not null"`
	Content        string            `json:"content" gorm:"type:text"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt      time.Time         `json:"created_at" gorm:"index:idx_msg_conv_created,priority:2"`
}

// TableName implements the GORM tabler interface.
func (Message) TableName() string { return "messages" }

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}
