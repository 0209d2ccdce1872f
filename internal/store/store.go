// Package store provides conversation persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/capitalize-ai/concierge-platform/internal/model"
)

// ErrNotFound is returned when a record does not exist, or does not match
// the requested state.
var ErrNotFound = errors.New("record not found")

// Store is the persistence boundary of the turn pipeline.
type Store interface {
	// FindTenant looks a tenant up by id or slug.
	FindTenant(ctx context.Context, idOrSlug string) (*model.Tenant, error)

	// CreateTenant inserts a tenant.
	CreateTenant(ctx context.Context, tenant *model.Tenant) error

	// UpdateTenantSettings replaces a tenant's settings.
	UpdateTenantSettings(ctx context.Context, tenantID string, settings map[string]any) (*model.Tenant, error)

	// GetConversation returns a conversation owned by the tenant, in any status.
	GetConversation(ctx context.Context, tenantID, conversationID string) (*model.Conversation, error)

	// FindActiveConversation returns the conversation only while its status is active.
	FindActiveConversation(ctx context.Context, conversationID string) (*model.Conversation, error)

	// CreateConversation inserts a new active conversation.
	CreateConversation(ctx context.Context, tenantID string, channel model.Channel, customerID *string, metadata map[string]any) (*model.Conversation, error)

	// UpdateConversationStatus transitions a conversation. Closing stamps EndedAt.
	UpdateConversationStatus(ctx context.Context, conversationID string, status model.ConversationStatus) error

	// ListActiveConversations lists a tenant's active and pending-handoff conversations, newest first.
	ListActiveConversations(ctx context.Context, tenantID string, limit int) ([]model.Conversation, error)

	// AppendMessage appends a message to a conversation.
	AppendMessage(ctx context.Context, conversationID string, role model.Role, content string, metadata map[string]any) (*model.Message, error)

	// RecentMessages returns up to limit of the newest messages in ascending order.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)

	// FindKnowledgeEntry looks up a tenant knowledge entry by category and title.
	FindKnowledgeEntry(ctx context.Context, tenantID, category, key string) (*model.KnowledgeEntry, error)

	// SearchKnowledge does a case-insensitive keyword match over a tenant's entries.
	SearchKnowledge(ctx context.Context, tenantID, query string, limit int) ([]model.KnowledgeEntry, error)

	// CreateKnowledgeEntry inserts a knowledge entry.
	CreateKnowledgeEntry(ctx context.Context, entry *model.KnowledgeEntry) error

	// CreateBooking inserts a confirmed booking.
	CreateBooking(ctx context.Context, booking *model.Booking) error

	// ListBookings returns a tenant's confirmed bookings on a date.
	ListBookings(ctx context.Context, tenantID, date string) ([]model.Booking, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
)
