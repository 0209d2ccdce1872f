package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/capitalize-ai/concierge-platform/internal/model"
)

// Memory is an in-process Store. It backs local development and tests.
type Memory struct {
	mu            sync.RWMutex
	tenants       map[string]*model.Tenant
	conversations map[string]*model.Conversation
	messages      map[string][]model.Message
	knowledge     []model.KnowledgeEntry
	bookings      []model.Booking
	now           func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tenants:       make(map[string]*model.Tenant),
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]model.Message),
		now:           time.Now,
	}
}

// SetClock overrides the time source.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// FindTenant looks a tenant up by id or slug.
func (m *Memory) FindTenant(ctx context.Context, idOrSlug string) (*model.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if t, ok := m.tenants[idOrSlug]; ok {
		return cloneTenant(t), nil
	}
	for _, t := range m.tenants {
		if t.Slug == idOrSlug {
			return cloneTenant(t), nil
		}
	}
	return nil, ErrNotFound
}

// CreateTenant inserts a tenant.
func (m *Memory) CreateTenant(ctx context.Context, tenant *model.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tenant.ID == "" {
		tenant.ID = uuid.Must(uuid.NewV7()).String()
	}
	for _, t := range m.tenants {
		if t.Slug == tenant.Slug {
			return fmt.Errorf("tenant slug %q already exists", tenant.Slug)
		}
	}
	now := m.now()
	tenant.CreatedAt, tenant.UpdatedAt = now, now
	m.tenants[tenant.ID] = cloneTenant(tenant)
	return nil
}

// UpdateTenantSettings replaces a tenant's settings.
func (m *Memory) UpdateTenantSettings(ctx context.Context, tenantID string, settings map[string]any) (*model.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	t.Settings = datatypes.JSONMap(maps.Clone(settings))
	t.UpdatedAt = m.now()
	return cloneTenant(t), nil
}

// GetConversation returns a conversation owned by the tenant.
func (m *Memory) GetConversation(ctx context.Context, tenantID, conversationID string) (*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[conversationID]
	if !ok || conv.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return cloneConversation(conv), nil
}

// FindActiveConversation returns the conversation only while it is active.
func (m *Memory) FindActiveConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[conversationID]
	if !ok || conv.Status != model.StatusActive {
		return nil, ErrNotFound
	}
	return cloneConversation(conv), nil
}

// CreateConversation inserts a new active conversation.
func (m *Memory) CreateConversation(ctx context.Context, tenantID string, channel model.Channel, customerID *string, metadata map[string]any) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	conv := &model.Conversation{
		ID:         uuid.Must(uuid.NewV7()).String(),
		TenantID:   tenantID,
		Channel:    channel,
		CustomerID: customerID,
		Status:     model.StatusActive,
		Metadata:   datatypes.JSONMap(maps.Clone(metadata)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.conversations[conv.ID] = conv
	return cloneConversation(conv), nil
}

// UpdateConversationStatus transitions a conversation.
func (m *Memory) UpdateConversationStatus(ctx context.Context, conversationID string, status model.ConversationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	now := m.now()
	conv.Status = status
	conv.UpdatedAt = now
	if status == model.StatusClosed {
		conv.EndedAt = &now
	}
	return nil
}

// ListActiveConversations lists open conversations for a tenant, newest first.
func (m *Memory) ListActiveConversations(ctx context.Context, tenantID string, limit int) ([]model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var convs []model.Conversation
	for _, conv := range m.conversations {
		if conv.TenantID != tenantID || conv.Status == model.StatusClosed {
			continue
		}
		convs = append(convs, *cloneConversation(conv))
	}
	sort.Slice(convs, func(i, j int) bool {
		if convs[i].CreatedAt.Equal(convs[j].CreatedAt) {
			return convs[i].ID > convs[j].ID
		}
		return convs[i].CreatedAt.After(convs[j].CreatedAt)
	})
	if limit > 0 && len(convs) > limit {
		convs = convs[:limit]
	}
	return convs, nil
}

// AppendMessage appends a message to a conversation.
func (m *Memory) AppendMessage(ctx context.Context, conversationID string, role model.Role, content string, metadata map[string]any) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}
	msg := model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       datatypes.JSONMap(maps.Clone(metadata)),
		CreatedAt:      m.now(),
	}
	m.messages[conversationID] = append(m.messages[conversationID], msg)

	out := msg
	out.Metadata = maps.Clone(msg.Metadata)
	return &out, nil
}

// RecentMessages returns up to limit of the newest messages in ascending order.
func (m *Memory) RecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.messages[conversationID]
	start := 0
	if limit > 0 && len(all) > limit {
		start = len(all) - limit
	}
	out := make([]model.Message, 0, len(all)-start)
	for _, msg := range all[start:] {
		msg.Metadata = maps.Clone(msg.Metadata)
		out = append(out, msg)
	}
	return out, nil
}

// FindKnowledgeEntry looks up a tenant knowledge entry by category and title.
func (m *Memory) FindKnowledgeEntry(ctx context.Context, tenantID, category, key string) (*model.KnowledgeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.knowledge {
		if e.TenantID == tenantID && e.Category == category && e.Title == key {
			entry := e
			return &entry, nil
		}
	}
	return nil, ErrNotFound
}

// SearchKnowledge does a case-insensitive keyword match over a tenant's entries.
func (m *Memory) SearchKnowledge(ctx context.Context, tenantID, query string, limit int) ([]model.KnowledgeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	var out []model.KnowledgeEntry
	for _, e := range m.knowledge {
		if e.TenantID != tenantID {
			continue
		}
		if q == "" || strings.Contains(strings.ToLower(e.Title), q) || strings.Contains(strings.ToLower(e.Content), q) {
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// CreateKnowledgeEntry inserts a knowledge entry.
func (m *Memory) CreateKnowledgeEntry(ctx context.Context, entry *model.KnowledgeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := m.now()
	entry.CreatedAt, entry.UpdatedAt = now, now
	m.knowledge = append(m.knowledge, *entry)
	return nil
}

// CreateBooking inserts a confirmed booking.
func (m *Memory) CreateBooking(ctx context.Context, booking *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if booking.ID == "" {
		booking.ID = uuid.Must(uuid.NewV7()).String()
	}
	if booking.Status == "" {
		booking.Status = model.BookingConfirmed
	}
	booking.CreatedAt = m.now()
	m.bookings = append(m.bookings, *booking)
	return nil
}

// ListBookings returns a tenant's confirmed bookings on a date.
func (m *Memory) ListBookings(ctx context.Context, tenantID, date string) ([]model.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Booking
	for _, b := range m.bookings {
		if b.TenantID == tenantID && b.Date == date && b.Status == model.BookingConfirmed {
			out = append(out, b)
		}
	}
	return out, nil
}

// Ping always succeeds.
func (m *Memory) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func cloneTenant(t *model.Tenant) *model.Tenant {
	out := *t
	out.Settings = maps.Clone(t.Settings)
	return &out
}

func cloneConversation(c *model.Conversation) *model.Conversation {
	out := *c
	out.Metadata = maps.Clone(c.Metadata)
	if c.EndedAt != nil {
		ended := *c.EndedAt
		out.EndedAt = &ended
	}
	return &out
}
