package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/capitalize-ai/concierge-platform/internal/model"
)

// PostgresConfig holds database connection settings.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Debug           bool
	AutoMigrate     bool
}

// Postgres is a GORM-backed Store.
type Postgres struct {
	db *gorm.DB
}

// NewPostgres opens a connection pool, pings it, and optionally migrates the schema.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	logLevel := gormlogger.Silent
	if cfg.Debug {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := db.WithContext(ctx).AutoMigrate(model.AllModels...); err != nil {
			return nil, fmt.Errorf("failed to auto migrate: %w", err)
		}
	}

	return &Postgres{db: db}, nil
}

// FindTenant looks a tenant up by id or slug.
func (p *Postgres) FindTenant(ctx context.Context, idOrSlug string) (*model.Tenant, error) {
	var tenant model.Tenant
	err := p.db.WithContext(ctx).
		Where("id = ? OR slug = ?", idOrSlug, idOrSlug).
		First(&tenant).Error
	if err != nil {
		return nil, translate(err)
	}
	return &tenant, nil
}

// CreateTenant inserts a tenant.
func (p *Postgres) CreateTenant(ctx context.Context, tenant *model.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.Must(uuid.NewV7()).String()
	}
	if err := p.db.WithContext(ctx).Create(tenant).Error; err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// UpdateTenantSettings replaces a tenant's settings.
func (p *Postgres) UpdateTenantSettings(ctx context.Context, tenantID string, settings map[string]any) (*model.Tenant, error) {
	res := p.db.WithContext(ctx).
		Model(&model.Tenant{}).
		Where("id = ?", tenantID).
		Update("settings", datatypes.JSONMap(settings))
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update tenant settings: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return p.FindTenant(ctx, tenantID)
}

// GetConversation returns a conversation owned by the tenant.
func (p *Postgres) GetConversation(ctx context.Context, tenantID, conversationID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := p.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", conversationID, tenantID).
		First(&conv).Error
	if err != nil {
		return nil, translate(err)
	}
	return &conv, nil
}

// FindActiveConversation returns the conversation only while it is active.
func (p *Postgres) FindActiveConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := p.db.WithContext(ctx).
		Where("id = ? AND status = ?", conversationID, model.StatusActive).
		First(&conv).Error
	if err != nil {
		return nil, translate(err)
	}
	return &conv, nil
}

// CreateConversation inserts a new active conversation.
func (p *Postgres) CreateConversation(ctx context.Context, tenantID string, channel model.Channel, customerID *string, metadata map[string]any) (*model.Conversation, error) {
	conv := &model.Conversation{
		ID:         uuid.Must(uuid.NewV7()).String(),
		TenantID:   tenantID,
		Channel:    channel,
		CustomerID: customerID,
		Status:     model.StatusActive,
		Metadata:   datatypes.JSONMap(metadata),
	}
	if err := p.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// UpdateConversationStatus transitions a conversation.
func (p *Postgres) UpdateConversationStatus(ctx context.Context, conversationID string, status model.ConversationStatus) error {
	updates := map[string]any{"status": status}
	if status == model.StatusClosed {
		updates["ended_at"] = time.Now().UTC()
	}

	res := p.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("id = ?", conversationID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update conversation status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveConversations lists open conversations for a tenant, newest first.
func (p *Postgres) ListActiveConversations(ctx context.Context, tenantID string, limit int) ([]model.Conversation, error) {
	var convs []model.Conversation
	q := p.db.WithContext(ctx).
		Where("tenant_id = ? AND status <> ?", tenantID, model.StatusClosed).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

// AppendMessage appends a message to a conversation.
func (p *Postgres) AppendMessage(ctx context.Context, conversationID string, role model.Role, content string, metadata map[string]any) (*model.Message, error) {
	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       datatypes.JSONMap(metadata),
		CreatedAt:      time.Now().UTC(),
	}
	if err := p.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	return msg, nil
}

// RecentMessages returns up to limit of the newest messages in ascending order.
func (p *Postgres) RecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	var msgs []model.Message
	q := p.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// FindKnowledgeEntry looks up a tenant knowledge entry by category and title.
func (p *Postgres) FindKnowledgeEntry(ctx context.Context, tenantID, category, key string) (*model.KnowledgeEntry, error) {
	var entry model.KnowledgeEntry
	err := p.db.WithContext(ctx).
		Where("tenant_id = ? AND category = ? AND title = ?", tenantID, category, key).
		First(&entry).Error
	if err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

// SearchKnowledge does a case-insensitive keyword match over a tenant's entries.
func (p *Postgres) SearchKnowledge(ctx context.Context, tenantID, query string, limit int) ([]model.KnowledgeEntry, error) {
	var entries []model.KnowledgeEntry
	like := "%" + query + "%"
	q := p.db.WithContext(ctx).
		Where("tenant_id = ? AND (title ILIKE ? OR content ILIKE ?)", tenantID, like, like).
		Order("updated_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to search knowledge: %w", err)
	}
	return entries, nil
}

// CreateKnowledgeEntry inserts a knowledge entry.
func (p *Postgres) CreateKnowledgeEntry(ctx context.Context, entry *model.KnowledgeEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.Must(uuid.NewV7()).String()
	}
	if err := p.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create knowledge entry: %w", err)
	}
	return nil
}

// CreateBooking inserts a confirmed booking.
func (p *Postgres) CreateBooking(ctx context.Context, booking *model.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.Must(uuid.NewV7()).String()
	}
	if booking.Status == "" {
		booking.Status = model.BookingConfirmed
	}
	if err := p.db.WithContext(ctx).Create(booking).Error; err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// ListBookings returns a tenant's confirmed bookings on a date.
func (p *Postgres) ListBookings(ctx context.Context, tenantID, date string) ([]model.Booking, error) {
	var bookings []model.Booking
	err := p.db.WithContext(ctx).
		Where("tenant_id = ? AND date = ? AND status = ?", tenantID, date, model.BookingConfirmed).
		Order("time ASC").
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// Ping checks database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
