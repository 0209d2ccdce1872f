package model

import "time"

// BookingStatus is the state of a booking.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking is an appointment created through the booking intent.
type Booking struct {
	ID             string        `json:"id" gorm:"type:varchar(36);primaryKey"`
	TenantID       string        `json:"tenant_id" gorm:"type:varchar(36);index:idx_booking_slot,priority:1;not null"`
	ConversationID string        `json:"conversation_id" gorm:"type:varchar(36)"`
	CustomerID     *string       `json:"customer_id,omitempty" gorm:"type:varchar(128)"`
	Service        string        `json:"service" gorm:"type:varchar(255)"`
	Date           string        `json:"date" gorm:"type:varchar(10);index:idx_booking_slot,priority:2"`
	Time           string        `json:"time" gorm:"type:varchar(5);index:idx_booking_slot,priority:3"`
	Status         BookingStatus `json:"status" gorm:"type:varchar(16)"`
	CreatedAt      time.Time     `json:"created_at" gorm:"autoCreateTime"`
}

// TableName implements the GORM tabler interface.
func (Booking) TableName() string { return "bookings" }

// AllModels lists the persisted models for auto-migration.
var AllModels = []any{
	&Tenant{},
	&Conversation{},
	&Message{},
	&KnowledgeEntry{},
	&Booking{},
}
