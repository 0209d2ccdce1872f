// Package booking checks appointment availability against a tenant's
// slot grid and records confirmed bookings.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/capitalize-ai/concierge-platform/internal/model"
)

// Tenant settings keys.
const (
	SettingSlots    = "booking_slots"
	SettingCapacity = "booking_capacity"
)

// MaxSuggestions caps SuggestedTimes.
const MaxSuggestions = 3

// LookaheadDays bounds how far NextAvailable searches past a full date.
const LookaheadDays = 7

const dateFormat = "2006-01-02"

// DefaultSlots is the hourly grid used when a tenant configures none.
var DefaultSlots = []string{"09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00"}

// ErrSlotUnavailable is returned when a slot is outside the grid or full.
var ErrSlotUnavailable = errors.New("slot unavailable")

// ErrInvalidDate is returned when a booking date cannot be parsed.
var ErrInvalidDate = errors.New("invalid booking date")

// Store is the persistence the booking service needs.
type Store interface {
	FindTenant(ctx context.Context, idOrSlug string) (*model.Tenant, error)
	ListBookings(ctx context.Context, tenantID, date string) ([]model.Booking, error)
	CreateBooking(ctx context.Context, booking *model.Booking) error
}

// Request describes a booking to create.
type Request struct {
	TenantID       string
	ConversationID string
	CustomerID     *string
	Service        string
	Date           string
	Time           string
}

// Service manages bookings.
type Service struct {
	store Store
	// serializes check-then-create so two turns cannot take the last seat
	mu sync.Mutex
}

// NewService creates a booking service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// CheckAvailability reports whether the slot is on the grid and has room.
func (s *Service) CheckAvailability(ctx context.Context, tenantID, service, date, at string) (bool, error) {
	grid, capacity, err := s.grid(ctx, tenantID)
	if err != nil {
		return false, err
	}
	taken, err := s.taken(ctx, tenantID, normalizedOrRaw(date))
	if err != nil {
		return false, err
	}
	return available(grid, capacity, taken, NormalizeTime(at)), nil
}

// SuggestedTimes returns up to MaxSuggestions free slots on date.
func (s *Service) SuggestedTimes(ctx context.Context, tenantID, service, date string) ([]string, error) {
	grid, capacity, err := s.grid(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	taken, err := s.taken(ctx, tenantID, normalizedOrRaw(date))
	if err != nil {
		return nil, err
	}

	var out []string
	for _, slot := range grid {
		if taken[slot] < capacity {
			out = append(out, slot)
			if len(out) == MaxSuggestions {
				break
			}
		}
	}
	return out, nil
}

// NextAvailable searches the LookaheadDays days after date for the first
// one with free slots. It returns an empty date when none is found.
func (s *Service) NextAvailable(ctx context.Context, tenantID, service, date string) (string, []string, error) {
	day, ok := NormalizeDate(date)
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	start, _ := time.Parse(dateFormat, day)

	for i := 1; i <= LookaheadDays; i++ {
		next := start.AddDate(0, 0, i).Format(dateFormat)
		times, err := s.SuggestedTimes(ctx, tenantID, service, next)
		if err != nil {
			return "", nil, err
		}
		if len(times) > 0 {
			return next, times, nil
		}
	}
	return "", nil, nil
}

// CreateBooking books the slot, failing with ErrSlotUnavailable if it was
// taken in the meantime.
func (s *Service) CreateBooking(ctx context.Context, req Request) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	date, ok := NormalizeDate(req.Date)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, req.Date)
	}
	slot := NormalizeTime(req.Time)
	ok, err := s.CheckAvailability(ctx, req.TenantID, req.Service, date, slot)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSlotUnavailable
	}

	b := &model.Booking{
		TenantID:       req.TenantID,
		ConversationID: req.ConversationID,
		CustomerID:     req.CustomerID,
		Service:        req.Service,
		Date:           date,
		Time:           slot,
		Status:         model.BookingConfirmed,
	}
	if err := s.store.CreateBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}
	return b, nil
}

func (s *Service) grid(ctx context.Context, tenantID string) ([]string, int, error) {
	tenant, err := s.store.FindTenant(ctx, tenantID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load tenant: %w", err)
	}
	return Slots(tenant), capacity(tenant), nil
}

func (s *Service) taken(ctx context.Context, tenantID, date string) (map[string]int, error) {
	bookings, err := s.store.ListBookings(ctx, tenantID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	taken := make(map[string]int, len(bookings))
	for _, b := range bookings {
		taken[NormalizeTime(b.Time)]++
	}
	return taken, nil
}

func available(grid []string, capacity int, taken map[string]int, slot string) bool {
	for _, g := range grid {
		if g == slot {
			return taken[slot] < capacity
		}
	}
	return false
}

// Slots returns the tenant's slot grid.
func Slots(tenant *model.Tenant) []string {
	if tenant == nil {
		return DefaultSlots
	}

	var raw []string
	switch v := tenant.Setting(SettingSlots).(type) {
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}

	var grid []string
	for _, s := range raw {
		if t := NormalizeTime(s); t != "" {
			grid = append(grid, t)
		}
	}
	if len(grid) == 0 {
		return DefaultSlots
	}
	return grid
}

func capacity(tenant *model.Tenant) int {
	if tenant == nil {
		return 1
	}
	switch v := tenant.Setting(SettingCapacity).(type) {
	case float64:
		if v >= 1 {
			return int(v)
		}
	case int:
		if v >= 1 {
			return v
		}
	}
	return 1
}

// Date-times as sent by Rasa (duckling) and Dialogflow system entities.
var dateTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05.000Z07:00", "2006-01-02T15:04:05"}

var timeLayouts = []string{"15:04", "15:04:05", "3pm", "3:04pm", "3 pm", "3:04 pm"}

// NormalizeDate returns d as YYYY-MM-DD. ISO-8601 date-times keep the
// calendar date of their own offset.
func NormalizeDate(d string) (string, bool) {
	s := strings.TrimSpace(d)
	if parsed, err := time.Parse(dateFormat, s); err == nil {
		return parsed.Format(dateFormat), true
	}
	for _, layout := range dateTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.Format(dateFormat), true
		}
	}
	return "", false
}

func normalizedOrRaw(d string) string {
	if day, ok := NormalizeDate(d); ok {
		return day
	}
	return d
}

// NormalizeTime returns t as HH:MM, or t unchanged if it cannot be parsed.
// ISO-8601 date-times yield their wall-clock time.
func NormalizeTime(t string) string {
	for _, layout := range dateTimeLayouts {
		if parsed, err := time.Parse(layout, strings.TrimSpace(t)); err == nil {
			return parsed.Format("15:04")
		}
	}

	s := strings.ToLower(strings.TrimSpace(t))
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.Format("15:04")
		}
	}
	return s
}
