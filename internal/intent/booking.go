package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/capitalize-ai/concierge-platform/internal/booking"
	"github.com/capitalize-ai/concierge-platform/internal/model"
)

// bookingFields are the required slots in the order they are asked for.
var bookingFields = []string{"service", "date", "time"}

// BookingService is what the booking handler needs from the booking package.
type BookingService interface {
	CheckAvailability(ctx context.Context, tenantID, service, date, at string) (bool, error)
	SuggestedTimes(ctx context.Context, tenantID, service, date string) ([]string, error)
	NextAvailable(ctx context.Context, tenantID, service, date string) (string, []string, error)
	CreateBooking(ctx context.Context, req booking.Request) (*model.Booking, error)
}

// BookingHandler collects service, date and time over one or more turns
// and books the slot once all three are known.
type BookingHandler struct {
	bookings BookingService
}

// NewBookingHandler creates a booking handler.
func NewBookingHandler(bookings BookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

// Handle implements Handler.
func (h *BookingHandler) Handle(ctx context.Context, cls *model.ClassificationResult, cc *model.ConversationContext) (*model.TurnResponse, error) {
	collected := collectedData(cc)
	for _, f := range bookingFields {
		if v := cls.Entity(f); v != "" {
			collected[f] = v
		}
	}
	normalizeSlots(collected)

	var missing []string
	for _, f := range bookingFields {
		if str(collected[f]) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &model.TurnResponse{
			Content: "I'd be happy to help you book an appointment! I just need to know: " + strings.Join(missing, ", "),
			Metadata: map[string]any{
				"intent":         IntentBookingCollect,
				"missing_fields": missing,
				"collected_data": collected,
			},
			Resolved: false,
		}, nil
	}

	service, date, at := str(collected["service"]), str(collected["date"]), str(collected["time"])

	ok, err := h.bookings.CheckAvailability(ctx, cc.TenantID, service, date, at)
	if err != nil {
		return nil, fmt.Errorf("failed to check availability: %w", err)
	}
	if ok {
		b, err := h.bookings.CreateBooking(ctx, booking.Request{
			TenantID:       cc.TenantID,
			ConversationID: cc.ConversationID,
			CustomerID:     customerID(cc),
			Service:        service,
			Date:           date,
			Time:           at,
		})
		switch {
		case err == nil:
			return &model.TurnResponse{
				Content: fmt.Sprintf("Great! I've booked your %s appointment for %s at %s. You'll receive a confirmation email shortly.",
					service, date, b.Time),
				Metadata: map[string]any{
					"intent":     IntentBookingConfirmed,
					"booking_id": b.ID,
				},
				Resolved: true,
			}, nil
		case !errors.Is(err, booking.ErrSlotUnavailable):
			return nil, fmt.Errorf("failed to create booking: %w", err)
		}
	}

	alternatives, err := h.bookings.SuggestedTimes(ctx, cc.TenantID, service, date)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest times: %w", err)
	}

	// keep service and date so the customer can answer with a new time
	delete(collected, "time")

	if len(alternatives) == 0 {
		next, times, err := h.bookings.NextAvailable(ctx, cc.TenantID, service, date)
		if err != nil {
			return nil, fmt.Errorf("failed to find next available day: %w", err)
		}
		if next != "" {
			collected["date"] = next
			return &model.TurnResponse{
				Content: fmt.Sprintf("I'm sorry, we're fully booked on %s. The next available day is %s, with these times: %s. Would one of those work?",
					date, next, strings.Join(times, ", ")),
				Metadata: map[string]any{
					"intent":           IntentBookingAlternatives,
					"alternatives":     times,
					"alternative_date": next,
					"collected_data":   collected,
				},
				Resolved: false,
			}, nil
		}

		return &model.TurnResponse{
			Content: fmt.Sprintf("I'm sorry, we're fully booked on %s. Would you like to try another day?", date),
			Metadata: map[string]any{
				"intent":         IntentBookingUnavailable,
				"collected_data": collected,
			},
			Resolved: false,
		}, nil
	}

	return &model.TurnResponse{
		Content: fmt.Sprintf("I'm sorry, %s on %s is not available. How about one of these times instead: %s?",
			at, date, strings.Join(alternatives, ", ")),
		Metadata: map[string]any{
			"intent":         IntentBookingAlternatives,
			"alternatives":   alternatives,
			"collected_data": collected,
		},
		Resolved: false,
	}, nil
}

// normalizeSlots rewrites date and time into YYYY-MM-DD and HH:MM. A date
// that cannot be parsed is dropped so the customer is asked again.
func normalizeSlots(collected map[string]any) {
	if d := str(collected["date"]); d != "" {
		if day, ok := booking.NormalizeDate(d); ok {
			collected["date"] = day
		} else {
			delete(collected, "date")
		}
	}
	if t := str(collected["time"]); t != "" {
		collected["time"] = booking.NormalizeTime(t)
	}
}

// collectedData returns the newest partial booking recorded in the
// history, or an empty map when the last booking flow already finished.
func collectedData(cc *model.ConversationContext) map[string]any {
	out := map[string]any{}
	if cc == nil {
		return out
	}
	for i := len(cc.History) - 1; i >= 0; i-- {
		m := cc.History[i]
		if m.Role != model.RoleAssistant {
			continue
		}
		if intent, _ := m.Metadata["intent"].(string); intent == IntentBookingConfirmed {
			return out
		}
		data, ok := m.Metadata["collected_data"].(map[string]any)
		if !ok {
			continue
		}
		for _, f := range bookingFields {
			if v := str(data[f]); v != "" {
				out[f] = v
			}
		}
		return out
	}
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func customerID(cc *model.ConversationContext) *string {
	if cc.CustomerID == "" {
		return nil
	}
	id := cc.CustomerID
	return &id
}
