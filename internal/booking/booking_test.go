package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/concierge-platform/internal/model"
	"github.com/capitalize-ai/concierge-platform/internal/store"
)

func setup(t *testing.T, settings map[string]any) (*Service, *store.Memory, string) {
	t.Helper()
	s := store.NewMemory()
	tenant := &model.Tenant{Slug: "salon", Name: "Salon", IsActive: true, Settings: settings}
	require.NoError(t, s.CreateTenant(context.Background(), tenant))
	return NewService(s), s, tenant.ID
}

func TestNormalizeTime(t *testing.T) {
	tests := []struct{ in, want string }{
		{"14:00", "14:00"},
		{"9:00", "09:00"},
		{"14:00:00", "14:00"},
		{"2pm", "14:00"},
		{"2:30 PM", "14:30"},
		{" 10:00 ", "10:00"},
		{"2025-07-01T10:00:00-07:00", "10:00"},
		{"2025-07-01T15:30:00.000+02:00", "15:30"},
		{"2025-07-01T09:00:00", "09:00"},
		{"noonish", "noonish"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTime(tt.in))
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2025-07-01", "2025-07-01", true},
		{" 2025-07-01 ", "2025-07-01", true},
		{"2025-07-01T12:00:00-07:00", "2025-07-01", true},
		{"2025-07-01T23:30:00.000-07:00", "2025-07-01", true},
		{"2025-07-01T00:00:00", "2025-07-01", true},
		{"tomorrow", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlots(t *testing.T) {
	assert.Equal(t, DefaultSlots, Slots(nil))
	assert.Equal(t, DefaultSlots, Slots(&model.Tenant{}))
	assert.Equal(t, []string{"08:30", "17:00"}, Slots(&model.Tenant{Settings: map[string]any{SettingSlots: []any{"8:30", "5pm", 3}}}))
}

func TestCheckAvailability(t *testing.T) {
	ctx := context.Background()
	svc, s, tenantID := setup(t, nil)
	require.NoError(t, s.CreateBooking(ctx, &model.Booking{TenantID: tenantID, Service: "haircut", Date: "2025-06-01", Time: "10:00"}))

	tests := []struct {
		name string
		date string
		at   string
		want bool
	}{
		{"free slot", "2025-06-01", "11:00", true},
		{"booked slot", "2025-06-01", "10:00", false},
		{"same time other day", "2025-06-02", "10:00", true},
		{"off grid", "2025-06-01", "10:30", false},
		{"after hours", "2025-06-01", "18:00", false},
		{"twelve hour input", "2025-06-01", "3pm", true},
		{"iso date-times", "2025-06-01T12:00:00-07:00", "2025-06-01T11:00:00-07:00", true},
		{"iso date-time on booked slot", "2025-06-01T00:00:00-07:00", "2025-06-01T10:00:00-07:00", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.CheckAvailability(ctx, tenantID, "haircut", tt.date, tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckAvailabilityUnknownTenant(t *testing.T) {
	svc := NewService(store.NewMemory())
	_, err := svc.CheckAvailability(context.Background(), "missing", "x", "2025-06-01", "10:00")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSuggestedTimesSkipsTakenSlots(t *testing.T) {
	ctx := context.Background()
	svc, s, tenantID := setup(t, nil)
	for _, at := range []string{"09:00", "11:00"} {
		require.NoError(t, s.CreateBooking(ctx, &model.Booking{TenantID: tenantID, Date: "2025-06-01", Time: at}))
	}

	got, err := svc.SuggestedTimes(ctx, tenantID, "haircut", "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "12:00", "13:00"}, got)
}

func TestSuggestedTimesFullyBooked(t *testing.T) {
	ctx := context.Background()
	svc, s, tenantID := setup(t, map[string]any{SettingSlots: []any{"10:00"}})
	require.NoError(t, s.CreateBooking(ctx, &model.Booking{TenantID: tenantID, Date: "2025-06-01", Time: "10:00"}))

	got, err := svc.SuggestedTimes(ctx, tenantID, "haircut", "2025-06-01")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNextAvailable(t *testing.T) {
	ctx := context.Background()
	svc, s, tenantID := setup(t, map[string]any{SettingSlots: []any{"10:00", "11:00"}})
	for _, date := range []string{"2025-06-01", "2025-06-02"} {
		for _, at := range []string{"10:00", "11:00"} {
			require.NoError(t, s.CreateBooking(ctx, &model.Booking{TenantID: tenantID, Date: date, Time: at}))
		}
	}

	date, times, err := svc.NextAvailable(ctx, tenantID, "haircut", "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-03", date)
	assert.Equal(t, []string{"10:00", "11:00"}, times)

	_, _, err = svc.NextAvailable(ctx, tenantID, "haircut", "someday")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestNextAvailableNothingWithinLookahead(t *testing.T) {
	ctx := context.Background()
	svc, s, tenantID := setup(t, map[string]any{SettingSlots: []any{"10:00"}})
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i <= LookaheadDays; i++ {
		date := start.AddDate(0, 0, i).Format("2006-01-02")
		require.NoError(t, s.CreateBooking(ctx, &model.Booking{TenantID: tenantID, Date: date, Time: "10:00"}))
	}

	date, times, err := svc.NextAvailable(ctx, tenantID, "haircut", "2025-06-01")
	require.NoError(t, err)
	assert.Empty(t, date)
	assert.Empty(t, times)
}

func TestCreateBookingNormalizesISODate(t *testing.T) {
	ctx := context.Background()
	svc, s, tenantID := setup(t, nil)

	b, err := svc.CreateBooking(ctx, Request{TenantID: tenantID, Service: "massage", Date: "2025-07-01T12:00:00-07:00", Time: "2025-07-01T10:00:00-07:00"})
	require.NoError(t, err)
	assert.Equal(t, "2025-07-01", b.Date)
	assert.Equal(t, "10:00", b.Time)

	bookings, err := s.ListBookings(ctx, tenantID, "2025-07-01")
	require.NoError(t, err)
	assert.Len(t, bookings, 1)

	_, err = svc.CreateBooking(ctx, Request{TenantID: tenantID, Service: "massage", Date: "next tuesday", Time: "10:00"})
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestCapacityAllowsParallelBookings(t *testing.T) {
	ctx := context.Background()
	svc, _, tenantID := setup(t, map[string]any{SettingCapacity: float64(2)})

	for i := 0; i < 2; i++ {
		_, err := svc.CreateBooking(ctx, Request{TenantID: tenantID, Service: "massage", Date: "2025-06-01", Time: "10:00"})
		require.NoError(t, err)
	}
	_, err := svc.CreateBooking(ctx, Request{TenantID: tenantID, Service: "massage", Date: "2025-06-01", Time: "10:00"})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestCreateBookingConcurrentSameSlot(t *testing.T) {
	ctx := context.Background()
	svc, s, tenantID := setup(t, nil)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateBooking(ctx, Request{TenantID: tenantID, Service: "haircut", Date: "2025-06-01", Time: "2pm"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrSlotUnavailable)
		}
	}
	assert.Equal(t, 1, succeeded)

	bookings, err := s.ListBookings(ctx, tenantID, "2025-06-01")
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, "14:00", bookings[0].Time)
	assert.Equal(t, model.BookingConfirmed, bookings[0].Status)
}
