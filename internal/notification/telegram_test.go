package notification

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/ridepool/ridepool/internal/domain"
	"github.com/ridepool/ridepool/internal/service/booking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ booking.Notifier = (*TelegramNotifier)(nil)

func TestNewTelegramNotifier_EmptyTokenDisablesDelivery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	n, err := NewTelegramNotifier("", 42, logger)
	require.NoError(t, err)
	require.NotNil(t, n)

	chatID := int64(7)
	b := &domain.Booking{
		ID:             uuid.New(),
		TripID:         1,
		SeatsBooked:    2,
		TelegramChatID: &chatID,
	}

	// must be a no-op, not a panic, with the bot disabled
	n.SystemNotification(context.Background(), "summary", map[string]string{"cancelled": "3"})
	n.BookingCreated(context.Background(), b)
	n.BookingCancelled(context.Background(), b)
}

func TestBookingTexts_CarryTripSeatsAndBookingID(t *testing.T) {
	chatID := int64(7)
	b := &domain.Booking{
		ID:             uuid.MustParse("7b7a3f0e-2f69-4f5d-9f14-0a8f4cf1d001"),
		TripID:         42,
		SeatsBooked:    3,
		TelegramChatID: &chatID,
	}

	created := bookingCreatedText(b)
	assert.Contains(t, created, "Trip: #42")
	assert.Contains(t, created, "Seats: 3")
	assert.Contains(t, created, b.ID.String())

	cancelled := bookingCancelledText(b)
	assert.Contains(t, cancelled, "Trip: #42")
	assert.Contains(t, cancelled, "Seats released: 3")
	assert.Contains(t, cancelled, b.ID.String())
}

func TestFormatMeta_SortedAndTrimmed(t *testing.T) {
	got := formatMeta(map[string]string{
		"failed":    "1",
		"cancelled": "3",
	})

	assert.Equal(t, "cancelled: 3\nfailed: 1", got)
}
