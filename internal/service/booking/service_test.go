package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/ridepool/ridepool/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staleBookings(n int) []domain.Booking {
	out := make([]domain.Booking, n)
	for i := range out {
		out[i] = domain.Booking{
			ID:          uuid.New(),
			TripID:      int64(i + 1),
			SeatsBooked: 1,
			Status:      domain.BookingPending,
		}
	}
	return out
}

func TestExpireBatch_OneFailureDoesNotAbortTheRest(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stale := staleBookings(4)
	poisoned := stale[1].ID

	var attempted []uuid.UUID
	cancel := func(ctx context.Context, id uuid.UUID) error {
		attempted = append(attempted, id)
		if id == poisoned {
			return errors.New("simulated store failure")
		}
		return nil
	}

	report := expireBatch(context.Background(), stale, cancel, logger)

	// every booking is attempted, the one failure is only counted
	require.Len(t, attempted, 4)
	assert.Equal(t, 3, report.Cancelled)
	assert.Equal(t, 1, report.Failed)
}

func TestExpireBatch_AllFailures(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stale := staleBookings(2)

	cancel := func(ctx context.Context, id uuid.UUID) error {
		return errors.New("simulated store failure")
	}

	report := expireBatch(context.Background(), stale, cancel, logger)

	assert.Equal(t, 0, report.Cancelled)
	assert.Equal(t, 2, report.Failed)
}

func TestExpireBatch_Empty(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	report := expireBatch(context.Background(), nil, func(context.Context, uuid.UUID) error {
		t.Fatal("cancel must not be called for an empty batch")
		return nil
	}, logger)

	assert.Zero(t, report.Cancelled)
	assert.Zero(t, report.Failed)
}
