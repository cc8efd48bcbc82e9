package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailableSeats(t *testing.T) {
	assert.Equal(t, 4, AvailableSeats(4, 0))
	assert.Equal(t, 2, AvailableSeats(4, 2))
	assert.Equal(t, 0, AvailableSeats(4, 4))
	// overshoot clamps to zero instead of going negative
	assert.Equal(t, 0, AvailableSeats(4, 7))
}

func TestCheckAdmission_SequentialBookings(t *testing.T) {
	trip := Trip{TotalSeats: 4, Status: TripScheduled}

	// empty trip, 2 seats fit
	require.NoError(t, CheckAdmission(trip, 0, 2))

	// 2 seats taken, 3 requested: rejected with the true remainder
	err := CheckAdmission(trip, 2, 3)
	require.Error(t, err)

	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 2, capErr.Available)

	// the remaining 2 seats still fit
	require.NoError(t, CheckAdmission(trip, 2, 2))

	// full trip admits nothing
	err = CheckAdmission(trip, 4, 1)
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 0, capErr.Available)
}

func TestCheckAdmission_TerminalTrips(t *testing.T) {
	for _, status := range []TripStatus{TripCompleted, TripCancelled} {
		trip := Trip{TotalSeats: 4, Status: status}
		err := CheckAdmission(trip, 0, 1)
		assert.True(t, errors.Is(err, ErrTripFinished), "status %s", status)
	}
}

func TestRecompute_FillsAndFrees(t *testing.T) {
	trip := Trip{TotalSeats: 4, AvailableSeats: 4, Status: TripScheduled}

	// booking all seats flips the trip to fully_booked
	got := Recompute(trip, 4)
	assert.Equal(t, 0, got.AvailableSeats)
	assert.Equal(t, TripFullyBooked, got.Status)
	assert.True(t, got.Changed)

	// cancelling the booking reverts it to scheduled
	trip.AvailableSeats = 0
	trip.Status = TripFullyBooked
	got = Recompute(trip, 0)
	assert.Equal(t, 4, got.AvailableSeats)
	assert.Equal(t, TripScheduled, got.Status)
	assert.True(t, got.Changed)
}

func TestRecompute_Idempotent(t *testing.T) {
	trip := Trip{TotalSeats: 4, AvailableSeats: 4, Status: TripScheduled}

	first := Recompute(trip, 2)
	trip.AvailableSeats = first.AvailableSeats
	trip.Status = first.Status

	second := Recompute(trip, 2)
	assert.Equal(t, first.AvailableSeats, second.AvailableSeats)
	assert.Equal(t, first.Status, second.Status)
	assert.False(t, second.Changed)
}

func TestRecompute_CancelledTripIsFrozen(t *testing.T) {
	trip := Trip{TotalSeats: 4, AvailableSeats: 2, Status: TripCancelled}

	// the active sum would imply a different count; the trip keeps its own
	got := Recompute(trip, 4)
	assert.Equal(t, 2, got.AvailableSeats)
	assert.Equal(t, TripCancelled, got.Status)
	assert.False(t, got.Changed)
}

func TestRecompute_CompletedTripIsZeroed(t *testing.T) {
	trip := Trip{TotalSeats: 4, AvailableSeats: 3, Status: TripCompleted}

	got := Recompute(trip, 1)
	assert.Equal(t, 0, got.AvailableSeats)
	assert.Equal(t, TripCompleted, got.Status)
	assert.True(t, got.Changed)

	trip.AvailableSeats = 0
	got = Recompute(trip, 1)
	assert.False(t, got.Changed)
}

func TestNextStatus_NeverResurrectsTerminal(t *testing.T) {
	assert.Equal(t, TripCompleted, NextStatus(TripCompleted, 3))
	assert.Equal(t, TripCancelled, NextStatus(TripCancelled, 3))
	assert.Equal(t, TripScheduled, NextStatus(TripScheduled, 3))
	assert.Equal(t, TripFullyBooked, NextStatus(TripScheduled, 0))
}

func TestBookingStatus_IsActive(t *testing.T) {
	for _, s := range ActiveBookingStatuses {
		assert.True(t, s.IsActive())
	}
	assert.False(t, BookingCancelled.IsActive())
	assert.False(t, BookingRejected.IsActive())
}
