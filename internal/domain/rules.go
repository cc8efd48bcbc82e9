package domain

import (
	"errors"
	"fmt"
)

// ErrTripFinished is returned when an operation targets a trip in a terminal
// state (completed or cancelled).
var ErrTripFinished = errors.New("trip is completed or cancelled")

// CapacityError is returned when a booking request asks for more seats than
// the trip currently has. Available carries the live count so callers can
// show the true remainder.
type CapacityError struct {
	Available int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("not enough seats: %d available", e.Available)
}

// AvailableSeats derives the free seat count of a trip from the summed seats
// of its active bookings. Never negative, even when the active sum exceeds
// capacity.
func AvailableSeats(totalSeats, activeSeatSum int) int {
	if free := totalSeats - activeSeatSum; free > 0 {
		return free
	}
	return 0
}

// NextStatus derives a trip's status from its current status and the freshly
// computed available seat count. Only the scheduled <-> fully_booked pair is
// automatic; terminal statuses are left untouched.
func NextStatus(current TripStatus, available int) TripStatus {
	if current.IsTerminal() {
		return current
	}

	if available == 0 && current == TripScheduled {
		return TripFullyBooked
	}

	if available > 0 && current == TripFullyBooked {
		return TripScheduled
	}

	return current
}

// Recompute derives the availability and status a trip should carry given
// the summed seats of its active bookings.
//
// Cancelled trips are frozen: the current values come back with Changed
// false regardless of the booking set. Completed trips are forced to zero
// available seats. For everything else the seat count and the
// scheduled/fully_booked pair follow the active sum.
func Recompute(trip Trip, activeSeatSum int) Availability {
	switch trip.Status {
	case TripCancelled:
		return Availability{
			AvailableSeats: trip.AvailableSeats,
			Status:         TripCancelled,
			Changed:        false,
		}
	case TripCompleted:
		return Availability{
			AvailableSeats: 0,
			Status:         TripCompleted,
			Changed:        trip.AvailableSeats != 0,
		}
	}

	available := AvailableSeats(trip.TotalSeats, activeSeatSum)
	status := NextStatus(trip.Status, available)

	return Availability{
		AvailableSeats: available,
		Status:         status,
		Changed:        available != trip.AvailableSeats || status != trip.Status,
	}
}

// CheckAdmission decides whether a request for seatsRequested seats can be
// admitted against the live active-seat sum. The check is evaluated from the
// booking set, never from the cached counter on the trip row.
func CheckAdmission(trip Trip, activeSeatSum, seatsRequested int) error {
	if trip.Status.IsTerminal() {
		return ErrTripFinished
	}

	available := AvailableSeats(trip.TotalSeats, activeSeatSum)
	if seatsRequested > available {
		return &CapacityError{Available: available}
	}

	return nil
}
