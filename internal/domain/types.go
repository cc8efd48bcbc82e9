package domain

import (
	"time"

	"github.com/google/uuid"
)

type TripStatus string

const (
	TripScheduled   TripStatus = "scheduled"
	TripFullyBooked TripStatus = "fully_booked"
	TripCompleted   TripStatus = "completed"
	TripCancelled   TripStatus = "cancelled"
)

// IsTerminal reports whether the status is final with respect to automatic
// recomputation. A completed or cancelled trip never goes back to scheduled.
func (s TripStatus) IsTerminal() bool {
	return s == TripCompleted || s == TripCancelled
}

type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
	BookingRejected   BookingStatus = "rejected"
)

// ActiveBookingStatuses are the statuses whose seats still count against a
// trip's capacity.
var ActiveBookingStatuses = []BookingStatus{
	BookingPending,
	BookingConfirmed,
	BookingInProgress,
	BookingCompleted,
}

// IsActive reports whether a booking in this status holds seats.
func (s BookingStatus) IsActive() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingInProgress, BookingCompleted:
		return true
	}
	return false
}

type Trip struct {
	ID             int64
	DriverID       int64
	Origin         string
	Destination    string
	Departure      time.Time
	TotalSeats     int
	AvailableSeats int
	Status         TripStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Booking struct {
	ID          uuid.UUID
	TripID      int64
	PassengerID int64
	DriverID    int64
	SeatsBooked int
	Status      BookingStatus
	// TelegramChatID routes passenger messages. Nil when the passenger
	// never linked a chat; delivery is skipped then.
	TelegramChatID *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Availability is the derived seat state of a trip.
type Availability struct {
	AvailableSeats int
	Status         TripStatus
	// Changed is false when recomputation produced the values the trip
	// already carries, so no write is needed.
	Changed bool
}

// ExpiryReport summarizes one expiry run over stale pending bookings.
type ExpiryReport struct {
	Cancelled int
	Failed    int
}
