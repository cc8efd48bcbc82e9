package admin

import "errors"

var (
	ErrTripNotFound  = errors.New("trip not found")
	ErrTripFinished  = errors.New("trip is completed or cancelled")
	ErrInvalidSeats  = errors.New("total seats must be at least 1")
	ErrPastDeparture = errors.New("departure must be in the future")
)
