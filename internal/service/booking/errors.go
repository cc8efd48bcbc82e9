package booking

import "errors"

var (
	ErrTripNotFound    = errors.New("trip not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrTripFinished    = errors.New("trip is completed or cancelled")
	ErrInvalidSeats    = errors.New("seats requested must be at least 1")
	ErrRateLimited     = errors.New("rate limited")
)
