package query

import "errors"

var (
	ErrTripNotFound    = errors.New("trip not found")
	ErrBookingNotFound = errors.New("booking not found")
)
