package httpgin

import "time"

type CreateBookingRequest struct {
	PassengerID int64 `json:"passenger_id" binding:"required"`
	Seats       int   `json:"seats" binding:"required,gte=1"`
	// TelegramChatID opts the passenger into booking messages.
	TelegramChatID *int64 `json:"telegram_chat_id,omitempty"`
}

type ValidateAdmissionRequest struct {
	Seats int `json:"seats" binding:"required,gte=1"`
}

type CreateTripRequest struct {
	DriverID    int64  `json:"driver_id" binding:"required"`
	Origin      string `json:"origin" binding:"required"`
	Destination string `json:"destination" binding:"required"`
	DepartureAt string `json:"departure_at" binding:"required"`
	TotalSeats  int    `json:"total_seats" binding:"required,gte=1"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	// AvailableSeats is set on capacity rejections so the client can show
	// the true remainder.
	AvailableSeats *int `json:"available_seats,omitempty"`
}

type CreateBookingResponse struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

type CreateTripResponse struct {
	TripID int64 `json:"trip_id"`
}

type CompleteTripResponse struct {
	BookingsCompleted int64 `json:"bookings_completed"`
}

type ExpiryRunResponse struct {
	Cancelled int `json:"cancelled"`
	Failed    int `json:"failed"`
}

type AvailabilityResponse struct {
	AvailableSeats int    `json:"available_seats"`
	Status         string `json:"status"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
