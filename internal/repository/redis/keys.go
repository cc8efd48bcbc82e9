package redis

import "fmt"

const ns = "ridepool:v1"

func KeyTripSummary(tripID int64) string {
	return fmt.Sprintf("%s:trip:%d:summary", ns, tripID)
}

func KeyTripAvailability(tripID int64) string {
	return fmt.Sprintf("%s:trip:%d:availability", ns, tripID)
}

func KeyTripBookings(tripID int64) string {
	return fmt.Sprintf("%s:trip:%d:bookings", ns, tripID)
}

func ChannelTripsChanged() string {
	return ns + ":trips:changed"
}
