package service

import (
	"log/slog"

	postgres "github.com/ridepool/ridepool/internal/repository/postgres"
	redis "github.com/ridepool/ridepool/internal/repository/redis"
	"github.com/ridepool/ridepool/internal/service/admin"
	"github.com/ridepool/ridepool/internal/service/booking"
	"github.com/ridepool/ridepool/internal/service/query"
)

type Services struct {
	Booking *booking.Service
	Query   *query.Service
	Admin   *admin.Service
}

type Config struct {
	Booking booking.Config
	Query   query.Config
}

func NewServices(
	store *postgres.Store,
	cache *redis.Cache,
	pubsub *redis.TripsPubSub,
	limiter *redis.SlidingWindowLimiter,
	notifier booking.Notifier,
	logger *slog.Logger,
	cfg Config,
) *Services {
	return &Services{
		Booking: booking.New(store, cache, pubsub, limiter, notifier, logger, cfg.Booking),
		Query:   query.New(store, cache, cfg.Query),
		Admin:   admin.New(store, cache, pubsub),
	}
}
