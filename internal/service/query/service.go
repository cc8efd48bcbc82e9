package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ridepool/ridepool/internal/domain"
	"github.com/ridepool/ridepool/internal/repository"
	postgresrepo "github.com/ridepool/ridepool/internal/repository/postgres"
	redisrepo "github.com/ridepool/ridepool/internal/repository/redis"
)

type Config struct {
	TripSummaryTTL  time.Duration
	AvailabilityTTL time.Duration
	DefaultPage     int
	MaxPage         int
}

type Service struct {
	store *postgresrepo.Store
	cache *redisrepo.Cache
	cfg   Config
}

func New(store *postgresrepo.Store, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.TripSummaryTTL <= 0 {
		cfg.TripSummaryTTL = 60 * time.Second
	}

	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = 15 * time.Second
	}

	if cfg.DefaultPage <= 0 {
		cfg.DefaultPage = 50
	}

	if cfg.MaxPage <= 0 {
		cfg.MaxPage = 200
	}

	return &Service{
		store: store,
		cache: cache,
		cfg:   cfg,
	}
}

// GetTrip retrieves a trip by its ID through the caching layer.
//
// Returns:
//   - *domain.Trip: the retrieved trip.
//   - error: query.ErrTripNotFound if the trip does not exist.
func (s *Service) GetTrip(ctx context.Context, id int64) (*domain.Trip, error) {
	const op = "service.query.GetTrip"

	key := redisrepo.KeyTripSummary(id)

	trip, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.TripSummaryTTL,
		func(ctx context.Context) (domain.Trip, error) {
			t, err := s.store.Trips().Get(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.Trip{}, ErrTripNotFound
				}

				return domain.Trip{}, err
			}

			return *t, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &trip, nil
}

// Availability returns the current derived seat state of a trip through the
// caching layer. The cached value is dropped on every booking write, so a
// short TTL only bounds staleness for idle trips.
func (s *Service) Availability(ctx context.Context, tripID int64) (*domain.Availability, error) {
	const op = "service.query.Availability"

	key := redisrepo.KeyTripAvailability(tripID)

	av, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.AvailabilityTTL,
		func(ctx context.Context) (domain.Availability, error) {
			t, err := s.store.Trips().Get(ctx, tripID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.Availability{}, ErrTripNotFound
				}

				return domain.Availability{}, err
			}

			return domain.Availability{
				AvailableSeats: t.AvailableSeats,
				Status:         t.Status,
			}, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &av, nil
}

// ListTrips lists trips departing on day (zero value: all upcoming trips),
// with pagination bounds enforced.
func (s *Service) ListTrips(ctx context.Context, day time.Time, limit, offset int) ([]domain.Trip, error) {
	const op = "service.query.ListTrips"

	if limit <= 0 {
		limit = s.cfg.DefaultPage
	}

	if limit > s.cfg.MaxPage {
		limit = s.cfg.MaxPage
	}

	trips, err := s.store.Trips().List(ctx, day, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return trips, nil
}

// ListTripBookings lists the bookings of a trip, optionally only those in
// active states.
//
// Returns:
//   - error: query.ErrTripNotFound if the trip does not exist.
func (s *Service) ListTripBookings(ctx context.Context, tripID int64, onlyActive bool) ([]domain.Booking, error) {
	const op = "service.query.ListTripBookings"

	if _, err := s.store.Trips().Get(ctx, tripID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrTripNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	bookings, err := s.store.Bookings().ListForTrip(ctx, tripID, onlyActive)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bookings, nil
}

// GetBooking retrieves a booking by its ID.
//
// Returns:
//   - error: query.ErrBookingNotFound if the booking does not exist.
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "service.query.GetBooking"

	b, err := s.store.Bookings().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrBookingNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return b, nil
}
